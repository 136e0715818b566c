// Package match holds the in-memory template store and the nearest-template
// matcher that classifies probe descriptors against enrolled employees.
package match

import "time"

// Employee is the directory record the matcher needs to resolve a hit.
type Employee struct {
	ID             string
	Code           string
	Name           string
	Active         bool
	FaceRegistered bool
}

// Descriptor is one enrolled descriptor vector belonging to an employee's
// face template. An employee's template is the ordered set of its
// descriptors (one per enrolled pose); matching treats them as independent
// nearest-neighbor candidates, never averaged, to tolerate pose variance.
type Descriptor struct {
	ID         int64 // directory row ID, used as the index node key
	EmployeeID string
	PoseIndex  int // 0=front, 1=left, 2=right
	Quality    float64
	Embedding  []float32
	EnrolledAt time.Time
}

// Result is the outcome of matching one probe descriptor.
type Result struct {
	Matched    bool
	Ambiguous  bool // two different employees within epsilon of each other
	Employee   Employee
	Distance   float64 // cosine distance of the best hit
	Confidence float64 // 1 - distance, clamped to [0, 1]
}
