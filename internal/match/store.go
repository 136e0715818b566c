package match

import (
	"sync"

	"github.com/coder/hnsw"
)

// HNSW parameters for 512-dim face descriptors. Template counts on a kiosk
// are small (hundreds of employees, 3 descriptors each) so recall matters
// more than build time.
const (
	hnswMaxNeighbors = 16
	hnswSearchK      = 32
)

// TemplateStore caches every enrolled employee's descriptors in memory with
// an HNSW graph for nearest-descriptor search. It is refreshed from the
// enrollment directory and updated incrementally after enrollments.
type TemplateStore struct {
	graph     *hnsw.Graph[int64]
	idToDesc  map[int64]*Descriptor
	employees map[string]Employee
	mu        sync.RWMutex
}

// NewTemplateStore creates an empty template store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		idToDesc:  make(map[int64]*Descriptor),
		employees: make(map[string]Employee),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors) // Standard HNSW formula
	g.Distance = hnsw.CosineDistance
	return g
}

// Reload replaces the entire store contents. Only active employees with
// installed templates end up in the graph.
func (s *TemplateStore) Reload(employees []Employee, descriptors []Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.employees = make(map[string]Employee, len(employees))
	for _, emp := range employees {
		s.employees[emp.ID] = emp
	}

	s.idToDesc = make(map[int64]*Descriptor, len(descriptors))
	if len(descriptors) == 0 {
		s.graph = nil
		return
	}

	g := newGraph()
	for i := range descriptors {
		desc := &descriptors[i]
		if len(desc.Embedding) == 0 {
			continue
		}
		emp, ok := s.employees[desc.EmployeeID]
		if !ok || !emp.Active {
			continue
		}
		g.Add(hnsw.MakeNode(desc.ID, desc.Embedding))
		s.idToDesc[desc.ID] = desc
	}
	s.graph = g
}

// Install adds a freshly enrolled employee's descriptors. Any previous
// descriptors of the same employee are dropped from lookup first, so a
// re-enrollment fully replaces the old template.
func (s *TemplateStore) Install(emp Employee, descriptors []Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, desc := range s.idToDesc {
		if desc.EmployeeID == emp.ID {
			delete(s.idToDesc, id)
			// HNSW has no true deletion; dropping the lookup entry removes
			// the node from results since search filters through idToDesc.
		}
	}

	s.employees[emp.ID] = emp

	if s.graph == nil {
		s.graph = newGraph()
	}
	for i := range descriptors {
		desc := &descriptors[i]
		if len(desc.Embedding) == 0 {
			continue
		}
		s.graph.Add(hnsw.MakeNode(desc.ID, desc.Embedding))
		s.idToDesc[desc.ID] = desc
	}
}

// Remove drops an employee and all their descriptors from lookup.
func (s *TemplateStore) Remove(employeeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.employees, employeeID)
	for id, desc := range s.idToDesc {
		if desc.EmployeeID == employeeID {
			delete(s.idToDesc, id)
		}
	}
}

// Employee returns the cached employee record.
func (s *TemplateStore) Employee(id string) (Employee, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emp, ok := s.employees[id]
	return emp, ok
}

// Count returns the number of descriptors available for matching.
func (s *TemplateStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idToDesc)
}

// neighbor is one candidate from a nearest search with its exact distance.
type neighbor struct {
	desc     *Descriptor
	distance float64
}

// nearest returns up to k candidate descriptors for the probe, ordered by
// the HNSW search, with exact cosine distances computed from node values.
func (s *TemplateStore) nearest(probe []float32, k int) []neighbor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph == nil || len(s.idToDesc) == 0 {
		return nil
	}

	nodes := s.graph.Search(probe, k)
	out := make([]neighbor, 0, len(nodes))
	for _, n := range nodes {
		desc, ok := s.idToDesc[n.Key]
		if !ok {
			continue // deleted descriptor still present in the graph
		}
		out = append(out, neighbor{
			desc:     desc,
			distance: CosineDistance(probe, n.Value),
		})
	}
	return out
}
