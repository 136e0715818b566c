// Package vision provides face detection results, quality assessment, and
// the descriptor extraction client shared between the kiosk runtime and the
// enrollment workflow.
package vision

// Detection represents one detected face region within a frame.
type Detection struct {
	// BBox is [x1, y1, x2, y2] in frame pixel coordinates.
	BBox []float64 `json:"bbox"`
	// Landmarks are five points in frame pixel coordinates:
	// left eye, right eye, nose tip, left mouth corner, right mouth corner.
	Landmarks [][2]float64 `json:"landmarks"`
	// DetScore is the detector's confidence in [0, 1].
	DetScore float64 `json:"det_score"`
}

// Width returns the bounding box width in pixels.
func (d *Detection) Width() float64 {
	if len(d.BBox) != 4 {
		return 0
	}
	return d.BBox[2] - d.BBox[0]
}

// Height returns the bounding box height in pixels.
func (d *Detection) Height() float64 {
	if len(d.BBox) != 4 {
		return 0
	}
	return d.BBox[3] - d.BBox[1]
}

// Quality is the result of assessing a detection for recognition use.
type Quality struct {
	Score  float64 // 0-1, combined usability score
	IsGood bool
	Reason string // human-readable rejection reason, empty when good
}

// QualityGates holds the tunable acceptance limits for AssessQuality.
type QualityGates struct {
	MinFacePx      int     // minimum face width in pixels
	MinFaceRel     float64 // minimum face width relative to frame width
	MaxPoseDegrees float64 // maximum estimated yaw/pitch
	MinLuminance   float64 // minimum mean luminance of the face crop (0-255)
	MaxLuminance   float64 // maximum mean luminance of the face crop (0-255)
	MinDetScore    float64 // minimum detector confidence
}
