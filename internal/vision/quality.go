package vision

import (
	"fmt"
	"image"
	"math"
)

// AssessQuality scores a detected face region for recognition use. It is a
// pure function: a rejected face is a normal outcome, never an error.
// The frame image is used only to measure luminance of the face crop.
func AssessQuality(det *Detection, frame image.Image, frameWidth int, gates QualityGates) Quality {
	if len(det.BBox) != 4 || frameWidth <= 0 {
		return Quality{Reason: "invalid detection geometry"}
	}

	if det.DetScore < gates.MinDetScore {
		return Quality{
			Score:  det.DetScore,
			Reason: fmt.Sprintf("detection score %.2f below %.2f", det.DetScore, gates.MinDetScore),
		}
	}

	width := det.Width()
	if width < float64(gates.MinFacePx) {
		return Quality{
			Score:  scoreFor(width/float64(gates.MinFacePx), 0, 0),
			Reason: fmt.Sprintf("face too small (%.0fpx, need %dpx)", width, gates.MinFacePx),
		}
	}
	if rel := width / float64(frameWidth); rel < gates.MinFaceRel {
		return Quality{
			Score:  scoreFor(rel/gates.MinFaceRel, 0, 0),
			Reason: fmt.Sprintf("face too far from camera (%.1f%% of frame)", rel*100),
		}
	}

	yaw, pitch := EstimatePose(det)
	if math.Abs(yaw) > gates.MaxPoseDegrees {
		return Quality{
			Score:  scoreFor(1, gates.MaxPoseDegrees/math.Abs(yaw), 0),
			Reason: fmt.Sprintf("head turned too far (yaw %.0f°)", yaw),
		}
	}
	if math.Abs(pitch) > gates.MaxPoseDegrees {
		return Quality{
			Score:  scoreFor(1, gates.MaxPoseDegrees/math.Abs(pitch), 0),
			Reason: fmt.Sprintf("head tilted too far (pitch %.0f°)", pitch),
		}
	}

	lum := MeanLuminance(frame, det.BBox)
	if lum < gates.MinLuminance {
		return Quality{
			Score:  scoreFor(1, 1, lum/gates.MinLuminance),
			Reason: fmt.Sprintf("face too dark (luminance %.0f)", lum),
		}
	}
	if lum > gates.MaxLuminance {
		return Quality{
			Score:  scoreFor(1, 1, gates.MaxLuminance/lum),
			Reason: fmt.Sprintf("face overexposed (luminance %.0f)", lum),
		}
	}

	// Combined score: pose and detector confidence weighted, size saturates at 1.
	poseFactor := 1 - (math.Abs(yaw)+math.Abs(pitch))/(2*gates.MaxPoseDegrees)
	score := 0.5*det.DetScore + 0.5*poseFactor
	if score > 1 {
		score = 1
	}

	return Quality{Score: score, IsGood: true}
}

// scoreFor clamps partial sub-scores into [0, 1] and averages the non-zero ones.
func scoreFor(parts ...float64) float64 {
	var sum float64
	var n int
	for _, p := range parts {
		if p <= 0 {
			continue
		}
		if p > 1 {
			p = 1
		}
		sum += p
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n) * 0.5 // rejected faces never score above 0.5
}

// EstimatePose estimates yaw and pitch in degrees from the five facial
// landmarks. The estimate is coarse but monotonic, which is all the quality
// gate needs: a frontal face yields values near zero.
func EstimatePose(det *Detection) (yaw, pitch float64) {
	if len(det.Landmarks) < 5 {
		return 0, 0
	}

	leftEye := det.Landmarks[0]
	rightEye := det.Landmarks[1]
	nose := det.Landmarks[2]
	leftMouth := det.Landmarks[3]
	rightMouth := det.Landmarks[4]

	eyeSpan := rightEye[0] - leftEye[0]
	if eyeSpan <= 0 {
		return 0, 0
	}

	// Yaw: horizontal displacement of the nose from the eye midpoint,
	// normalized by the eye span. +-0.5 span maps to roughly +-45 degrees.
	eyeMidX := (leftEye[0] + rightEye[0]) / 2
	yaw = (nose[0] - eyeMidX) / eyeSpan * 90

	// Pitch: vertical position of the nose between the eye line and the
	// mouth line. Centered (~0.5) means frontal.
	eyeMidY := (leftEye[1] + rightEye[1]) / 2
	mouthMidY := (leftMouth[1] + rightMouth[1]) / 2
	faceHeight := mouthMidY - eyeMidY
	if faceHeight <= 0 {
		return yaw, 0
	}
	noseRatio := (nose[1] - eyeMidY) / faceHeight
	pitch = (noseRatio - 0.5) * 90

	return yaw, pitch
}

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	x1 := math.Max(bbox1[0], bbox2[0])
	y1 := math.Max(bbox1[1], bbox2[1])
	x2 := math.Min(bbox1[2], bbox2[2])
	y2 := math.Min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// DuplicateIoUThreshold marks two boxes as the same face. Detectors emit
// near-identical duplicates well above this; distinct faces stay far below.
const DuplicateIoUThreshold = 0.5

// CollapseOverlapping merges duplicate detector boxes of the same face.
// Boxes whose IoU exceeds the threshold are treated as one face and only
// the largest box of each group survives. Order of the survivors follows
// the input.
func CollapseOverlapping(detections []Detection, threshold float64) []Detection {
	if len(detections) < 2 {
		return detections
	}

	kept := make([]Detection, 0, len(detections))
	for _, d := range detections {
		merged := false
		for i := range kept {
			if ComputeIoU(kept[i].BBox, d.BBox) <= threshold {
				continue
			}
			if d.Width()*d.Height() > kept[i].Width()*kept[i].Height() {
				kept[i] = d
			}
			merged = true
			break
		}
		if !merged {
			kept = append(kept, d)
		}
	}
	return kept
}
