package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// cropSize is the edge length of the square face crop sent to the extractor.
const cropSize = 160

// cropMargin expands the detection bbox so the crop keeps some context
// around the face, which the embedding model expects.
const cropMargin = 0.2

// DecodeFrame decodes a captured frame into an image.
func DecodeFrame(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}

// CropFace extracts the face region from a frame, expands it by cropMargin,
// scales it to cropSize and re-encodes it as JPEG for the extractor.
func CropFace(frame image.Image, bbox []float64) ([]byte, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("invalid bbox length %d", len(bbox))
	}

	bounds := frame.Bounds()
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]

	x1 := int(bbox[0] - w*cropMargin)
	y1 := int(bbox[1] - h*cropMargin)
	x2 := int(bbox[2] + w*cropMargin)
	y2 := int(bbox[3] + h*cropMargin)

	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2 <= x1 || y2 <= y1 {
		return nil, fmt.Errorf("bbox [%v] outside frame bounds", bbox)
	}

	crop := image.Rect(x1, y1, x2, y2)
	scaled := image.NewRGBA(image.Rect(0, 0, cropSize, cropSize))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), frame, crop, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode face crop: %w", err)
	}
	return buf.Bytes(), nil
}

// MeanLuminance computes the mean luminance (0-255) of the bbox region.
// Samples on a fixed grid so cost is independent of face size.
func MeanLuminance(frame image.Image, bbox []float64) float64 {
	if frame == nil || len(bbox) != 4 {
		return 0
	}

	bounds := frame.Bounds()
	x1 := clampInt(int(bbox[0]), bounds.Min.X, bounds.Max.X-1)
	y1 := clampInt(int(bbox[1]), bounds.Min.Y, bounds.Max.Y-1)
	x2 := clampInt(int(bbox[2]), bounds.Min.X, bounds.Max.X-1)
	y2 := clampInt(int(bbox[3]), bounds.Min.Y, bounds.Max.Y-1)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	const grid = 16
	var sum float64
	var count int
	for gy := 0; gy < grid; gy++ {
		for gx := 0; gx < grid; gx++ {
			x := x1 + (x2-x1)*gx/grid
			y := y1 + (y2-y1)*gy/grid
			r, g, b, _ := frame.At(x, y).RGBA()
			// ITU-R BT.601 luma, scaled from 16-bit channels to 0-255.
			sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
