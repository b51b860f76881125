package vision

import "fmt"

// Candidate is a raw YOLO prediction before non-maximum suppression.
type Candidate struct {
	Box     Box
	ClassID int
	Score   float32
}

// DecodeYOLOv8 reads a YOLOv8 output tensor of shape [1, 4+classes, anchors]
// laid out row-major in data. Each anchor holds (cx, cy, w, h) in model
// input pixels followed by one score per class. Candidates scoring below
// threshold are dropped; boxes are scaled by scaleX/scaleY into frame pixels.
func DecodeYOLOv8(data []float32, channels, anchors int, threshold, scaleX, scaleY float32) ([]Candidate, error) {
	if channels <= 4 {
		return nil, fmt.Errorf("yolo output has %d channels, need more than 4", channels)
	}
	if len(data) < channels*anchors {
		return nil, fmt.Errorf("yolo output has %d values, want %d", len(data), channels*anchors)
	}

	var out []Candidate
	for i := 0; i < anchors; i++ {
		best := float32(0)
		bestID := 0
		for c := 4; c < channels; c++ {
			if s := data[c*anchors+i]; s > best {
				best = s
				bestID = c - 4
			}
		}
		if best < threshold {
			continue
		}

		cx := data[0*anchors+i]
		cy := data[1*anchors+i]
		w := data[2*anchors+i]
		h := data[3*anchors+i]

		out = append(out, Candidate{
			Box: Box{
				X1: float64((cx - w/2) * scaleX),
				Y1: float64((cy - h/2) * scaleY),
				X2: float64((cx + w/2) * scaleX),
				Y2: float64((cy + h/2) * scaleY),
			},
			ClassID: bestID,
			Score:   best,
		})
	}
	return out, nil
}
