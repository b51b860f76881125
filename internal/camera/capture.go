// Package camera adapts OpenCV (via gocv) to the frame loop: webcam
// capture, the YOLOv8 ONNX detector and the overlay window.
package camera

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrNoFrame is returned when the device delivers no image.
var ErrNoFrame = errors.New("could not read frame")

// Frame is a captured BGR image. It must be closed by its consumer.
type Frame struct {
	Mat gocv.Mat
}

func (f *Frame) Width() int  { return f.Mat.Cols() }
func (f *Frame) Height() int { return f.Mat.Rows() }

func (f *Frame) Close() error {
	return f.Mat.Close()
}

// Capture reads frames from a local video device.
type Capture struct {
	dev    *gocv.VideoCapture
	mirror bool
}

// OpenCapture opens the video device at index. When mirror is set every
// frame is flipped horizontally so the picture matches the user's view.
func OpenCapture(index int, mirror bool) (*Capture, error) {
	dev, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", index, err)
	}
	if !dev.IsOpened() {
		dev.Close()
		return nil, fmt.Errorf("camera %d is not available", index)
	}
	return &Capture{dev: dev, mirror: mirror}, nil
}

// Read grabs the next frame.
func (c *Capture) Read(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := gocv.NewMat()
	if ok := c.dev.Read(&m); !ok || m.Empty() {
		m.Close()
		return nil, ErrNoFrame
	}
	if c.mirror {
		gocv.Flip(m, &m, 1)
	}
	return &Frame{Mat: m}, nil
}

// Close releases the device.
func (c *Capture) Close() error {
	return c.dev.Close()
}
