package camera

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/obstacle.alert/internal/monitoring"
	"github.com/banshee-data/obstacle.alert/internal/vision"
)

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputSize        int
}

// DefaultYOLOConfig returns defaults for YOLOv8n. The confidence floor is
// below the alert threshold so low-confidence objects still reach the
// overlay and the arbiter makes the alerting decision.
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputSize:        640,
	}
}

// YOLODetector runs a YOLOv8 ONNX model through OpenCV's DNN module.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// NewYOLO loads the model at cfg.ModelPath.
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputSize, cfg.InputSize),
	}, nil
}

// Detect returns the objects in frame in pixel coordinates of the frame.
func (d *YOLODetector) Detect(frame *Frame) ([]vision.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if frame.Mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	imgW := float32(frame.Mat.Cols())
	imgH := float32(frame.Mat.Rows())

	blob := gocv.BlobFromImage(frame.Mat, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	// [1, 4+classes, anchors]
	sizes := output.Size()
	if len(sizes) != 3 {
		return nil, fmt.Errorf("unexpected YOLO output shape %v", sizes)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read YOLO output: %w", err)
	}

	cands, err := vision.DecodeYOLOv8(data, sizes[1], sizes[2], d.config.ConfidenceThresh,
		imgW/float32(d.inputSize.X), imgH/float32(d.inputSize.Y))
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		boxes[i] = image.Rect(int(c.Box.X1), int(c.Box.Y1), int(c.Box.X2), int(c.Box.Y2))
		scores[i] = c.Score
	}
	indices := gocv.NMSBoxes(boxes, scores, d.config.ConfidenceThresh, d.config.NMSThresh)

	dets := make([]vision.Detection, 0, len(indices))
	for _, idx := range indices {
		c := cands[idx]
		dets = append(dets, vision.Detection{
			Box:        c.Box,
			Label:      vision.ClassName(c.ClassID),
			Confidence: float64(c.Score),
		})
	}
	monitoring.Debugf("🔍 YOLO found %d object(s)", len(dets))
	return dets, nil
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
