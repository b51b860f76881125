package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/banshee-data/obstacle.alert/internal/alert"
	"github.com/banshee-data/obstacle.alert/internal/ranging"
	"github.com/banshee-data/obstacle.alert/internal/vision"
)

// CameraOnlyText is shown in place of the sensor status when no sensor is
// connected.
const CameraOnlyText = "Camera Only Mode - No ESP32 Connected"

var (
	ColorWhite  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	ColorRed    = color.RGBA{R: 255, A: 255}
	ColorGreen  = color.RGBA{G: 255, A: 255}
	ColorBlue   = color.RGBA{B: 255, A: 255}
	ColorYellow = color.RGBA{R: 255, G: 255, A: 255}
	ColorGrey   = color.RGBA{R: 128, G: 128, B: 128, A: 255}
)

// ZoneColor is the colour used for a zone's label and boxes.
func ZoneColor(z vision.Zone) color.RGBA {
	switch z {
	case vision.ZoneLeft:
		return ColorRed
	case vision.ZoneRight:
		return ColorBlue
	default:
		return ColorGreen
	}
}

// LevelColor is the colour of the sensor status line.
func LevelColor(l ranging.Level) color.RGBA {
	switch l {
	case ranging.LevelDanger:
		return ColorRed
	case ranging.LevelWarning:
		return ColorYellow
	default:
		return ColorGreen
	}
}

// Text is a string drawn at Origin (bottom-left of the baseline).
type Text struct {
	Text   string
	Origin image.Point
	Scale  float64
	Color  color.RGBA
}

// Line is a straight segment.
type Line struct {
	From, To image.Point
	Color    color.RGBA
}

// Rect is a labelled detection box.
type Rect struct {
	Bounds image.Rectangle
	Color  color.RGBA
	Label  Text
}

// Overlay is everything drawn on top of one frame. It is computed without
// any imaging library so renderers only have to draw primitives.
type Overlay struct {
	Lines  []Line
	Texts  []Text
	Boxes  []Rect
	Status Text
	// Alert is the alert spoken for this frame, if any.
	Alert *alert.Event
}

// FrameState is the per-frame input to BuildOverlay.
type FrameState struct {
	Width, Height int
	Detections    []vision.ZonedDetection
	MinConfidence float64
	Sample        ranging.Sample
	SensorOK      bool
	SensorEnabled bool
	Alert         *alert.Event
}

// BuildOverlay lays out zone dividers, zone labels, boxes for detections
// above the confidence threshold and the sensor status line.
func BuildOverlay(s FrameState) Overlay {
	left, right := int(float64(s.Width)/3), int(2*float64(s.Width)/3)

	o := Overlay{
		Lines: []Line{
			{From: image.Pt(left, 0), To: image.Pt(left, s.Height), Color: ColorWhite},
			{From: image.Pt(right, 0), To: image.Pt(right, s.Height), Color: ColorWhite},
		},
		Texts: []Text{
			{Text: "LEFT", Origin: image.Pt(50, 50), Scale: 1, Color: ZoneColor(vision.ZoneLeft)},
			{Text: "CENTER", Origin: image.Pt(left+50, 50), Scale: 1, Color: ZoneColor(vision.ZoneCenter)},
			{Text: "RIGHT", Origin: image.Pt(right+50, 50), Scale: 1, Color: ZoneColor(vision.ZoneRight)},
		},
		Alert: s.Alert,
	}

	for _, d := range s.Detections {
		if d.Confidence <= s.MinConfidence {
			continue
		}
		c := ZoneColor(d.Zone)
		b := image.Rect(int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2), int(d.Box.Y2))
		o.Boxes = append(o.Boxes, Rect{
			Bounds: b,
			Color:  c,
			Label: Text{
				Text:   fmt.Sprintf("%s (%.2f)", d.Label, d.Confidence),
				Origin: image.Pt(b.Min.X, b.Min.Y-10),
				Scale:  0.5,
				Color:  c,
			},
		})
	}

	o.Status = Text{
		Text:   StatusText(s.Sample, s.SensorOK, s.SensorEnabled),
		Origin: image.Pt(10, s.Height-20),
		Scale:  0.7,
		Color:  ColorGrey,
	}
	if s.SensorEnabled {
		o.Status.Color = LevelColor(s.Sample.Level)
	}
	return o
}

// StatusText is the sensor line at the bottom of the frame.
func StatusText(sample ranging.Sample, ok, enabled bool) string {
	switch {
	case !enabled:
		return CameraOnlyText
	case !ok:
		return "ESP32 Sensor: waiting for data"
	case !sample.DistanceKnown:
		return fmt.Sprintf("ESP32 Sensor: --cm - %s", sample.Level)
	default:
		return fmt.Sprintf("ESP32 Sensor: %dcm - %s", sample.DistanceCM, sample.Level)
	}
}
