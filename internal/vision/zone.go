// Package vision holds the detector-independent side of object detection:
// the detection model, the three horizontal zones and the class names the
// alerting logic cares about.
package vision

// Zone is a horizontal third of the frame.
type Zone int

const (
	ZoneLeft Zone = iota
	ZoneCenter
	ZoneRight
)

func (z Zone) String() string {
	switch z {
	case ZoneLeft:
		return "left"
	case ZoneRight:
		return "right"
	default:
		return "center"
	}
}

func (z Zone) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

// Classify maps a horizontal coordinate to a zone for a frame width wide.
// The divider coordinates themselves belong to the center zone.
func Classify(centerX, width float64) Zone {
	switch {
	case centerX < width/3:
		return ZoneLeft
	case centerX > 2*width/3:
		return ZoneRight
	default:
		return ZoneCenter
	}
}

// ZoneBounds returns the x coordinates of the left and right dividers.
func ZoneBounds(width float64) (left, right float64) {
	return width / 3, 2 * width / 3
}
