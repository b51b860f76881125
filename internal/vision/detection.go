package vision

// Box is an axis-aligned bounding box in pixel coordinates of the frame it
// was detected in.
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// CenterX is the horizontal center of the box.
func (b Box) CenterX() float64 {
	return (b.X1 + b.X2) / 2
}

// Detection is one object reported by the detector for one frame.
type Detection struct {
	Box        Box     `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// ZonedDetection is a detection together with the zone it falls in.
type ZonedDetection struct {
	Detection
	Zone Zone `json:"zone"`
}

// ClassifyAll assigns a zone to every detection, keeping the detector's order.
func ClassifyAll(dets []Detection, frameWidth int) []ZonedDetection {
	out := make([]ZonedDetection, len(dets))
	for i, d := range dets {
		out[i] = ZonedDetection{Detection: d, Zone: Classify(d.Box.CenterX(), float64(frameWidth))}
	}
	return out
}

// DefaultWatchList is the set of classes that may trigger a spoken alert.
var DefaultWatchList = []string{"person", "car", "truck", "bicycle"}

// WatchList is a set of class labels.
type WatchList map[string]struct{}

// NewWatchList builds a WatchList from labels.
func NewWatchList(labels []string) WatchList {
	w := make(WatchList, len(labels))
	for _, l := range labels {
		w[l] = struct{}{}
	}
	return w
}

// Contains reports whether label is on the list.
func (w WatchList) Contains(label string) bool {
	_, ok := w[label]
	return ok
}

// COCOClasses contains the 80 COCO class names in model output order.
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// ClassName returns the COCO label for id, or "unknown" when out of range.
func ClassName(id int) string {
	if id < 0 || id >= len(COCOClasses) {
		return "unknown"
	}
	return COCOClasses[id]
}
