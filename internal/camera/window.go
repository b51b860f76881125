package camera

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/obstacle.alert/internal/pipeline"
)

// DefaultWindowTitle is the title of the overlay window.
const DefaultWindowTitle = "Single Sensor Obstacle Alert System"

// Window shows frames with the overlay drawn on top and watches for the
// quit key.
type Window struct {
	win     *gocv.Window
	quitKey int
}

// NewWindow opens a display window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title), quitKey: 'q'}
}

// Render draws o on frame, shows it and polls the keyboard for 1ms.
func (w *Window) Render(frame *Frame, o pipeline.Overlay) (bool, error) {
	Draw(&frame.Mat, o)
	w.win.IMShow(frame.Mat)
	key := w.win.WaitKey(1)
	return key&0xFF == w.quitKey, nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}

// Draw paints the overlay primitives onto img.
func Draw(img *gocv.Mat, o pipeline.Overlay) {
	for _, l := range o.Lines {
		gocv.Line(img, l.From, l.To, l.Color, 2)
	}
	for _, t := range o.Texts {
		putText(img, t)
	}
	for _, b := range o.Boxes {
		gocv.Rectangle(img, b.Bounds, b.Color, 2)
		putText(img, b.Label)
	}
	putText(img, o.Status)
	if o.Alert != nil {
		putText(img, pipeline.Text{
			Text:   o.Alert.Text,
			Origin: image.Pt(10, 90),
			Scale:  0.8,
			Color:  pipeline.ColorYellow,
		})
	}
}

func putText(img *gocv.Mat, t pipeline.Text) {
	gocv.PutText(img, t.Text, t.Origin, gocv.FontHersheySimplex, t.Scale, t.Color, 2)
}
