package visualizer

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/fogleman/gg"
)

// Drawing constants for the orb.
const (
	ViewportScale = 0.4 // orb size relative to the smaller viewport side
	radiusInset   = 10.0
	spikeInset    = 10.0
	spikeLength   = 30.0
	spikeStep     = 10 // degrees
	spikeWidth    = 3.0
)

var (
	gradientTop    = color.RGBA{0xff, 0xff, 0xff, 0xff}
	gradientBottom = color.RGBA{0x3b, 0x82, 0xf6, 0xff}
)

// SizeFor returns the square canvas side for a viewport.
func SizeFor(viewportW, viewportH int) int {
	return int(math.Min(float64(viewportW), float64(viewportH)) * ViewportScale)
}

// Renderer draws the orb onto a square canvas. It reuses one canvas, so an
// image returned by Render is only valid until the next call.
type Renderer struct {
	size int
	dc   *gg.Context
}

// NewRenderer creates a renderer sized for the viewport.
func NewRenderer(viewportW, viewportH int) *Renderer {
	r := &Renderer{}
	r.Resize(viewportW, viewportH)
	return r
}

// Resize recomputes the canvas for a new viewport.
func (r *Renderer) Resize(viewportW, viewportH int) {
	r.setSize(SizeFor(viewportW, viewportH))
}

func (r *Renderer) setSize(size int) {
	size = max(size, 1)
	if r.dc != nil && size == r.size {
		return
	}
	r.size = size
	r.dc = gg.NewContext(size, size)
}

// Size returns the canvas side in pixels.
func (r *Renderer) Size() int { return r.size }

// Radius returns the radius of the base circle.
func (r *Renderer) Radius() float64 { return float64(r.size)/2 - radiusInset }

// Render draws one frame. With nil data only the static circle is drawn;
// otherwise a spike every 10 degrees shows the magnitude of the matching
// bin.
func (r *Renderer) Render(data []byte) image.Image {
	dc := r.dc
	size := float64(r.size)
	cx, cy := size/2, size/2
	radius := r.Radius()

	dc.SetRGBA(0, 0, 0, 0)
	dc.Clear()

	grad := gg.NewLinearGradient(0, 0, 0, size)
	grad.AddColorStop(0, gradientTop)
	grad.AddColorStop(1, gradientBottom)
	dc.SetFillStyle(grad)
	dc.DrawCircle(cx, cy, math.Max(radius, 0))
	dc.Fill()

	if len(data) > 0 {
		dc.SetLineWidth(spikeWidth)
		dc.SetRGBA(1, 1, 1, 0.8)
		for deg := 0; deg < 360; deg += spikeStep {
			angle := float64(deg) * math.Pi / 180
			bin := int(math.Floor(float64(deg) / 360 * float64(len(data))))
			value := float64(data[bin]) / 255

			inner := radius - spikeInset
			outer := radius + value*spikeLength
			cos, sin := math.Cos(angle), math.Sin(angle)
			dc.DrawLine(cx+inner*cos, cy+inner*sin, cx+outer*cos, cy+outer*sin)
			dc.Stroke()
		}
	}
	return dc.Image()
}

// EncodePNG writes the last rendered frame as PNG.
func (r *Renderer) EncodePNG(w io.Writer) error {
	return r.dc.EncodePNG(w)
}
