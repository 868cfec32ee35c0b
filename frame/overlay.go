package frame

import (
	"image"
	"image/color"
	"image/draw"
)

// Canvas is a mutable RGBA working surface for overlay drawing. Visualization
// tasks decode the frame once, draw additively, and encode back to JPEG.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas decodes a JPEG payload into a drawable canvas.
func NewCanvas(jpegData []byte) (*Canvas, error) {
	src, err := Decode(jpegData)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, src, b.Min, draw.Src)
	return &Canvas{img: rgba}, nil
}

// Bounds returns the drawable area.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Bounds()
}

// DrawRect draws an axis-aligned rectangle outline with the given stroke
// thickness. Coordinates outside the canvas are clipped.
func (c *Canvas) DrawRect(rect image.Rectangle, col color.Color, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	rect = rect.Canon()

	for t := 0; t < thickness; t++ {
		r := rect.Inset(-t)
		c.hline(r.Min.X, r.Max.X, r.Min.Y, col)
		c.hline(r.Min.X, r.Max.X, r.Max.Y-1, col)
		c.vline(r.Min.Y, r.Max.Y, r.Min.X, col)
		c.vline(r.Min.Y, r.Max.Y, r.Max.X-1, col)
	}
}

// FillRect fills a rectangle, used for progress bars and banners.
func (c *Canvas) FillRect(rect image.Rectangle, col color.Color) {
	rect = rect.Canon().Intersect(c.img.Bounds())
	draw.Draw(c.img, rect, &image.Uniform{C: col}, image.Point{}, draw.Src)
}

// DrawMarker draws a small cross centered on a keypoint.
func (c *Canvas) DrawMarker(x, y int, col color.Color, size int) {
	if size < 1 {
		size = 3
	}
	c.hline(x-size, x+size+1, y, col)
	c.vline(y-size, y+size+1, x, col)
}

// DrawCircle draws a circle outline via the midpoint algorithm.
func (c *Canvas) DrawCircle(cx, cy, radius int, col color.Color) {
	if radius <= 0 {
		return
	}
	x, y, err := radius, 0, 1-radius
	for x >= y {
		c.set(cx+x, cy+y, col)
		c.set(cx+y, cy+x, col)
		c.set(cx-y, cy+x, col)
		c.set(cx-x, cy+y, col)
		c.set(cx-x, cy-y, col)
		c.set(cx-y, cy-x, col)
		c.set(cx+y, cy-x, col)
		c.set(cx+x, cy-y, col)
		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

// EncodeJPEG renders the canvas back to JPEG bytes.
func (c *Canvas) EncodeJPEG() ([]byte, error) {
	return EncodeJPEG(c.img)
}

func (c *Canvas) hline(x0, x1, y int, col color.Color) {
	for x := x0; x < x1; x++ {
		c.set(x, y, col)
	}
}

func (c *Canvas) vline(y0, y1, x int, col color.Color) {
	for y := y0; y < y1; y++ {
		c.set(x, y, col)
	}
}

func (c *Canvas) set(x, y int, col color.Color) {
	if image.Pt(x, y).In(c.img.Bounds()) {
		c.img.Set(x, y, col)
	}
}
