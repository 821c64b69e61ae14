package fitting

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/kwv/lomsac/geom"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Plot colors shared by both renderers.
var (
	inlierColor  = color.RGBA{0, 0, 139, 255}     // Dark blue
	outlierColor = color.RGBA{170, 170, 170, 255} // Grey
	modelColor   = color.RGBA{220, 20, 60, 255}   // Crimson
	mappedColor  = color.RGBA{34, 139, 34, 255}   // Forest green
	background   = color.RGBA{240, 240, 240, 255}
)

const (
	headerHeight = 20
	maxImageSide = 4000
)

// RasterRenderer draws a result as a PNG with a text header
type RasterRenderer struct {
	Width   int // Image width in pixels
	Padding int // Padding around the data in pixels
}

// NewRasterRenderer creates a renderer with default settings
func NewRasterRenderer(width int) *RasterRenderer {
	if width <= 0 {
		width = 800
	}
	return &RasterRenderer{Width: width, Padding: 30}
}

// Render draws the observations of ds and the model of res.
func (r *RasterRenderer) Render(res *Result, ds *Dataset) (*image.RGBA, error) {
	p, err := newPlot(res, ds)
	if err != nil {
		return nil, err
	}

	width := min(max(r.Width, 2*r.Padding+10), maxImageSide)
	scale := float64(width-2*r.Padding) / p.width()
	height := int(p.height()*scale) + 2*r.Padding + headerHeight
	if height > maxImageSide {
		height = maxImageSide
		scale = float64(height-2*r.Padding-headerHeight) / p.height()
		width = int(p.width()*scale) + 2*r.Padding
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, background)
		}
	}

	// Image rows grow downwards; data y grows upwards.
	toImage := func(q geom.Point) (int, int) {
		x := int((q.X-p.Min.X)*scale) + r.Padding
		y := height - r.Padding - int((q.Y-p.Min.Y)*scale)
		return x, y
	}

	for _, s := range p.Segments {
		c := outlierColor
		if s.Inlier {
			c = inlierColor
		}
		x0, y0 := toImage(s.A)
		x1, y1 := toImage(s.B)
		drawLine(img, x0, y0, x1, y1, c)
	}

	// Outliers first so inliers stay visible where they overlap.
	for _, pass := range []bool{false, true} {
		for _, pt := range p.Points {
			if pt.Inlier != pass {
				continue
			}
			c := outlierColor
			if pt.Inlier {
				c = inlierColor
			}
			x, y := toImage(pt.P)
			drawCircle(img, x, y, 3, c)
		}
	}

	for _, q := range p.Mapped {
		x, y := toImage(q)
		drawSquare(img, x, y, 4, mappedColor)
	}

	if len(p.ModelLine) == 2 {
		x0, y0 := toImage(p.ModelLine[0])
		x1, y1 := toImage(p.ModelLine[1])
		for d := -1; d <= 1; d++ {
			drawLine(img, x0, y0+d, x1, y1+d, modelColor)
		}
	}

	drawText(img, 8, 15, p.Title, color.RGBA{0, 0, 0, 255})
	return img, nil
}

// RenderPNG writes the rendered result as a PNG
func (r *RasterRenderer) RenderPNG(w io.Writer, res *Result, ds *Dataset) error {
	img, err := r.Render(res, ds)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// drawCircle draws a filled circle
func drawCircle(img *image.RGBA, cx, cy, radius int, c color.RGBA) {
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= radius*radius {
				setPixel(img, cx+dx, cy+dy, c)
			}
		}
	}
}

// drawSquare draws a filled square
func drawSquare(img *image.RGBA, cx, cy, size int, c color.RGBA) {
	half := size / 2
	for dy := -half; dy <= half; dy++ {
		for dx := -half; dx <= half; dx++ {
			setPixel(img, cx+dx, cy+dy, c)
		}
	}
}

// drawLine rasterizes a segment with Bresenham's algorithm
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := int(math.Abs(float64(x1 - x0)))
	dy := -int(math.Abs(float64(y1 - y0)))
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		setPixel(img, x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func setPixel(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{X: x, Y: y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawText renders text onto an image at the specified position
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
