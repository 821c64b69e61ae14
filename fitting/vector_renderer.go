package fitting

import (
	"image/png"
	"io"

	"github.com/kwv/lomsac/geom"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// VectorRenderer draws a result as vector paths, written as SVG or
// rasterized to PNG
type VectorRenderer struct {
	Width      float64           // Drawing width in millimeters
	Padding    float64           // Padding in millimeters
	Resolution canvas.Resolution // Resolution for PNG output
}

// NewVectorRenderer creates a vector renderer with default settings
func NewVectorRenderer() *VectorRenderer {
	return &VectorRenderer{
		Width:      200.0,
		Padding:    10.0,
		Resolution: canvas.DPI(150),
	}
}

// canvasRenderer is an interface that both svg and rasterizer renderers implement
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the plot as an SVG to the provided writer
func (r *VectorRenderer) RenderToSVG(w io.Writer, res *Result, ds *Dataset) error {
	p, err := newPlot(res, ds)
	if err != nil {
		return err
	}
	scale, width, height := r.layout(p)

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, p, scale, width, height)

	// Close writes the closing tags
	return svgRenderer.Close()
}

// RenderToPNG writes the plot as a PNG to the provided writer
func (r *VectorRenderer) RenderToPNG(w io.Writer, res *Result, ds *Dataset) error {
	p, err := newPlot(res, ds)
	if err != nil {
		return err
	}
	scale, width, height := r.layout(p)

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, p, scale, width, height)

	// Rasterizer implements draw.Image
	return png.Encode(w, rast)
}

// layout keeps the data aspect ratio within Width.
func (r *VectorRenderer) layout(p *plot) (scale, width, height float64) {
	inner := r.Width - 2*r.Padding
	if inner <= 0 {
		inner = r.Width
	}
	scale = inner / p.width()
	return scale, inner + 2*r.Padding, p.height()*scale + 2*r.Padding
}

// renderToCanvas draws the plot (shared logic for SVG and PNG). Canvas
// coordinates grow upwards like the data.
func (r *VectorRenderer) renderToCanvas(renderer canvasRenderer, p *plot, scale, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(q geom.Point) (float64, float64) {
		return (q.X-p.Min.X)*scale + r.Padding, (q.Y-p.Min.Y)*scale + r.Padding
	}
	marker := r.Width / 250

	// Frame around the data bounds
	frameStyle := canvas.DefaultStyle
	frameStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	frameStyle.Stroke = canvas.Paint{Color: canvas.Gray}
	frameStyle.StrokeWidth = marker / 4
	frameStyle.Dashes = []float64{marker, marker}
	frame := canvas.Rectangle(p.width()*scale, p.height()*scale).Translate(r.Padding, r.Padding)
	renderer.RenderPath(frame, frameStyle, canvas.Identity)

	segmentStyle := func(inlier bool) canvas.Style {
		s := canvas.DefaultStyle
		s.Fill = canvas.Paint{Color: canvas.Transparent}
		s.Stroke = canvas.Paint{Color: outlierColor}
		if inlier {
			s.Stroke = canvas.Paint{Color: inlierColor}
		}
		s.StrokeWidth = marker / 3
		return s
	}
	for _, s := range p.Segments {
		path := &canvas.Path{}
		path.MoveTo(toCanvas(s.A))
		path.LineTo(toCanvas(s.B))
		renderer.RenderPath(path, segmentStyle(s.Inlier), canvas.Identity)
	}

	for _, pass := range []bool{false, true} {
		style := canvas.DefaultStyle
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		style.Fill = canvas.Paint{Color: outlierColor}
		if pass {
			style.Fill = canvas.Paint{Color: inlierColor}
		}
		for _, pt := range p.Points {
			if pt.Inlier != pass {
				continue
			}
			cx, cy := toCanvas(pt.P)
			renderer.RenderPath(canvas.Circle(marker).Translate(cx, cy), style, canvas.Identity)
		}
	}

	mappedStyle := canvas.DefaultStyle
	mappedStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	mappedStyle.Stroke = canvas.Paint{Color: mappedColor}
	mappedStyle.StrokeWidth = marker / 3
	for _, q := range p.Mapped {
		cx, cy := toCanvas(q)
		square := canvas.Rectangle(2*marker, 2*marker).Translate(cx-marker, cy-marker)
		renderer.RenderPath(square, mappedStyle, canvas.Identity)
	}

	if len(p.ModelLine) == 2 {
		modelStyle := canvas.DefaultStyle
		modelStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		modelStyle.Stroke = canvas.Paint{Color: modelColor}
		modelStyle.StrokeWidth = marker / 2

		path := &canvas.Path{}
		path.MoveTo(toCanvas(p.ModelLine[0]))
		path.LineTo(toCanvas(p.ModelLine[1]))
		renderer.RenderPath(path, modelStyle, canvas.Identity)
	}
}
