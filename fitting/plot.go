package fitting

import (
	"fmt"

	"github.com/kwv/lomsac/geom"
	"github.com/paulmach/orb"
)

// plotPoint is an observation marker.
type plotPoint struct {
	P      geom.Point
	Inlier bool
}

// plotSegment joins a correspondence's source and target.
type plotSegment struct {
	A, B   geom.Point
	Inlier bool
}

// plot is the renderer-independent scene of one result: observations, the
// fitted model and the world bounds that contain them.
type plot struct {
	Title     string
	Points    []plotPoint
	Segments  []plotSegment
	ModelLine []geom.Point // two points when the model is a line
	Mapped    []geom.Point // sources mapped through a fitted transform
	Min, Max  geom.Point
}

func newPlot(res *Result, ds *Dataset) (*plot, error) {
	if res.Kind != ds.Kind {
		return nil, fmt.Errorf("result kind %s does not match dataset kind %s", res.Kind, ds.Kind)
	}
	if res.NumData != ds.Len() {
		return nil, fmt.Errorf("result covers %d observations, dataset has %d", res.NumData, ds.Len())
	}

	inliers := res.inlierSet()
	p := &plot{Title: res.Summary()}
	var mp orb.MultiPoint
	add := func(q geom.Point) { mp = append(mp, orb.Point{q.X, q.Y}) }

	switch ds.Kind {
	case KindLine:
		for i, q := range ds.Points {
			p.Points = append(p.Points, plotPoint{P: q, Inlier: inliers[i]})
			add(q)
		}
	case KindPlane:
		for i, q := range ds.Points3D {
			pt := geom.Point{X: q.X, Y: q.Y}
			p.Points = append(p.Points, plotPoint{P: pt, Inlier: inliers[i]})
			add(pt)
		}
	default:
		m, hasModel := res.Transform()
		for i, c := range ds.Pairs {
			p.Segments = append(p.Segments, plotSegment{A: c.Source, B: c.Target, Inlier: inliers[i]})
			p.Points = append(p.Points, plotPoint{P: c.Target, Inlier: inliers[i]})
			add(c.Source)
			add(c.Target)
			if hasModel {
				p.Mapped = append(p.Mapped, geom.TransformPoint(c.Source, m))
			}
		}
	}

	b := mp.Bound()
	// Keep a non-zero extent so a single observation still gets a frame.
	if b.Max.X()-b.Min.X() < 1e-9 || b.Max.Y()-b.Min.Y() < 1e-9 {
		b = b.Pad(1)
	}
	p.Min = geom.Point{X: b.Min.X(), Y: b.Min.Y()}
	p.Max = geom.Point{X: b.Max.X(), Y: b.Max.Y()}

	if l, ok := res.Line(); ok {
		if a, c, ok := clipLine(l, b); ok {
			p.ModelLine = []geom.Point{a, c}
		}
	}
	return p, nil
}

func (p *plot) width() float64  { return p.Max.X - p.Min.X }
func (p *plot) height() float64 { return p.Max.Y - p.Min.Y }
