package fitting

import (
	"math"

	"github.com/kwv/lomsac/geom"
	"github.com/kwv/lomsac/solver"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection exports every observation of ds tagged with its inlier
// status. Line results also carry the fitted line clipped to the data bounds.
// Transform results tag each pair with its transfer error and describe the
// transform and its inverse in the result member.
func (r *Result) FeatureCollection(ds *Dataset) *geojson.FeatureCollection {
	inliers := r.inlierSet()
	fc := geojson.NewFeatureCollection()

	switch ds.Kind {
	case KindLine:
		for i, p := range ds.Points {
			fc.Append(observation(orb.Point{p.X, p.Y}, i, inliers[i]))
		}
	case KindPlane:
		for i, p := range ds.Points3D {
			f := observation(orb.Point{p.X, p.Y}, i, inliers[i])
			f.Properties["z"] = p.Z
			fc.Append(f)
		}
	default:
		m, hasModel := r.Transform()
		for i, c := range ds.Pairs {
			ls := orb.LineString{{c.Source.X, c.Source.Y}, {c.Target.X, c.Target.Y}}
			f := observation(ls, i, inliers[i])
			if hasModel {
				f.Properties["transfer_error"] = geom.Distance(geom.TransformPoint(c.Source, m), c.Target)
			}
			fc.Append(f)
		}
	}

	if f := r.modelFeature(ds); f != nil {
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{"result": r.summaryMembers()}
	return fc
}

func observation(g orb.Geometry, index int, inlier bool) *geojson.Feature {
	f := geojson.NewFeature(g)
	f.Properties["index"] = index
	f.Properties["inlier"] = inlier
	return f
}

// modelFeature draws the fitted line across the bounds of the data.
// Other kinds have no single geometry and return nil.
func (r *Result) modelFeature(ds *Dataset) *geojson.Feature {
	l, ok := r.Line()
	if !ok || len(ds.Points) == 0 {
		return nil
	}

	mp := make(orb.MultiPoint, len(ds.Points))
	for i, p := range ds.Points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	a, b, ok := clipLine(l, mp.Bound())
	if !ok {
		return nil
	}

	f := geojson.NewFeature(orb.LineString{{a.X, a.Y}, {b.X, b.Y}})
	f.Properties["model"] = string(r.Kind)
	return f
}

func (r *Result) summaryMembers() map[string]any {
	m := map[string]any{
		"id":             r.ID,
		"kind":           string(r.Kind),
		"num_inliers":    r.NumInliers,
		"num_data":       r.NumData,
		"num_iterations": r.NumIterations,
		"inlier_ratio":   r.InlierRatio,
	}
	if r.Score != nil {
		m["score"] = *r.Score
	}
	if t, ok := r.Transform(); ok {
		m["transform"] = transformMembers(t)
	}
	return m
}

// transformMembers decomposes a fitted transform. The inverse is omitted for
// a singular affine fit.
func transformMembers(t geom.AffineMatrix) map[string]any {
	members := map[string]any{
		"rotation_deg": t.RotationAngle() * 180 / math.Pi,
		"scale":        t.Scale(),
		"translation":  []float64{t.Tx, t.Ty},
	}
	if inv, ok := geom.InvertMatrix(t); ok {
		members["inverse"] = inv
	}
	return members
}

func (r *Result) inlierSet() map[int]bool {
	set := make(map[int]bool, len(r.InlierIndices))
	for _, i := range r.InlierIndices {
		set[i] = true
	}
	return set
}

// clipLine returns the stretch of l covered by the projections of the
// corners of bound.
func clipLine(l solver.Line, bound orb.Bound) (geom.Point, geom.Point, bool) {
	corners := []geom.Point{
		{X: bound.Min.X(), Y: bound.Min.Y()},
		{X: bound.Max.X(), Y: bound.Min.Y()},
		{X: bound.Max.X(), Y: bound.Max.Y()},
		{X: bound.Min.X(), Y: bound.Max.Y()},
	}
	// Direction along the line.
	dx, dy := l.B, -l.A
	origin := l.Project(corners[0])

	minT, maxT := 0.0, 0.0
	for i, c := range corners {
		t := (c.X-origin.X)*dx + (c.Y-origin.Y)*dy
		if i == 0 || t < minT {
			minT = t
		}
		if i == 0 || t > maxT {
			maxT = t
		}
	}
	if maxT-minT <= 0 {
		return geom.Point{}, geom.Point{}, false
	}
	a := geom.Point{X: origin.X + minT*dx, Y: origin.Y + minT*dy}
	b := geom.Point{X: origin.X + maxT*dx, Y: origin.Y + maxT*dy}
	return a, b, true
}
