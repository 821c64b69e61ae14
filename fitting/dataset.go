package fitting

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/kwv/lomsac/geom"
	"github.com/kwv/lomsac/solver"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Kind names the model a dataset is fitted with.
type Kind string

const (
	KindLine       Kind = "line"
	KindPlane      Kind = "plane"
	KindRigid      Kind = "rigid"
	KindSimilarity Kind = "similarity"
	KindAffine     Kind = "affine"
)

// Kinds lists every supported model kind.
var Kinds = []Kind{KindLine, KindPlane, KindRigid, KindSimilarity, KindAffine}

// IsTransform reports whether k fits a transform between correspondences.
func (k Kind) IsTransform() bool {
	return k == KindRigid || k == KindSimilarity || k == KindAffine
}

// ParseKind accepts a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Dataset holds the observations of one kind. Only the slice matching Kind
// is populated.
type Dataset struct {
	Kind     Kind
	Points   []geom.Point
	Points3D []r3.Vector
	Pairs    []solver.Correspondence
}

// Len returns the number of observations.
func (d *Dataset) Len() int {
	switch d.Kind {
	case KindLine:
		return len(d.Points)
	case KindPlane:
		return len(d.Points3D)
	default:
		return len(d.Pairs)
	}
}

// LoadDataset reads a GeoJSON FeatureCollection from path.
func LoadDataset(kind Kind, path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}
	return ParseDataset(kind, data)
}

// ParseDataset decodes a GeoJSON FeatureCollection into observations.
// Lines take Point features, planes take Point features with a numeric "z"
// property, and transforms take two-vertex LineStrings from source to target.
func ParseDataset(kind Kind, data []byte) (*Dataset, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing GeoJSON: %w", err)
	}

	ds := &Dataset{Kind: kind}
	for i, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			return nil, fmt.Errorf("%w: feature %d has no geometry", ErrInvalidGeometry, i)
		}
		if err := ds.add(f); err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
	}

	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

func (d *Dataset) add(f *geojson.Feature) error {
	switch d.Kind {
	case KindLine:
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return fmt.Errorf("%w: %s is not a Point", ErrInvalidGeometry, f.Geometry.GeoJSONType())
		}
		d.Points = append(d.Points, geom.Point{X: p.X(), Y: p.Y()})

	case KindPlane:
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return fmt.Errorf("%w: %s is not a Point", ErrInvalidGeometry, f.Geometry.GeoJSONType())
		}
		z, err := zProperty(f.Properties)
		if err != nil {
			return err
		}
		d.Points3D = append(d.Points3D, r3.Vector{X: p.X(), Y: p.Y(), Z: z})

	default:
		ls, ok := f.Geometry.(orb.LineString)
		if !ok || len(ls) != 2 {
			return fmt.Errorf("%w: want a two-vertex LineString, got %s", ErrInvalidGeometry, f.Geometry.GeoJSONType())
		}
		d.Pairs = append(d.Pairs, solver.Correspondence{
			Source: geom.Point{X: ls[0].X(), Y: ls[0].Y()},
			Target: geom.Point{X: ls[1].X(), Y: ls[1].Y()},
		})
	}
	return nil
}

// zProperty reads the elevation of a plane observation, defaulting to 0.
func zProperty(props geojson.Properties) (float64, error) {
	v, ok := props["z"]
	if !ok || v == nil {
		return 0, nil
	}
	z, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: property z is %T, want a number", ErrInvalidGeometry, v)
	}
	return z, nil
}
