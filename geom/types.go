// Package geom holds the 2D point and affine transform algebra shared by the
// correspondence solvers and the renderers.
package geom

import "math"

// Point represents a 2D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Determinant of the linear part.
func (m AffineMatrix) Determinant() float64 {
	return m.A*m.D - m.B*m.C
}

// Scale is sqrt(|det|), the length ratio of a similarity transform.
func (m AffineMatrix) Scale() float64 {
	return math.Sqrt(math.Abs(m.Determinant()))
}

// RotationAngle extracts the rotation of the linear part in radians.
func (m AffineMatrix) RotationAngle() float64 {
	return math.Atan2(m.C, m.A)
}
