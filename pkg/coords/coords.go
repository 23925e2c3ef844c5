// Package coords converts between the coordinate space of PDF content
// (origin bottom-left, Y up, 72 units per inch) and the device pixel space
// of an on-screen viewport (origin top-left, Y down, 96 pixels per inch).
//
// All functions are pure; the export path relies on ToDevice/ToDoc and
// UnitsToPixels/PixelsToUnits being exact inverses so that geometry captured
// on screen maps back onto the page without drift.
package coords

import "math"

// PixelsPerUnit is the fixed ratio between device pixels and document units:
// 96 pixels per inch over 72 units per inch.
const PixelsPerUnit = 96.0 / 72.0

// ToDevice maps a document-space point onto device pixels for a page of the
// given height in document units, at the given zoom scale.
func ToDevice(docX, docY, pageHeight, scale float64) (px, py float64) {
	return docX * scale, (pageHeight - docY) * scale
}

// ToDoc maps a device-pixel point back into document space. It is the
// inverse of ToDevice.
func ToDoc(px, py, pageHeight, scale float64) (docX, docY float64) {
	return px / scale, pageHeight - py/scale
}

// UnitsToPixels converts a length in document units to device pixels at the
// given zoom scale.
func UnitsToPixels(u, scale float64) float64 {
	return u * PixelsPerUnit * scale
}

// PixelsToUnits converts a length in device pixels back to document units.
// It is the inverse of UnitsToPixels.
func PixelsToUnits(p, scale float64) float64 {
	return p / PixelsPerUnit / scale
}

// Matrix is a PDF-style affine transform (scaleX, skewX, skewY, scaleY, x, y)
// applied to row vectors: x' = a·x + c·y + e, y' = b·x + d·y + f.
type Matrix [6]float64

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Translation returns a transform moving points by (tx, ty).
func Translation(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// Scaled returns a transform scaling points by (sx, sy).
func Scaled(sx, sy float64) Matrix {
	return Matrix{sx, 0, 0, sy, 0, 0}
}

// Mul returns the transform that applies m first, then n.
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Apply transforms the point (x, y).
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// Inverse returns the inverse transform and reports whether m is invertible.
func (m Matrix) Inverse() (Matrix, bool) {
	det := m[0]*m[3] - m[1]*m[2]
	if det == 0 {
		return Matrix{}, false
	}
	inv := 1 / det
	a := m[3] * inv
	b := -m[1] * inv
	c := -m[2] * inv
	d := m[0] * inv
	return Matrix{a, b, c, d, -(m[4]*a + m[5]*c), -(m[4]*b + m[5]*d)}, true
}

// ScaleX returns the horizontal scale magnitude of the transform.
func (m Matrix) ScaleX() float64 {
	return math.Hypot(m[0], m[1])
}

// ScaleY returns the vertical scale magnitude of the transform. For PDF text
// matrices this carries the effective font size.
func (m Matrix) ScaleY() float64 {
	return math.Hypot(m[2], m[3])
}
