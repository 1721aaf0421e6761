package grid

import "fmt"

// EdgeKey identifies the boundary between two cells. A is always the
// lexicographically smaller coordinate, so Edge(a, b) == Edge(b, a).
// The key is a plain comparable struct: two keys are equal exactly when
// their unordered pairs are equal, for any int32 coordinate range.
type EdgeKey struct {
	A Coord
	B Coord
}

// Edge returns the canonical key for the unordered pair {a, b}.
func Edge(a, b Coord) EdgeKey {
	if b.Less(a) {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

// EdgeXY is Edge for raw integer pairs as they appear on the wire.
func EdgeXY(ax, ay, bx, by int32) EdgeKey {
	return Edge(Coord{X: ax, Y: ay}, Coord{X: bx, Y: by})
}

// Has reports whether c is one of the edge endpoints.
func (k EdgeKey) Has(c Coord) bool { return k.A == c || k.B == c }

// Other returns the endpoint opposite c. ok is false when c is not on the edge.
func (k EdgeKey) Other(c Coord) (Coord, bool) {
	switch c {
	case k.A:
		return k.B, true
	case k.B:
		return k.A, true
	}
	return Coord{}, false
}

// Orthogonal reports whether the endpoints are neighbouring cells.
func (k EdgeKey) Orthogonal() bool { return k.A.Adjacent(k.B) }

// Mid returns the midpoint of the edge in cell units.
func (k EdgeKey) Mid() (x, y float64) {
	return float64(k.A.X+k.B.X) / 2, float64(k.A.Y+k.B.Y) / 2
}

func (k EdgeKey) String() string { return fmt.Sprintf("%s-%s", k.A, k.B) }
