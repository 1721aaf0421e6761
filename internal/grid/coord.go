package grid

import (
	"fmt"
	"math"
)

// Coord is an integer board coordinate.
type Coord struct {
	X int32
	Y int32
}

// C is shorthand for Coord{x, y}.
func C(x, y int32) Coord { return Coord{X: x, Y: y} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Less orders coordinates by X, then Y.
func (c Coord) Less(o Coord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	return c.Y < o.Y
}

// Adjacent reports whether o is one of the four orthogonal neighbours of c.
func (c Coord) Adjacent(o Coord) bool {
	dx := abs32(c.X - o.X)
	dy := abs32(c.Y - o.Y)
	return dx+dy == 1
}

// Chebyshev returns the king-move distance between two coordinates.
func (c Coord) Chebyshev(o Coord) int32 {
	dx := abs32(c.X - o.X)
	dy := abs32(c.Y - o.Y)
	if dy > dx {
		return dy
	}
	return dx
}

// Dist returns the Euclidean distance in cell units.
func (c Coord) Dist(o Coord) float64 {
	dx := float64(c.X - o.X)
	dy := float64(c.Y - o.Y)
	return math.Hypot(dx, dy)
}

func abs32(n int32) int32 {
	if n < 0 {
		return -n
	}
	return n
}
