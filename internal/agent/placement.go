package agent

import (
	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/data"
	"github.com/firerescue/viewer/internal/grid"
)

// Placement maps grid coordinates to spatial targets. The controller
// treats the result as opaque except for planar distance.
type Placement interface {
	Position(c grid.Coord) anim.Vec3
	CellSize() float64
}

// GridPlacement lays cells out on the X/Z plane, Y up.
type GridPlacement struct {
	Origin anim.Vec3
	Size   float64
}

func NewGridPlacement(b data.BoardInfo) GridPlacement {
	size := b.CellSize
	if size <= 0 {
		size = 1
	}
	return GridPlacement{Origin: anim.Vec3{X: b.OriginX, Y: b.OriginY, Z: b.OriginZ}, Size: size}
}

func (g GridPlacement) Position(c grid.Coord) anim.Vec3 {
	return anim.Vec3{
		X: g.Origin.X + float64(c.X)*g.Size,
		Y: g.Origin.Y,
		Z: g.Origin.Z + float64(c.Y)*g.Size,
	}
}

func (g GridPlacement) CellSize() float64 { return g.Size }
