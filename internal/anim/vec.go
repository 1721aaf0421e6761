package anim

import (
	"fmt"
	"math"
)

// Vec3 is a spatial position owned by the renderer. Y is the vertical axis;
// planar math works on X and Z only.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

// Lerp interpolates from a to b; t is not clamped.
func (a Vec3) Lerp(b Vec3, t float64) Vec3 {
	return Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Dist is the full 3D distance.
func (a Vec3) Dist(b Vec3) float64 {
	d := a.Sub(b)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// PlanarDist ignores the vertical axis.
func (a Vec3) PlanarDist(b Vec3) float64 {
	return math.Hypot(a.X-b.X, a.Z-b.Z)
}

// YawTo returns the heading in degrees from a toward b on the X/Z plane,
// 0 along +Z, clockwise positive. ok is false when b is directly above a.
func (a Vec3) YawTo(b Vec3) (float64, bool) {
	dx, dz := b.X-a.X, b.Z-a.Z
	if dx == 0 && dz == 0 {
		return 0, false
	}
	return math.Atan2(dx, dz) * 180 / math.Pi, true
}

func (a Vec3) String() string { return fmt.Sprintf("(%.2f,%.2f,%.2f)", a.X, a.Y, a.Z) }
