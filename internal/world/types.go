package world

import (
	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/grid"
)

// POIType is the kind of point of interest on a cell.
type POIType uint8

const (
	POINone POIType = iota
	POIVictim
	POIFalseAlarm
)

func (t POIType) String() string {
	switch t {
	case POIVictim:
		return "victim"
	case POIFalseAlarm:
		return "false_alarm"
	default:
		return "none"
	}
}

// DoorState is the state of a door. Destroyed is terminal.
type DoorState uint8

const (
	DoorUnknown DoorState = iota
	DoorOpen
	DoorClosed
	DoorDestroyed
)

func (s DoorState) String() string {
	switch s {
	case DoorOpen:
		return "open"
	case DoorClosed:
		return "closed"
	case DoorDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// WallVisual is the renderer variant derived from a wall's damage level.
type WallVisual uint8

const (
	WallPristine WallVisual = iota
	WallDamaged
	WallDestroyed
)

func (v WallVisual) String() string {
	switch v {
	case WallDamaged:
		return "damaged"
	case WallDestroyed:
		return "destroyed"
	default:
		return "pristine"
	}
}

// MaxWallDamage is the damage level at which a wall is destroyed.
const MaxWallDamage = 2

// Cell is one board square. Accessed only from the game loop goroutine.
type Cell struct {
	Pos    grid.Coord
	OnFire bool
	Smoke  bool
	POI    POIType // mirrors the POI table; None while OnFire

	// Informational, from the snapshot.
	Walls [4]bool // top, right, bottom, left
	Door  int
}

// Wall is a wall segment between two neighbouring cells.
type Wall struct {
	Edge   grid.EdgeKey
	Model  string
	Damage int
	Visual WallVisual
	Active bool // false once destroyed
}

// Door is a door between two neighbouring cells. Swing is the visual
// opening in [0,1] the renderer rotates Pivot by.
type Door struct {
	Edge  grid.EdgeKey
	Pivot string
	Model string
	Entry bool
	State DoorState
	Swing float64

	initial    DoorState
	transition *anim.Task
}

// Transitioning reports whether an open/close animation is in flight.
func (d *Door) Transitioning() bool { return d.transition.Active() }

// POI is a victim or false-alarm marker on a cell.
type POI struct {
	Pos   grid.Coord
	Type  POIType
	Model string
}

// Agent is a firefighter as last reported by the server.
type Agent struct {
	ID       int
	Pos      grid.Coord
	AP       int
	Carrying bool
}
