package event

import (
	"time"

	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/grid"
)

// Notifications delivered to the rendering side. Enum-like fields carry
// their String() form so subscribers need no domain imports.

type CellChanged struct {
	ID     ecs.EntityID
	Pos    grid.Coord
	OnFire bool
	Smoke  bool
	POI    string
}

type WallChanged struct {
	ID     ecs.EntityID
	Edge   grid.EdgeKey
	Damage int
	Visual string
	Active bool
}

type DoorChanged struct {
	ID        ecs.EntityID
	Edge      grid.EdgeKey
	State     string
	Entry     bool
	Animating bool
}

type POISpawned struct {
	ID    ecs.EntityID
	Pos   grid.Coord
	Type  string
	Model string
}

type POIRemoved struct {
	ID     ecs.EntityID
	Pos    grid.Coord
	Type   string
	Reason string
}

type AgentSpawned struct {
	ID      ecs.EntityID
	AgentID int
	Pos     grid.Coord
	At      anim.Vec3
}

type AgentUpdated struct {
	AgentID  int
	Pos      grid.Coord
	AP       int
	Carrying bool
}

type AgentMoveStarted struct {
	AgentID  int
	From     anim.Vec3
	To       anim.Vec3
	Duration time.Duration
}

type AgentMoveFinished struct {
	AgentID int
	At      anim.Vec3
}

type AgentActed struct {
	AgentID int
	Action  string
	Target  anim.Vec3
	Facing  float64
	Done    bool
}

type SessionStatus struct {
	State   string
	Turn    int
	Step    int
	Message string
	Err     string
}
