package world

import "errors"

var (
	ErrEdgeNotFound       = errors.New("no wall or door at edge")
	ErrCellNotFound       = errors.New("no cell at coordinate")
	ErrEntryDoor          = errors.New("entry door is fixed open")
	ErrDoorDestroyed      = errors.New("door is destroyed")
	ErrTransitionInFlight = errors.New("door transition already in flight")
	ErrInvalidDoorState   = errors.New("invalid door state request")
	ErrInvalidDamage      = errors.New("invalid wall damage level")
	ErrNoTemplate         = errors.New("no poi template for type")
	ErrCellOnFire         = errors.New("cell is on fire")

	// Fatal at world build.
	ErrMissingPivot = errors.New("door has no pivot")
	ErrMissingModel = errors.New("edge entity has no model")
)
