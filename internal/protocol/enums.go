package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/firerescue/viewer/internal/world"
	"golang.org/x/text/cases"
)

// Action types.
const (
	ActionInitialState = "initial_state"
	ActionEndOfTurn    = "end_of_turn"
	ActionGameOver     = "game_over"

	ActionMove            = "move"
	ActionPickupPOI       = "pickup_poi"
	ActionExtinguishFire  = "extinguish_fire"
	ActionConvertToSmoke  = "convert_to_smoke"
	ActionRemoveSmoke     = "remove_smoke"
	ActionKnockdown       = "knockdown"
	ActionOpenDoor        = "open_door"
	ActionCloseDoor       = "close_door"
	ActionToggleDoor      = "toggle_door"
	ActionChopWall        = "chop_wall"
	ActionDamageWall      = "damage_wall"
	ActionCutWall         = "cut_wall"
	ActionSmokePlacement  = "smoke_placement"
	ActionFirePropagation = "fire_propagation"
	ActionFlashover       = "flashover"
	ActionPOIReplenish    = "poi_replenish"
)

var (
	ErrUnknownDoorState = errors.New("unknown door state")
	ErrUnknownPOIType   = errors.New("unknown poi type")
)

// Kind classifies a frame for the reconciler.
type Kind uint8

const (
	KindRegularAction Kind = iota
	KindInitialState
	KindEndOfTurn
	KindGameOver
)

func (k Kind) String() string {
	switch k {
	case KindInitialState:
		return "initial_state"
	case KindEndOfTurn:
		return "end_of_turn"
	case KindGameOver:
		return "game_over"
	default:
		return "regular_action"
	}
}

// Kind returns the frame's kind. A frame without an action but with a
// full grid is treated as an initial state.
func (f *Frame) Kind() Kind {
	if f.Action == nil {
		if f.Grid != nil {
			return KindInitialState
		}
		return KindRegularAction
	}
	switch fold(f.Action.Type) {
	case ActionInitialState:
		return KindInitialState
	case ActionEndOfTurn:
		return KindEndOfTurn
	case ActionGameOver:
		return KindGameOver
	default:
		return KindRegularAction
	}
}

// IsDoorAction reports whether the action manipulates a door.
func IsDoorAction(typ string) bool {
	switch fold(typ) {
	case ActionOpenDoor, ActionCloseDoor, ActionToggleDoor:
		return true
	}
	return false
}

// IsWallAction reports whether the action damages a wall.
func IsWallAction(typ string) bool {
	switch fold(typ) {
	case ActionChopWall, ActionDamageWall, ActionCutWall:
		return true
	}
	return false
}

// IsAdjacentAction reports whether the acting agent must stand next to the
// target for the action to be plausible.
func IsAdjacentAction(typ string) bool {
	if IsDoorAction(typ) || IsWallAction(typ) {
		return true
	}
	switch fold(typ) {
	case ActionExtinguishFire, ActionConvertToSmoke, ActionRemoveSmoke:
		return true
	}
	return false
}

// ParseDoorState maps a wire door state to the closed enumeration. The
// server has used both English and Spanish spellings.
func ParseDoorState(s string) (world.DoorState, error) {
	switch fold(s) {
	case "open", "opened", "abierta":
		return world.DoorOpen, nil
	case "closed", "close", "cerrada":
		return world.DoorClosed, nil
	case "destroyed", "destruida":
		return world.DoorDestroyed, nil
	}
	return world.DoorUnknown, fmt.Errorf("%w: %q", ErrUnknownDoorState, s)
}

// ParsePOIType maps a wire POI code. Empty means no POI.
func ParsePOIType(s string) (world.POIType, error) {
	switch fold(s) {
	case "":
		return world.POINone, nil
	case "v", "victim":
		return world.POIVictim, nil
	case "f", "false", "false_alarm", "falsealarm":
		return world.POIFalseAlarm, nil
	}
	return world.POINone, fmt.Errorf("%w: %q", ErrUnknownPOIType, s)
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
