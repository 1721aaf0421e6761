package world

import (
	"fmt"
	"time"

	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/grid"
)

const defaultDoorDuration = 400 * time.Millisecond

// SetDoorState requests a door state change, animating Open/Closed swings.
// changed is false for a no-op request. Errors:
//
//	ErrEdgeNotFound       no door between a and b
//	ErrEntryDoor          entry doors never change
//	ErrDoorDestroyed      destroyed doors accept nothing
//	ErrTransitionInFlight a swing is still animating; the request is dropped
//	ErrInvalidDoorState   Unknown cannot be requested
//
// Destroyed is applied at once and cancels any swing in flight.
func (r *Registry) SetDoorState(a, b grid.Coord, want DoorState) (bool, error) {
	return r.setDoor(grid.Edge(a, b), want, true)
}

// SnapDoorState applies a state without animation, cancelling any swing.
// Used for snapshots, where doors appear in their final pose.
func (r *Registry) SnapDoorState(a, b grid.Coord, want DoorState) (bool, error) {
	return r.setDoor(grid.Edge(a, b), want, false)
}

func (r *Registry) setDoor(key grid.EdgeKey, want DoorState, animate bool) (bool, error) {
	d, ok := r.doors.Get(key)
	if !ok {
		return false, fmt.Errorf("door %s: %w", key, ErrEdgeNotFound)
	}
	switch {
	case d.Entry:
		return false, fmt.Errorf("door %s: %w", key, ErrEntryDoor)
	case want == DoorUnknown:
		return false, fmt.Errorf("door %s -> %s: %w", key, want, ErrInvalidDoorState)
	case d.State == DoorDestroyed && want == DoorDestroyed:
		return false, nil
	case d.State == DoorDestroyed:
		return false, fmt.Errorf("door %s -> %s: %w", key, want, ErrDoorDestroyed)
	case d.State == want:
		return false, nil
	}

	if want == DoorDestroyed {
		d.transition.Cancel()
		d.transition = nil
		d.State = DoorDestroyed
		r.emitDoor(key, d, false)
		return true, nil
	}

	if d.Transitioning() {
		if animate {
			return false, fmt.Errorf("door %s -> %s: %w", key, want, ErrTransitionInFlight)
		}
		d.transition.Cancel()
		d.transition = nil
	}

	from := d.Swing
	to := swingFor(want, from)
	d.State = want
	if !animate {
		d.Swing = to
		r.emitDoor(key, d, false)
		return true, nil
	}

	d.transition = r.sched.Start("door "+key.String(), r.doorDuration(want), r.opts.DoorEasing,
		func(p float64) { d.Swing = from + (to-from)*p },
		func() {
			d.Swing = to
			d.transition = nil
			r.emitDoor(key, d, false)
		},
	)
	r.emitDoor(key, d, true)
	return true, nil
}

func (r *Registry) doorDuration(st DoorState) time.Duration {
	fallback := r.opts.DoorDuration
	if fallback <= 0 {
		fallback = defaultDoorDuration
	}
	if r.opts.Timing == nil {
		return fallback
	}
	return r.opts.Timing.DoorTransition(st.String(), fallback)
}

// swingFor maps a state to its visual opening. Destroyed and Unknown keep
// the current pose.
func swingFor(st DoorState, cur float64) float64 {
	switch st {
	case DoorOpen:
		return 1
	case DoorClosed:
		return 0
	default:
		return cur
	}
}

func (r *Registry) emitDoor(key grid.EdgeKey, d *Door, animating bool) {
	id, _ := r.doors.ID(key)
	event.Emit(r.bus, event.DoorChanged{
		ID:        id,
		Edge:      key,
		State:     d.State.String(),
		Entry:     d.Entry,
		Animating: animating,
	})
}

// SetWallDamage stores a damage level for the wall between a and b. Levels
// above MaxWallDamage clamp to it. The stored level always updates;
// changed reports whether the visual variant did. A destroyed wall keeps
// its visual for good.
func (r *Registry) SetWallDamage(a, b grid.Coord, level int) (bool, error) {
	key := grid.Edge(a, b)
	w, ok := r.walls.Get(key)
	if !ok {
		return false, fmt.Errorf("wall %s: %w", key, ErrEdgeNotFound)
	}
	if level < 0 {
		return false, fmt.Errorf("wall %s level %d: %w", key, level, ErrInvalidDamage)
	}
	if level > MaxWallDamage {
		level = MaxWallDamage
	}
	w.Damage = level
	if w.Visual == WallDestroyed {
		return false, nil
	}
	v := wallVisual(level)
	if v == w.Visual {
		return false, nil
	}
	w.Visual = v
	w.Active = v != WallDestroyed
	r.emitWall(key, w)
	return true, nil
}

func wallVisual(level int) WallVisual {
	switch {
	case level >= MaxWallDamage:
		return WallDestroyed
	case level == 1:
		return WallDamaged
	default:
		return WallPristine
	}
}

func (r *Registry) emitWall(key grid.EdgeKey, w *Wall) {
	id, _ := r.walls.ID(key)
	event.Emit(r.bus, event.WallChanged{
		ID:     id,
		Edge:   key,
		Damage: w.Damage,
		Visual: w.Visual.String(),
		Active: w.Active,
	})
}
