package world

import (
	"errors"
	"testing"
	"time"

	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/grid"
)

var (
	doorA = grid.C(0, 0)
	doorB = grid.C(1, 0)
	entA  = grid.C(0, 1)
	entB  = grid.C(0, 2)
)

func TestDoorOpenAnimatesThenSettles(t *testing.T) {
	f := newFixture(t)
	changed, err := f.reg.SetDoorState(doorB, doorA, DoorOpen)
	if err != nil || !changed {
		t.Fatalf("SetDoorState = %v, %v", changed, err)
	}
	d, _ := f.reg.Door(doorA, doorB)
	if d.State != DoorOpen || !d.Transitioning() {
		t.Fatalf("door = %+v", d)
	}
	f.sched.Advance(50 * time.Millisecond)
	if d.Swing < 0.49 || d.Swing > 0.51 {
		t.Fatalf("Swing mid-transition = %v", d.Swing)
	}
	f.sched.Advance(50 * time.Millisecond)
	if d.Transitioning() || d.Swing != 1 {
		t.Fatalf("door after transition: swing=%v transitioning=%v", d.Swing, d.Transitioning())
	}
}

func TestDoorRequestDuringTransitionIsDropped(t *testing.T) {
	f := newFixture(t)
	f.reg.SetDoorState(doorA, doorB, DoorOpen)
	_, err := f.reg.SetDoorState(doorA, doorB, DoorClosed)
	if !errors.Is(err, ErrTransitionInFlight) {
		t.Fatalf("err = %v, want ErrTransitionInFlight", err)
	}
	d, _ := f.reg.Door(doorA, doorB)
	if d.State != DoorOpen {
		t.Fatalf("state = %v, request was not dropped", d.State)
	}
	// Same-state request is a no-op, not an in-flight error.
	if changed, err := f.reg.SetDoorState(doorA, doorB, DoorOpen); err != nil || changed {
		t.Fatalf("same-state request = %v, %v", changed, err)
	}
}

func TestDoorDestroyedIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.reg.SetDoorState(doorA, doorB, DoorOpen)
	changed, err := f.reg.SetDoorState(doorA, doorB, DoorDestroyed)
	if err != nil || !changed {
		t.Fatalf("destroy during swing = %v, %v", changed, err)
	}
	d, _ := f.reg.Door(doorA, doorB)
	if d.Transitioning() {
		t.Fatal("swing still in flight after destroy")
	}
	for _, st := range []DoorState{DoorOpen, DoorClosed} {
		if _, err := f.reg.SetDoorState(doorA, doorB, st); !errors.Is(err, ErrDoorDestroyed) {
			t.Fatalf("%v after destroy: %v", st, err)
		}
	}
	if changed, err := f.reg.SetDoorState(doorA, doorB, DoorDestroyed); err != nil || changed {
		t.Fatalf("repeat destroy = %v, %v", changed, err)
	}
	if _, ok := f.reg.Door(doorA, doorB); !ok {
		t.Fatal("destroyed door no longer addressable")
	}
}

func TestEntryDoorNeverChanges(t *testing.T) {
	f := newFixture(t)
	for _, st := range []DoorState{DoorClosed, DoorDestroyed, DoorOpen, DoorUnknown, DoorClosed} {
		if _, err := f.reg.SetDoorState(entA, entB, st); !errors.Is(err, ErrEntryDoor) {
			t.Fatalf("%v: err = %v", st, err)
		}
		if _, err := f.reg.SnapDoorState(entA, entB, st); !errors.Is(err, ErrEntryDoor) {
			t.Fatalf("snap %v: err = %v", st, err)
		}
		d, _ := f.reg.Door(entA, entB)
		if d.State != DoorOpen {
			t.Fatalf("entry door state = %v", d.State)
		}
	}
}

func TestDoorUnknownEdge(t *testing.T) {
	f := newFixture(t)
	before := f.reg.DoorCount()
	_, err := f.reg.SetDoorState(grid.C(0, 0), grid.C(0, 1), DoorClosed)
	if !errors.Is(err, ErrEdgeNotFound) {
		t.Fatalf("err = %v", err)
	}
	if f.reg.DoorCount() != before {
		t.Fatal("lookup miss created a door")
	}
}

func TestSnapDoorCancelsSwing(t *testing.T) {
	f := newFixture(t)
	f.reg.SetDoorState(doorA, doorB, DoorOpen)
	if _, err := f.reg.SnapDoorState(doorA, doorB, DoorClosed); err != nil {
		t.Fatal(err)
	}
	d, _ := f.reg.Door(doorA, doorB)
	f.sched.Advance(time.Second)
	if d.State != DoorClosed || d.Swing != 0 {
		t.Fatalf("door = state %v swing %v", d.State, d.Swing)
	}
}

func TestWallDamageLevels(t *testing.T) {
	f := newFixture(t)
	a, b := grid.C(1, 1), grid.C(1, 0)
	var seen []event.WallChanged
	event.Subscribe(f.bus, func(ev event.WallChanged) { seen = append(seen, ev) })

	steps := []struct {
		level   int
		changed bool
		visual  WallVisual
		stored  int
	}{
		{1, true, WallDamaged, 1},
		{1, false, WallDamaged, 1},
		{0, true, WallPristine, 0},
		{5, true, WallDestroyed, 2},
		{0, false, WallDestroyed, 0},
		{1, false, WallDestroyed, 1},
	}
	for i, s := range steps {
		changed, err := f.reg.SetWallDamage(a, b, s.level)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		w, _ := f.reg.Wall(a, b)
		if changed != s.changed || w.Visual != s.visual || w.Damage != s.stored {
			t.Fatalf("step %d: changed=%v visual=%v damage=%d", i, changed, w.Visual, w.Damage)
		}
	}
	w, _ := f.reg.Wall(a, b)
	if w.Active {
		t.Fatal("destroyed wall still active")
	}

	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if len(seen) != 3 {
		t.Fatalf("WallChanged notifications = %d, want 3", len(seen))
	}

	if _, err := f.reg.SetWallDamage(a, b, -1); !errors.Is(err, ErrInvalidDamage) {
		t.Fatalf("negative level: %v", err)
	}
	if _, err := f.reg.SetWallDamage(grid.C(5, 5), grid.C(5, 6), 1); !errors.Is(err, ErrEdgeNotFound) {
		t.Fatalf("unknown wall: %v", err)
	}
}

type fixedTiming time.Duration

func (d fixedTiming) DoorTransition(string, time.Duration) time.Duration { return time.Duration(d) }

func TestDoorTimingOverride(t *testing.T) {
	f := newFixture(t)
	f.reg.opts.Timing = fixedTiming(10 * time.Millisecond)
	f.reg.SetDoorState(doorA, doorB, DoorClosed)
	f.sched.Advance(10 * time.Millisecond)
	d, _ := f.reg.Door(doorA, doorB)
	if d.Transitioning() {
		t.Fatal("timing override ignored")
	}
}
