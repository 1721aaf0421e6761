package reconcile

import (
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/firerescue/viewer/internal/agent"
	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/data"
	"github.com/firerescue/viewer/internal/grid"
	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const layout = `
board: {width: 6, height: 6, cell_size: 1}
walls:
  - {from: [2, 0], to: [3, 0], model: wall}
doors:
  - {from: [0, 0], to: [1, 0], pivot: hinge, model: door}
  - {from: [5, 0], to: [5, 1], pivot: hinge, model: arch, entry: true}
poi_templates:
  - {type: victim, model: poi_v}
  - {type: false_alarm, model: poi_f}
`

type harness struct {
	rec    *Reconciler
	reg    *world.Registry
	pois   *world.POIManager
	agents *agent.Controller
	sched  *anim.Scheduler
	bus    *event.Bus
	logs   *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)
	desc, err := data.ParseWorld([]byte(layout))
	if err != nil {
		t.Fatal(err)
	}
	bus := event.NewBus()
	sched := anim.NewScheduler()
	reg := world.NewRegistry(ecs.NewWorld(), bus, sched, world.Options{DoorDuration: 100 * time.Millisecond}, log)
	if err := reg.LoadWorld(desc); err != nil {
		t.Fatal(err)
	}
	pois := world.NewPOIManager(reg, desc, log)
	agents := agent.NewController(sched, bus, agent.NewGridPlacement(desc.Board), nil,
		agent.Options{Speed: 1, Easing: anim.Linear}, log)
	rec := New(reg, pois, agents, bus, Options{MinActivePOIs: 3}, log)
	return &harness{rec: rec, reg: reg, pois: pois, agents: agents, sched: sched, bus: bus, logs: logs}
}

func frame(t *testing.T, src string) protocol.Frame {
	t.Helper()
	var f protocol.Frame
	if err := json.Unmarshal([]byte(src), &f); err != nil {
		t.Fatalf("frame %s: %v", src, err)
	}
	return f
}

func (h *harness) apply(t *testing.T, src string) error {
	t.Helper()
	f := frame(t, src)
	_, err := h.rec.Apply(&f)
	return err
}

const twoCells = `{"frame": 1, "action": {"type": "initial_state"},
  "grid": {"width": 2, "height": 1, "cells": [
    {"x": 0, "y": 0, "fire": false, "smoke": false, "poi": null},
    {"x": 1, "y": 0, "fire": false, "smoke": false, "poi": "v"}]},
  "firefighters": [{"id": 1, "x": 0, "y": 0, "ap": 4, "carrying": false}]}`

func TestInitialSnapshot(t *testing.T) {
	h := newHarness(t)
	if err := h.apply(t, twoCells); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if h.reg.CellCount() != 2 {
		t.Fatalf("cells = %d, want 2", h.reg.CellCount())
	}
	if h.reg.AgentCount() != 1 {
		t.Fatalf("agents = %d, want 1", h.reg.AgentCount())
	}
	a, _ := h.reg.Agent(1)
	if a.Pos != grid.C(0, 0) || a.AP != 4 || a.Carrying {
		t.Fatalf("agent = %+v", a)
	}
	if b, ok := h.agents.Body(1); !ok || b.Cell != grid.C(0, 0) {
		t.Fatal("agent body not spawned at (0,0)")
	}
	if c, _ := h.reg.CellAt(1, 0); c.POI != world.POIVictim {
		t.Fatalf("snapshot poi lost: %v", c.POI)
	}
}

func TestInitialStateDiscardsPreviousSession(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "action": {"type": "move", "firefighter_id": 2},
	  "firefighters": [{"id": 2, "x": 1, "y": 0, "ap": 3}],
	  "doors": [{"from": [0, 0], "to": [1, 0], "state": "open"}],
	  "wall_damage": [{"from": [2, 0], "to": [3, 0], "damage": 1}]}`)

	if err := h.apply(t, twoCells); err != nil {
		t.Fatal(err)
	}
	if h.reg.AgentCount() != 1 || h.agents.Count() != 1 {
		t.Fatalf("agents = %d bodies = %d after reset", h.reg.AgentCount(), h.agents.Count())
	}
	w, _ := h.reg.Wall(grid.C(2, 0), grid.C(3, 0))
	d, _ := h.reg.Door(grid.C(0, 0), grid.C(1, 0))
	if w.Damage != 0 || d.State != world.DoorUnknown {
		t.Fatalf("edges not reset: wall %d door %v", w.Damage, d.State)
	}
	if h.reg.POICount() != 1 {
		t.Fatalf("pois = %d", h.reg.POICount())
	}
}

func TestFireClearsPOI(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	if err := h.apply(t, `{"frame": 2, "action": {"type": "fire_propagation", "firefighter_id": -1},
	  "grid_changes": [{"x": 1, "y": 0, "fire": true}]}`); err != nil {
		t.Fatal(err)
	}
	c, _ := h.reg.CellAt(1, 0)
	if !c.OnFire || c.Smoke || c.POI != world.POINone {
		t.Fatalf("cell = %+v", c)
	}
	if _, ok := h.reg.POI(grid.C(1, 0)); ok {
		t.Fatal("poi entity survived fire")
	}
}

func TestFireWinsOverPOIInSameDelta(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "grid_changes": [{"x": 0, "y": 0, "fire": true, "smoke": true, "poi": "v"}]}`)
	c, _ := h.reg.CellAt(0, 0)
	if !c.OnFire || c.Smoke || c.POI != world.POINone || h.reg.POICount() != 1 {
		t.Fatalf("cell = %+v pois = %d", c, h.reg.POICount())
	}
}

func TestSmokeAlonePreservesPOI(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "grid_changes": [{"x": 1, "y": 0, "smoke": true}]}`)
	c, _ := h.reg.CellAt(1, 0)
	if !c.Smoke || c.POI != world.POIVictim {
		t.Fatalf("cell = %+v", c)
	}
}

func TestExplicitPOIPaths(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)

	h.apply(t, `{"frame": 2, "grid_changes": [{"x": 1, "y": 0, "poi": null}]}`)
	if c, _ := h.reg.CellAt(1, 0); c.POI != world.POINone || h.reg.POICount() != 0 {
		t.Fatal("explicit null did not clear poi")
	}

	h.apply(t, `{"frame": 3, "grid_changes": [{"x": 1, "y": 0, "smoke": true, "poi": "f"}]}`)
	c, _ := h.reg.CellAt(1, 0)
	if !c.Smoke || c.POI != world.POIFalseAlarm {
		t.Fatalf("smoke+poi delta = %+v", c)
	}

	h.apply(t, `{"frame": 4, "grid_changes": [{"x": 1, "y": 0, "smoke": false}]}`)
	if c, _ := h.reg.CellAt(1, 0); c.Smoke || c.POI != world.POIFalseAlarm {
		t.Fatalf("smoke clear = %+v", c)
	}
}

func randomDelta(rng *rand.Rand) protocol.CellDelta {
	d := protocol.CellDelta{X: int32(rng.Intn(2))}
	b := func() *bool { v := rng.Intn(2) == 0; return &v }
	if rng.Intn(2) == 0 {
		d.Fire = b()
	}
	if rng.Intn(2) == 0 {
		d.Smoke = b()
	}
	switch rng.Intn(4) {
	case 0:
		d.POI = protocol.Some("v")
	case 1:
		d.POI = protocol.Some("f")
	case 2:
		d.POI = protocol.Some("")
	}
	return d
}

func TestCellDeltaProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		h := newHarness(t)
		h.apply(t, twoCells)
		// Random prior history.
		for j := 0; j < rng.Intn(4); j++ {
			h.rec.applyCellDelta(randomDelta(rng))
		}
		d := randomDelta(rng)
		c := d.Coord()
		before, _ := h.reg.Cell(c)
		prevPOI := before.POI

		h.rec.applyCellDelta(d)
		once := *mustCell(t, h, c)
		h.rec.applyCellDelta(d)
		twice := *mustCell(t, h, c)

		if once != twice {
			t.Fatalf("delta %+v not idempotent: %+v then %+v", d, once, twice)
		}
		if d.Fire != nil && *d.Fire && (once.POI != world.POINone || once.Smoke) {
			t.Fatalf("fire invariant broken by %+v: %+v", d, once)
		}
		if (d.Fire == nil || !*d.Fire) && d.Smoke != nil && *d.Smoke && !d.POI.Set && once.POI != prevPOI {
			t.Fatalf("smoke-only delta %+v changed poi %v -> %v", d, prevPOI, once.POI)
		}
		if once.OnFire && once.POI != world.POINone {
			t.Fatalf("burning cell holds poi after %+v: %+v", d, once)
		}
		if pois := h.reg.POIs(); len(pois) > 2 {
			t.Fatalf("more pois than cells: %+v", pois)
		}
	}
}

func mustCell(t *testing.T, h *harness, c grid.Coord) *world.Cell {
	t.Helper()
	cell, ok := h.reg.Cell(c)
	if !ok {
		t.Fatalf("no cell at %v", c)
	}
	return cell
}

func TestDoorUpdateForUnknownEdge(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	doors, walls := h.reg.DoorCount(), h.reg.WallCount()

	err := h.apply(t, `{"frame": 2, "action": {"type": "close_door", "firefighter_id": 1},
	  "doors": [{"from": [0, 0], "to": [0, 1], "state": "closed"}]}`)
	if !errors.Is(err, world.ErrEdgeNotFound) {
		t.Fatalf("err = %v, want ErrEdgeNotFound", err)
	}
	var d *Diagnostic
	if !errors.As(err, &d) || d.Payload != "doors" {
		t.Fatalf("diagnostic = %+v", d)
	}
	if h.reg.DoorCount() != doors || h.reg.WallCount() != walls {
		t.Fatal("lookup miss changed the registry")
	}
	if h.logs.FilterMessage("frame payload skipped").Len() == 0 {
		t.Fatal("no warning logged")
	}
}

func TestBadPayloadDoesNotAbortFrame(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	err := h.apply(t, `{"frame": 2, "action": {"type": "move", "firefighter_id": 1},
	  "grid_changes": [{"x": 9, "y": 9, "smoke": true}, {"x": 0, "y": 0, "smoke": true}],
	  "doors": [{"from": [0, 0], "to": [1, 0], "state": "ajar"}],
	  "firefighters": [{"id": 1, "x": 1, "y": 0, "ap": 3}]}`)
	if !errors.Is(err, world.ErrCellNotFound) || !errors.Is(err, protocol.ErrUnknownDoorState) {
		t.Fatalf("err = %v", err)
	}
	if c, _ := h.reg.CellAt(0, 0); !c.Smoke {
		t.Fatal("delta after a bad one was not applied")
	}
	if a, _ := h.reg.Agent(1); a.Pos != grid.C(1, 0) {
		t.Fatal("agent payload skipped after a bad door payload")
	}
}

func TestMoveSupersessionAcrossFrames(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	_, err := h.rec.ApplyBatch([]protocol.Frame{
		frame(t, `{"frame": 1, "action": {"type": "move", "firefighter_id": 1}, "firefighters": [{"id": 1, "x": 5, "y": 5, "ap": 3}]}`),
		frame(t, `{"frame": 2, "action": {"type": "move", "firefighter_id": 1}, "firefighters": [{"id": 1, "x": 1, "y": 1, "ap": 2}]}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	b, _ := h.agents.Body(1)
	for i := 0; i < 200 && b.Moving(); i++ {
		h.sched.Advance(50 * time.Millisecond)
	}
	if b.Pos != (anim.Vec3{X: 1, Z: 1}) {
		t.Fatalf("final pos = %v, want (1,1)", b.Pos)
	}
	if a, _ := h.reg.Agent(1); a.Pos != grid.C(1, 1) || a.AP != 2 {
		t.Fatalf("agent = %+v", a)
	}
}

func TestKnockdownTeleports(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "action": {"type": "knockdown", "firefighter_id": 1, "ambulance_pos": [5, 0]},
	  "firefighters": [{"id": 1, "x": 5, "y": 0, "ap": 0}]}`)
	b, _ := h.agents.Body(1)
	if b.Moving() || b.Pos != (anim.Vec3{X: 5}) {
		t.Fatalf("knockdown body = %+v moving=%v", b.Pos, b.Moving())
	}
}

func TestPickupRemovesPOI(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	var removed []event.POIRemoved
	event.Subscribe(h.bus, func(e event.POIRemoved) { removed = append(removed, e) })

	h.apply(t, `{"frame": 2, "action": {"type": "move", "firefighter_id": 1},
	  "firefighters": [{"id": 1, "x": 1, "y": 0, "ap": 3, "carrying": false}]}`)
	h.apply(t, `{"frame": 3, "action": {"type": "pickup_poi", "firefighter_id": 1, "target": [1, 0], "poi_type": "v"},
	  "firefighters": [{"id": 1, "x": 1, "y": 0, "ap": 2, "carrying": true}]}`)

	if h.reg.POICount() != 0 {
		t.Fatal("picked-up poi still on board")
	}
	if h.pois.TotalActive() != 1 {
		t.Fatalf("TotalActive = %d, want 1 (carried)", h.pois.TotalActive())
	}
	h.bus.SwapBuffers()
	h.bus.DispatchAll()
	if len(removed) != 1 || removed[0].Reason != world.ReasonPickup {
		t.Fatalf("removed = %+v", removed)
	}
}

func TestFalseAlarmRevealed(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "pois": [{"x": 0, "y": 0, "type": "f"}]}`)
	h.apply(t, `{"frame": 3, "action": {"type": "pickup_poi", "firefighter_id": 1, "target": [0, 0], "poi_type": "f"},
	  "firefighters": [{"id": 1, "x": 0, "y": 0, "ap": 3, "carrying": false}]}`)
	if _, ok := h.reg.POI(grid.C(0, 0)); ok {
		t.Fatal("false alarm not discarded")
	}
}

func TestDoorActionOrientsActor(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	if err := h.apply(t, `{"frame": 2, "action": {"type": "open_door", "firefighter_id": 1},
	  "doors": [{"from": [1, 0], "to": [0, 0], "state": "abierta"}]}`); err != nil {
		t.Fatal(err)
	}
	d, _ := h.reg.Door(grid.C(0, 0), grid.C(1, 0))
	if d.State != world.DoorOpen {
		t.Fatalf("door = %v", d.State)
	}
	b, _ := h.agents.Body(1)
	if !b.Acting() || math.Abs(b.Facing-90) > 1e-9 {
		t.Fatalf("actor acting=%v facing=%v", b.Acting(), b.Facing)
	}
}

func TestImplausibleActionStillApplied(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	err := h.apply(t, `{"frame": 2, "action": {"type": "chop_wall", "firefighter_id": 1},
	  "wall_damage": [{"from": [2, 0], "to": [3, 0], "damage": 1}]}`)
	if !errors.Is(err, ErrImplausible) {
		t.Fatalf("err = %v", err)
	}
	if w, _ := h.reg.Wall(grid.C(2, 0), grid.C(3, 0)); w.Damage != 1 {
		t.Fatal("implausible wall damage not applied")
	}
}

func TestEndOfTurnSyncsPOIsAndWarnsLow(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "pois": [{"x": 0, "y": 0, "type": "f"}]}`)
	if h.reg.POICount() != 2 {
		t.Fatalf("pois = %d", h.reg.POICount())
	}
	if err := h.apply(t, `{"frame": 3, "action": {"type": "end_of_turn"},
	  "pois": [{"x": 1, "y": 0, "type": "v"}],
	  "firefighters": [{"id": 1, "x": 0, "y": 0, "ap": 4}]}`); err != nil {
		t.Fatal(err)
	}
	if _, ok := h.reg.POI(grid.C(0, 0)); ok {
		t.Fatal("unlisted poi kept at end of turn")
	}
	if h.logs.FilterMessage("active poi count below minimum").Len() != 1 {
		t.Fatal("low poi count not warned")
	}
}

func TestEndOfTurnSnapshotRebuild(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 2, "action": {"type": "end_of_turn"},
	  "grid": {"cells": [
	    {"x": 0, "y": 0, "fire": true, "poi": null},
	    {"x": 1, "y": 0, "smoke": true, "poi": "f"}]}}`)
	c0, _ := h.reg.CellAt(0, 0)
	c1, _ := h.reg.CellAt(1, 0)
	if !c0.OnFire || !c1.Smoke || c1.POI != world.POIFalseAlarm {
		t.Fatalf("rebuild: %+v %+v", c0, c1)
	}
	if h.reg.POICount() != 1 {
		t.Fatalf("pois = %d", h.reg.POICount())
	}
}

func TestSnapshotFireClearsExistingPOI(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	if h.reg.POICount() != 1 || h.pois.TotalActive() != 1 {
		t.Fatalf("setup: pois = %d active = %d", h.reg.POICount(), h.pois.TotalActive())
	}
	var removed []event.POIRemoved
	event.Subscribe(h.bus, func(e event.POIRemoved) { removed = append(removed, e) })

	h.apply(t, `{"frame": 2, "action": {"type": "end_of_turn"},
	  "grid": {"cells": [
	    {"x": 0, "y": 0, "fire": false, "poi": null},
	    {"x": 1, "y": 0, "fire": true, "poi": "v"}]}}`)

	c, _ := h.reg.CellAt(1, 0)
	if !c.OnFire || c.POI != world.POINone {
		t.Fatalf("burning cell = %+v", c)
	}
	if _, ok := h.reg.POI(grid.C(1, 0)); ok || h.reg.POICount() != 0 {
		t.Fatalf("poi left under fire, pois = %d", h.reg.POICount())
	}
	if h.pois.TotalActive() != 0 {
		t.Fatalf("TotalActive = %d, want 0", h.pois.TotalActive())
	}
	h.bus.SwapBuffers()
	h.bus.DispatchAll()
	if len(removed) != 1 || removed[0].Reason != world.ReasonFire {
		t.Fatalf("removed = %+v", removed)
	}
}

func TestInitialSnapshotFireRejectsPOI(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	h.apply(t, `{"frame": 1, "action": {"type": "initial_state"},
	  "grid": {"width": 2, "height": 1, "cells": [
	    {"x": 0, "y": 0, "fire": false, "smoke": false, "poi": null},
	    {"x": 1, "y": 0, "fire": true, "smoke": false, "poi": "v"}]},
	  "firefighters": [{"id": 1, "x": 0, "y": 0, "ap": 4, "carrying": false}]}`)

	c, _ := h.reg.CellAt(1, 0)
	if !c.OnFire || c.POI != world.POINone || h.reg.POICount() != 0 || h.pois.TotalActive() != 0 {
		t.Fatalf("cell = %+v pois = %d active = %d", c, h.reg.POICount(), h.pois.TotalActive())
	}
}

func TestBatchOrderAndGameOver(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	out, err := h.rec.ApplyBatch([]protocol.Frame{
		frame(t, `{"frame": 2, "grid_changes": [{"x": 0, "y": 0, "smoke": true}]}`),
		frame(t, `{"frame": 2, "grid_changes": [{"x": 1, "y": 0, "smoke": true}]}`),
		frame(t, `{"frame": 3, "action": {"type": "game_over", "result": "lose", "message": "building collapsed"}}`),
		frame(t, `{"frame": 4, "grid_changes": [{"x": 0, "y": 0, "fire": true}]}`),
	})
	if !errors.Is(err, ErrFrameOrder) || !errors.Is(err, ErrAfterGameOver) {
		t.Fatalf("err = %v", err)
	}
	if len(out) != 3 || out[2].Kind != protocol.KindGameOver || out[2].Result != "lose" {
		t.Fatalf("outcomes = %+v", out)
	}
	if c, _ := h.reg.CellAt(1, 0); !c.Smoke {
		t.Fatal("out-of-order frame was dropped")
	}
	if c, _ := h.reg.CellAt(0, 0); c.OnFire {
		t.Fatal("frame after game over was applied")
	}
}

func TestUnknownAgentInDeltaIsSpawned(t *testing.T) {
	h := newHarness(t)
	h.apply(t, twoCells)
	err := h.apply(t, `{"frame": 2, "firefighters": [{"id": 9, "x": 1, "y": 0, "ap": 4}]}`)
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := h.agents.Body(9); !ok {
		t.Fatal("unknown agent not spawned")
	}
}
