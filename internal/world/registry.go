package world

import (
	"fmt"
	"sort"
	"time"

	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/data"
	"github.com/firerescue/viewer/internal/grid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DoorTiming supplies door swing durations. *scripting.Engine satisfies it.
type DoorTiming interface {
	DoorTransition(state string, fallback time.Duration) time.Duration
}

// Options tunes the registry's door transitions.
type Options struct {
	DoorDuration time.Duration
	DoorEasing   anim.Easing
	Timing       DoorTiming // optional
}

// Registry is the coordinate-keyed store of every board entity. Walls and
// doors are keyed by grid.EdgeKey, so lookups are symmetric in their two
// coordinates. Accessed only from the game loop goroutine.
type Registry struct {
	world *ecs.World
	bus   *event.Bus
	sched *anim.Scheduler
	opts  Options
	log   *zap.Logger

	cells  *ecs.Table[grid.Coord, Cell]
	walls  *ecs.Table[grid.EdgeKey, Wall]
	doors  *ecs.Table[grid.EdgeKey, Door]
	pois   *ecs.Table[grid.Coord, POI]
	agents *ecs.Table[int, Agent]
}

func NewRegistry(w *ecs.World, bus *event.Bus, sched *anim.Scheduler, opts Options, log *zap.Logger) *Registry {
	if opts.DoorEasing == nil {
		opts.DoorEasing = anim.SmoothStep
	}
	return &Registry{
		world:  w,
		bus:    bus,
		sched:  sched,
		opts:   opts,
		log:    log.Named("registry"),
		cells:  ecs.NewTable[grid.Coord, Cell](w),
		walls:  ecs.NewTable[grid.EdgeKey, Wall](w),
		doors:  ecs.NewTable[grid.EdgeKey, Door](w),
		pois:   ecs.NewTable[grid.Coord, POI](w),
		agents: ecs.NewTable[int, Agent](w),
	}
}

// World returns the handle pool the registry's tables live in.
func (r *Registry) World() *ecs.World { return r.world }

// ---------- cells ----------

// BuildFromSnapshot replaces the cell table. A repeated coordinate logs a
// warning and keeps the first cell. Cell POI fields are reconciled against
// the POI table; callers create POIs through the POIManager. Returns the
// number of duplicates skipped.
func (r *Registry) BuildFromSnapshot(cells []Cell) int {
	r.cells.Clear()
	dups := 0
	for i := range cells {
		c := cells[i]
		if _, ok := r.cells.Insert(c.Pos, &c); !ok {
			dups++
			r.log.Warn("duplicate cell in snapshot, keeping first", zap.Stringer("pos", c.Pos))
			continue
		}
		r.syncCellPOI(c.Pos)
		r.emitCell(c.Pos)
	}
	return dups
}

// Cell returns the cell at c.
func (r *Registry) Cell(c grid.Coord) (*Cell, bool) { return r.cells.Get(c) }

// CellAt returns the cell at (x, y).
func (r *Registry) CellAt(x, y int32) (*Cell, bool) { return r.cells.Get(grid.C(x, y)) }

// UpdateCell applies fn to the cell at c and emits a CellChanged when the
// visible state differs afterwards.
func (r *Registry) UpdateCell(c grid.Coord, fn func(*Cell)) error {
	cell, ok := r.cells.Get(c)
	if !ok {
		return fmt.Errorf("cell %s: %w", c, ErrCellNotFound)
	}
	before := *cell
	fn(cell)
	cell.Pos = c
	if before.OnFire != cell.OnFire || before.Smoke != cell.Smoke || before.POI != cell.POI {
		r.emitCell(c)
	}
	return nil
}

func (r *Registry) CellCount() int { return r.cells.Len() }

// syncCellPOI makes the cell's POI field mirror the POI table.
func (r *Registry) syncCellPOI(c grid.Coord) bool {
	cell, ok := r.cells.Get(c)
	if !ok {
		return false
	}
	want := POINone
	if p, ok := r.pois.Get(c); ok {
		want = p.Type
	}
	if cell.POI == want {
		return false
	}
	cell.POI = want
	return true
}

func (r *Registry) emitCell(c grid.Coord) {
	cell, ok := r.cells.Get(c)
	if !ok {
		return
	}
	id, _ := r.cells.ID(c)
	event.Emit(r.bus, event.CellChanged{
		ID:     id,
		Pos:    c,
		OnFire: cell.OnFire,
		Smoke:  cell.Smoke,
		POI:    cell.POI.String(),
	})
}

// ---------- walls and doors ----------

// LoadWorld registers every wall and door of a world description. Missing
// structural references are fatal and reported together.
func (r *Registry) LoadWorld(desc *data.WorldDescription) error {
	var errs error
	for i, e := range desc.Walls {
		if _, err := r.RegisterWall(e); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("wall %d: %w", i, err))
		}
	}
	for i, e := range desc.Doors {
		if _, err := r.RegisterDoor(e); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("door %d: %w", i, err))
		}
	}
	return errs
}

// RegisterWall inserts a wall unless one already exists at its edge.
func (r *Registry) RegisterWall(e data.WallEntry) (bool, error) {
	key := grid.Edge(e.From.Coord(), e.To.Coord())
	if e.Model == "" {
		return false, fmt.Errorf("wall %s: %w", key, ErrMissingModel)
	}
	w := &Wall{Edge: key, Model: e.Model, Visual: WallPristine, Active: true}
	return registerEdge(r, "wall", r.walls, key, w), nil
}

// RegisterDoor inserts a door unless one already exists at its edge. Entry
// doors start Open; others start Unknown until a frame reports them.
func (r *Registry) RegisterDoor(e data.DoorEntry) (bool, error) {
	key := grid.Edge(e.From.Coord(), e.To.Coord())
	if e.Pivot == "" {
		return false, fmt.Errorf("door %s: %w", key, ErrMissingPivot)
	}
	if e.Model == "" {
		return false, fmt.Errorf("door %s: %w", key, ErrMissingModel)
	}
	d := &Door{Edge: key, Pivot: e.Pivot, Model: e.Model, Entry: e.Entry}
	if e.Entry {
		d.initial = DoorOpen
	}
	d.State = d.initial
	d.Swing = swingFor(d.State, 0)
	return registerEdge(r, "door", r.doors, key, d), nil
}

func registerEdge[T any](r *Registry, kind string, t *ecs.Table[grid.EdgeKey, T], key grid.EdgeKey, v *T) bool {
	if _, ok := t.Insert(key, v); !ok {
		r.log.Warn("duplicate registration, keeping original",
			zap.String("kind", kind), zap.Stringer("edge", key))
		return false
	}
	return true
}

func lookupEdge[T any](t *ecs.Table[grid.EdgeKey, T], a, b grid.Coord) (*T, bool) {
	return t.Get(grid.Edge(a, b))
}

// Wall returns the wall between a and b in either order.
func (r *Registry) Wall(a, b grid.Coord) (*Wall, bool) { return lookupEdge(r.walls, a, b) }

// Door returns the door between a and b in either order.
func (r *Registry) Door(a, b grid.Coord) (*Door, bool) { return lookupEdge(r.doors, a, b) }

func (r *Registry) WallCount() int { return r.walls.Len() }
func (r *Registry) DoorCount() int { return r.doors.Len() }

// ---------- POIs and agents ----------

// POI returns the POI at c.
func (r *Registry) POI(c grid.Coord) (*POI, bool) { return r.pois.Get(c) }

// POIHandle returns the live handle of the POI at c.
func (r *Registry) POIHandle(c grid.Coord) (ecs.EntityID, bool) { return r.pois.ID(c) }

func (r *Registry) POICount() int { return r.pois.Len() }

// Agent returns the agent with the given server id.
func (r *Registry) Agent(id int) (*Agent, bool) { return r.agents.Get(id) }

// AgentHandle returns the live handle of an agent.
func (r *Registry) AgentHandle(id int) (ecs.EntityID, bool) { return r.agents.ID(id) }

// PutAgent creates the agent on first sight or overwrites its fields.
// spawned reports whether it was created.
func (r *Registry) PutAgent(a Agent) (ag *Agent, spawned bool) {
	if cur, ok := r.agents.Get(a.ID); ok {
		*cur = a
		return cur, false
	}
	v := a
	r.agents.Insert(a.ID, &v)
	return &v, true
}

func (r *Registry) AgentCount() int { return r.agents.Len() }

// CarryingCount returns how many agents carry a POI.
func (r *Registry) CarryingCount() int {
	n := 0
	r.agents.Each(func(_ int, a *Agent) {
		if a.Carrying {
			n++
		}
	})
	return n
}

// ---------- lifecycle ----------

// ResetDynamic drops every agent and POI and puts walls and doors back to
// their registered state. Cells are left for the next snapshot.
func (r *Registry) ResetDynamic() {
	r.agents.Clear()
	r.pois.Each(func(c grid.Coord, p *POI) {
		id, _ := r.pois.ID(c)
		event.Emit(r.bus, event.POIRemoved{ID: id, Pos: c, Type: p.Type.String(), Reason: "reset"})
	})
	r.pois.Clear()
	r.cells.Each(func(c grid.Coord, cell *Cell) {
		if cell.POI != POINone {
			cell.POI = POINone
			r.emitCell(c)
		}
	})
	r.walls.Each(func(k grid.EdgeKey, w *Wall) {
		if w.Damage == 0 && w.Visual == WallPristine && w.Active {
			return
		}
		w.Damage, w.Visual, w.Active = 0, WallPristine, true
		r.emitWall(k, w)
	})
	r.doors.Each(func(k grid.EdgeKey, d *Door) {
		d.transition.Cancel()
		d.transition = nil
		if d.State == d.initial && d.Swing == swingFor(d.initial, 0) {
			return
		}
		d.State = d.initial
		d.Swing = swingFor(d.initial, 0)
		r.emitDoor(k, d, false)
	})
}

// CleanupOrphans drops keys whose handle was destroyed elsewhere and
// re-syncs cell POI fields with the POI table. Idempotent.
func (r *Registry) CleanupOrphans() int {
	n := r.cells.Sweep() + r.walls.Sweep() + r.doors.Sweep() + r.agents.Sweep()
	if swept := r.pois.Sweep(); swept > 0 {
		n += swept
		r.log.Warn("swept orphaned pois", zap.Int("count", swept))
	}
	r.cells.Each(func(c grid.Coord, _ *Cell) {
		if r.syncCellPOI(c) {
			r.emitCell(c)
		}
	})
	return n
}

// ---------- sorted views ----------

func (r *Registry) Cells() []Cell {
	out := make([]Cell, 0, r.cells.Len())
	r.cells.Each(func(_ grid.Coord, c *Cell) { out = append(out, *c) })
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

func (r *Registry) Walls() []Wall {
	out := make([]Wall, 0, r.walls.Len())
	r.walls.Each(func(_ grid.EdgeKey, w *Wall) { out = append(out, *w) })
	sort.Slice(out, func(i, j int) bool { return edgeLess(out[i].Edge, out[j].Edge) })
	return out
}

func (r *Registry) Doors() []Door {
	out := make([]Door, 0, r.doors.Len())
	r.doors.Each(func(_ grid.EdgeKey, d *Door) {
		cp := *d
		cp.transition = nil
		out = append(out, cp)
	})
	sort.Slice(out, func(i, j int) bool { return edgeLess(out[i].Edge, out[j].Edge) })
	return out
}

func (r *Registry) POIs() []POI {
	out := make([]POI, 0, r.pois.Len())
	r.pois.Each(func(_ grid.Coord, p *POI) { out = append(out, *p) })
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

func (r *Registry) Agents() []Agent {
	out := make([]Agent, 0, r.agents.Len())
	r.agents.Each(func(_ int, a *Agent) { out = append(out, *a) })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func edgeLess(a, b grid.EdgeKey) bool {
	if a.A != b.A {
		return a.A.Less(b.A)
	}
	return a.B.Less(b.B)
}
