package reconcile

import (
	"fmt"

	"github.com/firerescue/viewer/internal/agent"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/world"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options tunes reconciliation policy.
type Options struct {
	MinActivePOIs    int
	AdjacentDistance float64 // cells; 0 uses the controller default
	MoveSpeed        float64 // 0 uses the controller default
}

// Outcome summarises one applied frame.
type Outcome struct {
	Frame       int
	Turn        int
	Kind        protocol.Kind
	Summary     *protocol.Summary
	Result      string // game over only
	Message     string
	Diagnostics int
}

// Reconciler applies frames to the registry in arrival order. It is the
// only writer of the registry. Game loop goroutine only.
type Reconciler struct {
	reg    *world.Registry
	pois   *world.POIManager
	agents *agent.Controller
	bus    *event.Bus
	opts   Options
	log    *zap.Logger
}

func New(reg *world.Registry, pois *world.POIManager, agents *agent.Controller, bus *event.Bus, opts Options, log *zap.Logger) *Reconciler {
	return &Reconciler{
		reg:    reg,
		pois:   pois,
		agents: agents,
		bus:    bus,
		opts:   opts,
		log:    log.Named("reconcile"),
	}
}

// frameApply collects the diagnostics of one frame.
type frameApply struct {
	r    *Reconciler
	f    *protocol.Frame
	errs error
	n    int
}

func (a *frameApply) warn(payload string, err error) {
	a.n++
	d := &Diagnostic{Frame: a.f.Frame, Payload: payload, Err: err}
	a.r.log.Warn("frame payload skipped",
		zap.Int("frame", a.f.Frame),
		zap.String("payload", payload),
		zap.Error(err),
	)
	a.errs = multierr.Append(a.errs, d)
}

// ApplyBatch applies frames strictly in the given order. A frame index that
// does not increase is reported but still applied. Frames after a game
// over are skipped. The returned error combines every Diagnostic.
func (r *Reconciler) ApplyBatch(frames []protocol.Frame) ([]Outcome, error) {
	var errs error
	out := make([]Outcome, 0, len(frames))
	last := 0
	over := false
	for i := range frames {
		f := &frames[i]
		if over {
			errs = multierr.Append(errs, &Diagnostic{Frame: f.Frame, Payload: "frame", Err: ErrAfterGameOver})
			r.log.Warn("frame after game over skipped", zap.Int("frame", f.Frame))
			continue
		}
		if i > 0 && f.Frame <= last {
			errs = multierr.Append(errs, &Diagnostic{
				Frame:   f.Frame,
				Payload: "frame",
				Err:     fmt.Errorf("%w: %d after %d", ErrFrameOrder, f.Frame, last),
			})
			r.log.Warn("frame index out of order", zap.Int("frame", f.Frame), zap.Int("previous", last))
		}
		last = f.Frame
		o, err := r.Apply(f)
		errs = multierr.Append(errs, err)
		out = append(out, o)
		if o.Kind == protocol.KindGameOver {
			over = true
		}
	}
	return out, errs
}

// Apply applies one frame. Non-fatal problems skip the offending payload
// and come back combined in the error; the rest of the frame is applied.
func (r *Reconciler) Apply(f *protocol.Frame) (Outcome, error) {
	a := &frameApply{r: r, f: f}
	kind := f.Kind()
	o := Outcome{Frame: f.Frame, Turn: f.Turn, Kind: kind, Summary: f.Summary}

	switch kind {
	case protocol.KindInitialState:
		r.applyInitial(a)
	case protocol.KindEndOfTurn:
		r.applyEndOfTurn(a)
	case protocol.KindGameOver:
		if f.Action != nil {
			o.Result, o.Message = f.Action.Result, f.Action.Message
		}
	default:
		r.applyAction(a)
	}
	o.Diagnostics = a.n
	return o, a.errs
}

// applyInitial discards dynamic state and rebuilds from the snapshot.
func (r *Reconciler) applyInitial(a *frameApply) {
	f := a.f
	r.reg.ResetDynamic()
	r.agents.Reset()

	if f.Grid == nil {
		a.warn("grid", ErrMissingGrid)
	} else {
		r.rebuild(a, f.Grid)
	}
	r.applyPOIs(a, f.POIs)
	r.applyWallDamage(a, f.WallDamage)
	for _, d := range f.Doors {
		st, err := protocol.ParseDoorState(d.State)
		if err != nil {
			a.warn("doors", err)
			continue
		}
		if _, err := r.reg.SnapDoorState(d.From.Coord(), d.To.Coord(), st); err != nil {
			a.warn("doors", err)
		}
	}
	r.applyAgents(a, f.Firefighters)
}

// applyAction applies a regular action frame in the fixed payload order.
func (r *Reconciler) applyAction(a *frameApply) {
	f := a.f
	r.applyCellDeltas(a, f.GridChanges)
	r.applyPOIs(a, f.POIs)
	r.applyWallDamage(a, f.WallDamage)
	r.orientActor(a)
	r.applyDoors(a, f.Doors)
	r.applyAgents(a, f.Firefighters)
}

// applyEndOfTurn applies deltas, or a full rebuild when only a snapshot is
// present, then the POI and agent lists, then sweeps orphans.
func (r *Reconciler) applyEndOfTurn(a *frameApply) {
	f := a.f
	switch {
	case len(f.GridChanges) > 0:
		r.applyCellDeltas(a, f.GridChanges)
	case f.Grid != nil:
		r.rebuild(a, f.Grid)
	}
	if f.POIs != nil {
		r.syncPOIs(a, f.POIs)
	}
	r.applyWallDamage(a, f.WallDamage)
	r.applyDoors(a, f.Doors)
	r.applyAgents(a, f.Firefighters)

	if n := r.reg.CleanupOrphans(); n > 0 {
		r.log.Warn("orphaned registry entries removed", zap.Int("count", n))
	}
	if total := r.pois.TotalActive(); total < r.opts.MinActivePOIs {
		r.log.Warn("active poi count below minimum",
			zap.Int("active", total),
			zap.Int("minimum", r.opts.MinActivePOIs),
			zap.Int("turn", f.Turn),
		)
	}
}

func (r *Reconciler) applyWallDamage(a *frameApply, updates []protocol.WallDamage) {
	for _, w := range updates {
		if _, err := r.reg.SetWallDamage(w.From.Coord(), w.To.Coord(), w.Damage); err != nil {
			a.warn("wall_damage", err)
		}
	}
}

func (r *Reconciler) applyDoors(a *frameApply, updates []protocol.DoorUpdate) {
	for _, d := range updates {
		st, err := protocol.ParseDoorState(d.State)
		if err != nil {
			a.warn("doors", err)
			continue
		}
		if _, err := r.reg.SetDoorState(d.From.Coord(), d.To.Coord(), st); err != nil {
			a.warn("doors", err)
		}
	}
}
