package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/firerescue/viewer/internal/agent"
	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/data"
	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/reconcile"
	"github.com/firerescue/viewer/internal/world"
	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Ingest after the session has finished.
	ErrClosed = errors.New("session closed")
	// ErrNilBatch is returned by Ingest for a nil batch. State is untouched.
	ErrNilBatch = errors.New("nil batch")
)

// Session states reported in SessionStatus.
const (
	StateWaiting  = "waiting"
	StateRunning  = "running"
	StateError    = "error"
	StateFinished = "finished"
)

// Timing is the scripted timing source shared by doors and agents.
// *scripting.Engine satisfies it.
type Timing interface {
	agent.Timing
	world.DoorTiming
}

// Config wires a session.
type Config struct {
	World     *data.WorldDescription
	Timing    Timing // optional
	Doors     world.Options
	Agents    agent.Options
	Reconcile reconcile.Options
}

// Stats are running totals reported by the server plus local counters.
type Stats struct {
	Turn        int
	Step        int
	Rescued     int
	Lost        int
	Damage      int
	POIsActive  int
	POIsInDeck  int
	Batches     int
	Frames      int
	Diagnostics int
}

// FrameHook observes every applied frame, in order.
type FrameHook func(f *protocol.Frame, o reconcile.Outcome)

// Session owns the registry, the POI manager, the agent controller and the
// reconciler, and is the single entry point for transport results. Game
// loop goroutine only.
type Session struct {
	ecs    *ecs.World
	bus    *event.Bus
	sched  *anim.Scheduler
	reg    *world.Registry
	pois   *world.POIManager
	agents *agent.Controller
	rec    *reconcile.Reconciler
	log    *zap.Logger

	state   string
	message string
	lastErr error
	stats   Stats
	hooks   []FrameHook
}

// New builds a session over a world description. Walls or doors missing
// their structural references fail here.
func New(cfg Config, log *zap.Logger) (*Session, error) {
	if cfg.World == nil {
		return nil, errors.New("session: no world description")
	}
	log = log.Named("session")
	w := ecs.NewWorld()
	bus := event.NewBus()
	sched := anim.NewScheduler()

	doors := cfg.Doors
	var agentTiming agent.Timing
	if cfg.Timing != nil {
		doors.Timing = cfg.Timing
		agentTiming = cfg.Timing
	}
	reg := world.NewRegistry(w, bus, sched, doors, log)
	if err := reg.LoadWorld(cfg.World); err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	pois := world.NewPOIManager(reg, cfg.World, log)
	agents := agent.NewController(sched, bus, agent.NewGridPlacement(cfg.World.Board), agentTiming, cfg.Agents, log)
	rec := reconcile.New(reg, pois, agents, bus, cfg.Reconcile, log)

	log.Info("session ready",
		zap.Int("walls", reg.WallCount()),
		zap.Int("doors", reg.DoorCount()),
	)
	return &Session{
		ecs:    w,
		bus:    bus,
		sched:  sched,
		reg:    reg,
		pois:   pois,
		agents: agents,
		rec:    rec,
		log:    log,
		state:  StateWaiting,
	}, nil
}

func (s *Session) Bus() *event.Bus                   { return s.bus }
func (s *Session) Scheduler() *anim.Scheduler        { return s.sched }
func (s *Session) Registry() *world.Registry         { return s.reg }
func (s *Session) POIs() *world.POIManager           { return s.pois }
func (s *Session) Agents() *agent.Controller         { return s.agents }
func (s *Session) ECS() *ecs.World                   { return s.ecs }
func (s *Session) Stats() Stats                      { return s.stats }
func (s *Session) State() string                     { return s.state }
func (s *Session) Closed() bool                      { return s.state == StateFinished }
func (s *Session) LastError() error                  { return s.lastErr }
func (s *Session) Message() string                   { return s.message }
func (s *Session) OnFrame(h FrameHook)               { s.hooks = append(s.hooks, h) }
func (s *Session) Advance(dt time.Duration) int      { return s.sched.Advance(dt) }
func (s *Session) Reconciler() *reconcile.Reconciler { return s.rec }

// Ingest applies a batch in order. A terminal batch closes the session.
// The returned error combines the batch's non-fatal diagnostics; entity
// state reflects every payload that could be applied.
func (s *Session) Ingest(b *protocol.Batch) error {
	if s.Closed() {
		return ErrClosed
	}
	if b == nil {
		return ErrNilBatch
	}
	if b.Finished() {
		s.IngestFinished(*b.Step, b.Message)
		return nil
	}

	outcomes, err := s.rec.ApplyBatch(b.Frames)
	s.state = StateRunning
	s.lastErr = nil
	s.stats.Batches++
	s.stats.Turn = b.Turn
	s.applySummary(b.Summary)

	var over *reconcile.Outcome
	for i, o := range outcomes {
		s.stats.Frames++
		s.stats.Diagnostics += o.Diagnostics
		if o.Turn > s.stats.Turn {
			s.stats.Turn = o.Turn
		}
		s.applySummary(o.Summary)
		for _, h := range s.hooks {
			h(&b.Frames[i], o)
		}
		if o.Kind == protocol.KindGameOver {
			over = &outcomes[i]
		}
	}
	if err != nil {
		s.log.Warn("batch applied with diagnostics",
			zap.Int("turn", b.Turn),
			zap.Int("frames", len(b.Frames)),
			zap.Error(err),
		)
	}

	if over != nil {
		s.finish(s.stats.Turn, over.Message, over.Result)
		return err
	}
	s.emitStatus("")
	return err
}

// IngestFinished closes the session. Later Ingest calls return ErrClosed.
func (s *Session) IngestFinished(step int, message string) {
	s.stats.Step = step
	s.finish(step, message, "")
}

// IngestError records a transport failure. Entity state is untouched.
func (s *Session) IngestError(err error) {
	s.lastErr = err
	if !s.Closed() {
		s.state = StateError
	}
	s.log.Warn("transport error", zap.Error(err))
	s.emitStatus(err.Error())
}

func (s *Session) finish(step int, message, result string) {
	if s.Closed() {
		return
	}
	s.state = StateFinished
	s.message = message
	s.log.Info("session finished",
		zap.Int("step", step),
		zap.String("message", message),
		zap.String("result", result),
		zap.Int("rescued", s.stats.Rescued),
		zap.Int("lost", s.stats.Lost),
	)
	s.emitStatus("")
}

func (s *Session) applySummary(sum *protocol.Summary) {
	if sum == nil {
		return
	}
	s.stats.Rescued = sum.Rescued
	s.stats.Lost = sum.Lost
	s.stats.Damage = sum.Damage
	if sum.POIsActive != nil {
		s.stats.POIsActive = *sum.POIsActive
	}
	if sum.POIsInDeck != nil {
		s.stats.POIsInDeck = *sum.POIsInDeck
	}
}

func (s *Session) emitStatus(errText string) {
	event.Emit(s.bus, event.SessionStatus{
		State:   s.state,
		Turn:    s.stats.Turn,
		Step:    s.stats.Step,
		Message: s.message,
		Err:     errText,
	})
}
