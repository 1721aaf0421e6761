package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/core/ecs"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/grid"
	"go.uber.org/zap"
)

var ErrUnknownAgent = errors.New("unknown agent")

const (
	DefaultAdjacentDistance = 1.5
	defaultSpeed            = 2.0
	defaultActionDelay      = 600 * time.Millisecond
)

// Timing supplies move durations, action delays and the easing curve.
// *scripting.Engine satisfies it.
type Timing interface {
	Easing(fallback anim.Easing) anim.Easing
	MoveDuration(dist, speed float64) time.Duration
	ActionDelay(action string, fallback time.Duration) time.Duration
}

// Options tunes the controller. Zero values take defaults.
type Options struct {
	Speed            float64 // spatial units per second
	AdjacentDistance float64 // in cells
	ActionDelay      time.Duration
	Easing           anim.Easing
}

// Body is the animated side of one agent. Pos is the interpolated visual
// position; Dest is where the last Move or Place committed the agent.
type Body struct {
	ID     int
	Handle ecs.EntityID
	Cell   grid.Coord
	Pos    anim.Vec3
	Dest   anim.Vec3
	Facing float64 // yaw in degrees

	move   *anim.Task
	action *anim.Task
}

func (b *Body) Moving() bool { return b.move.Active() }
func (b *Body) Acting() bool { return b.action.Active() }
func (b *Body) Idle() bool   { return !b.Moving() && !b.Acting() }

// Controller runs per-agent Move and TimedAction tasks. Each agent has at
// most one of each in flight; starting a new one cancels the old one
// synchronously. Game loop goroutine only.
type Controller struct {
	sched  *anim.Scheduler
	bus    *event.Bus
	place  Placement
	timing Timing
	opts   Options
	log    *zap.Logger

	bodies map[int]*Body
}

func NewController(sched *anim.Scheduler, bus *event.Bus, place Placement, timing Timing, opts Options, log *zap.Logger) *Controller {
	if opts.Speed <= 0 {
		opts.Speed = defaultSpeed
	}
	if opts.AdjacentDistance <= 0 {
		opts.AdjacentDistance = DefaultAdjacentDistance
	}
	if opts.ActionDelay <= 0 {
		opts.ActionDelay = defaultActionDelay
	}
	if opts.Easing == nil {
		opts.Easing = anim.SmoothStep
	}
	if timing != nil {
		opts.Easing = timing.Easing(opts.Easing)
	}
	return &Controller{
		sched:  sched,
		bus:    bus,
		place:  place,
		timing: timing,
		opts:   opts,
		log:    log.Named("agent"),
		bodies: make(map[int]*Body),
	}
}

// Spawn creates the body for an agent at a cell, or teleports an existing
// one there.
func (c *Controller) Spawn(id int, handle ecs.EntityID, at grid.Coord) *Body {
	if b, ok := c.bodies[id]; ok {
		b.Handle = handle
		c.Place(id, at)
		return b
	}
	pos := c.place.Position(at)
	b := &Body{ID: id, Handle: handle, Cell: at, Pos: pos, Dest: pos}
	c.bodies[id] = b
	event.Emit(c.bus, event.AgentSpawned{ID: handle, AgentID: id, Pos: at, At: pos})
	return b
}

// Body returns the body of an agent.
func (c *Controller) Body(id int) (*Body, bool) {
	b, ok := c.bodies[id]
	return b, ok
}

func (c *Controller) Count() int { return len(c.bodies) }

// Reset cancels every task and forgets every body.
func (c *Controller) Reset() {
	for id, b := range c.bodies {
		b.move.Cancel()
		b.action.Cancel()
		delete(c.bodies, id)
	}
}

// Place teleports an agent, cancelling any move in flight.
func (c *Controller) Place(id int, at grid.Coord) error {
	b, ok := c.bodies[id]
	if !ok {
		return fmt.Errorf("place agent %d: %w", id, ErrUnknownAgent)
	}
	b.move.Cancel()
	b.move = nil
	pos := c.place.Position(at)
	b.Cell, b.Pos, b.Dest = at, pos, pos
	event.Emit(c.bus, event.AgentMoveFinished{AgentID: id, At: pos})
	return nil
}

// Move walks an agent to a cell over distance/speed with the eased curve,
// replacing any move in flight. speed <= 0 uses the configured speed. On
// completion Pos is exactly the target.
func (c *Controller) Move(id int, to grid.Coord, speed float64) (*anim.Task, error) {
	b, ok := c.bodies[id]
	if !ok {
		return nil, fmt.Errorf("move agent %d: %w", id, ErrUnknownAgent)
	}
	if speed <= 0 {
		speed = c.opts.Speed
	}
	b.move.Cancel()

	from := b.Pos
	target := c.place.Position(to)
	dist := from.PlanarDist(target)
	d := time.Duration(0)
	if c.timing != nil {
		d = c.timing.MoveDuration(dist, speed)
	} else {
		d = time.Duration(dist / speed * float64(time.Second))
	}
	if yaw, ok := from.YawTo(target); ok {
		b.Facing = yaw
	}
	b.Cell, b.Dest = to, target

	b.move = c.sched.Start(fmt.Sprintf("move %d", id), d, c.opts.Easing,
		func(p float64) { b.Pos = from.Lerp(target, p) },
		func() {
			b.Pos = target
			event.Emit(c.bus, event.AgentMoveFinished{AgentID: id, At: target})
		},
	)
	event.Emit(c.bus, event.AgentMoveStarted{AgentID: id, From: from, To: target, Duration: d})
	return b.move, nil
}

// ActionDelay returns how long a timed action of the given type lasts.
func (c *Controller) ActionDelay(action string) time.Duration {
	if c.timing == nil {
		return c.opts.ActionDelay
	}
	return c.timing.ActionDelay(action, c.opts.ActionDelay)
}

// TimedAction faces the agent toward target, waits delay, then calls
// onComplete. It replaces any timed action in flight; a replaced action's
// onComplete never runs.
func (c *Controller) TimedAction(id int, action string, target anim.Vec3, delay time.Duration, onComplete func()) (*anim.Task, error) {
	b, ok := c.bodies[id]
	if !ok {
		return nil, fmt.Errorf("%s by agent %d: %w", action, id, ErrUnknownAgent)
	}
	b.action.Cancel()
	c.Face(b, target)

	b.action = c.sched.Start(fmt.Sprintf("%s %d", action, id), delay, anim.Linear, nil, func() {
		if onComplete != nil {
			onComplete()
		}
		event.Emit(c.bus, event.AgentActed{AgentID: id, Action: action, Target: target, Facing: b.Facing, Done: true})
	})
	event.Emit(c.bus, event.AgentActed{AgentID: id, Action: action, Target: target, Facing: b.Facing})
	return b.action, nil
}

// Face turns a body toward a point. A point straight above or below keeps
// the current facing.
func (c *Controller) Face(b *Body, target anim.Vec3) {
	if yaw, ok := b.Dest.YawTo(target); ok {
		b.Facing = yaw
	}
}

// IsAdjacentTo reports whether point lies within maxDistance cells of the
// agent's committed position, ignoring height. maxDistance <= 0 uses the
// configured threshold.
func (c *Controller) IsAdjacentTo(id int, point anim.Vec3, maxDistance float64) bool {
	b, ok := c.bodies[id]
	if !ok {
		return false
	}
	if maxDistance <= 0 {
		maxDistance = c.opts.AdjacentDistance
	}
	return b.Dest.PlanarDist(point) <= maxDistance*c.place.CellSize()
}

// Position exposes the placement mapping.
func (c *Controller) Position(at grid.Coord) anim.Vec3 { return c.place.Position(at) }
