package reconcile

import (
	"fmt"

	"github.com/firerescue/viewer/internal/anim"
	"github.com/firerescue/viewer/internal/core/event"
	"github.com/firerescue/viewer/internal/grid"
	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/world"
)

// applyAgents reconciles reported agent states. New agents are spawned in
// place; known agents walk to a new cell, or are placed directly when the
// frame knocked them down. A carrying false->true change removes the POI
// at the agent's cell.
func (r *Reconciler) applyAgents(a *frameApply, states []protocol.AgentState) {
	act := a.f.Action
	actor, hasActor := act.Actor()
	actionType := ""
	if act != nil {
		actionType = act.Type
	}
	initial := a.f.Kind() == protocol.KindInitialState

	if hasActor && actionType == protocol.ActionPickupPOI && act.Target != nil {
		r.pickUp(act.Target.Coord())
	}

	for _, st := range states {
		var before world.Agent
		prev, existed := r.reg.Agent(st.ID)
		if existed {
			before = *prev
		}
		cur, spawned := r.reg.PutAgent(world.Agent{
			ID:       st.ID,
			Pos:      st.Coord(),
			AP:       st.AP,
			Carrying: st.Carrying,
		})
		handle, _ := r.reg.AgentHandle(st.ID)

		body, hasBody := r.agents.Body(st.ID)
		switch {
		case spawned || !hasBody:
			if !initial {
				a.warn("firefighters", fmt.Errorf("agent %d: %w", st.ID, ErrUnknownAgent))
			}
			r.agents.Spawn(st.ID, handle, cur.Pos)
		default:
			if !before.Carrying && cur.Carrying {
				r.pickUp(cur.Pos)
			}
			if body.Cell != cur.Pos {
				if hasActor && actor == st.ID && actionType == protocol.ActionKnockdown {
					r.agents.Place(st.ID, cur.Pos)
				} else if _, err := r.agents.Move(st.ID, cur.Pos, r.opts.MoveSpeed); err != nil {
					a.warn("firefighters", err)
				}
			}
		}
		if spawned || before != *cur {
			event.Emit(r.bus, event.AgentUpdated{
				AgentID:  cur.ID,
				Pos:      cur.Pos,
				AP:       cur.AP,
				Carrying: cur.Carrying,
			})
		}
	}
}

// pickUp removes the POI at c. A false alarm is revealed and discarded.
func (r *Reconciler) pickUp(c grid.Coord) {
	p, ok := r.reg.POI(c)
	if !ok {
		return
	}
	reason := world.ReasonPickup
	if p.Type == world.POIFalseAlarm {
		reason = world.ReasonRevealed
	}
	r.pois.Remove(c, reason)
}

// orientActor turns the acting agent toward the target of a door, wall,
// extinguish or pickup action while the frame's state change applies, and
// flags actions whose target is out of reach. The server is authoritative,
// so an implausible action is still applied.
func (r *Reconciler) orientActor(a *frameApply) {
	act := a.f.Action
	id, ok := act.Actor()
	if !ok {
		return
	}
	gated := protocol.IsAdjacentAction(act.Type)
	if !gated && act.Type != protocol.ActionPickupPOI {
		return
	}
	if _, ok := r.agents.Body(id); !ok {
		return
	}
	target, ok := r.actionTarget(a.f)
	if !ok {
		return
	}
	if gated && !r.agents.IsAdjacentTo(id, target, r.opts.AdjacentDistance) {
		a.warn("action", fmt.Errorf("%s by agent %d at %v: %w", act.Type, id, target, ErrImplausible))
	}
	if _, err := r.agents.TimedAction(id, act.Type, target, r.agents.ActionDelay(act.Type), nil); err != nil {
		a.warn("action", err)
	}
}

// actionTarget picks the spatial point an action aims at: the door or wall
// edge it changes, else its target cell, else its destination.
func (r *Reconciler) actionTarget(f *protocol.Frame) (anim.Vec3, bool) {
	act := f.Action
	switch {
	case protocol.IsDoorAction(act.Type) && len(f.Doors) > 0:
		return r.edgePoint(f.Doors[0].From, f.Doors[0].To), true
	case protocol.IsWallAction(act.Type) && len(f.WallDamage) > 0:
		return r.edgePoint(f.WallDamage[0].From, f.WallDamage[0].To), true
	case act.Target != nil:
		return r.agents.Position(act.Target.Coord()), true
	case act.To != nil:
		return r.agents.Position(act.To.Coord()), true
	}
	return anim.Vec3{}, false
}

func (r *Reconciler) edgePoint(from, to protocol.Point) anim.Vec3 {
	return r.agents.Position(from.Coord()).Lerp(r.agents.Position(to.Coord()), 0.5)
}
