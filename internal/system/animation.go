package system

import (
	"time"

	"github.com/firerescue/viewer/internal/anim"
	coresys "github.com/firerescue/viewer/internal/core/system"
)

// AnimationSystem advances door swings, agent moves and timed actions.
// Phase 1 (Update).
type AnimationSystem struct {
	sched *anim.Scheduler
}

func NewAnimationSystem(sched *anim.Scheduler) *AnimationSystem {
	return &AnimationSystem{sched: sched}
}

func (s *AnimationSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *AnimationSystem) Update(dt time.Duration) {
	s.sched.Advance(dt)
}
