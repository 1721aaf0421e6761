package system

import (
	"time"

	"github.com/firerescue/viewer/internal/core/event"
	coresys "github.com/firerescue/viewer/internal/core/system"
)

// OutputSystem delivers the notifications queued during this tick.
// Subscribers (the observer hub among them) only ever see fully-applied
// frames. Phase 2 (Output).
type OutputSystem struct {
	bus       *event.Bus
	delivered int
}

func NewOutputSystem(bus *event.Bus) *OutputSystem {
	return &OutputSystem{bus: bus}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

// Delivered returns the total number of notifications dispatched.
func (s *OutputSystem) Delivered() int { return s.delivered }

func (s *OutputSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.delivered += s.bus.DispatchAll()
}
