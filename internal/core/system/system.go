package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput   Phase = iota // 0: drain transport results, apply frames
	PhaseUpdate               // 1: advance animation tasks
	PhaseOutput               // 2: swap + dispatch notifications
	PhasePersist              // 3: journal + recording flush
	PhaseCleanup              // 4: poi artifact validation
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is one step of the tick.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
