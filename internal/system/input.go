package system

import (
	"errors"
	"time"

	coresys "github.com/firerescue/viewer/internal/core/system"
	gonet "github.com/firerescue/viewer/internal/net"
	"github.com/firerescue/viewer/internal/session"
	"go.uber.org/zap"
)

// InputSystem drains transport results handed over by the poller and
// feeds them to the session. Phase 0 (Input).
type InputSystem struct {
	results    <-chan gonet.Result
	sess       *session.Session
	maxPerTick int
	taps       []func(gonet.Result)
	log        *zap.Logger
	drained    bool
}

func NewInputSystem(results <-chan gonet.Result, sess *session.Session, maxPerTick int, log *zap.Logger) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 1
	}
	return &InputSystem{
		results:    results,
		sess:       sess,
		maxPerTick: maxPerTick,
		log:        log.Named("input"),
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

// Tap registers a function that sees every result before it is applied.
func (s *InputSystem) Tap(fn func(gonet.Result)) { s.taps = append(s.taps, fn) }

// Drained reports whether the transport channel has been closed and emptied.
func (s *InputSystem) Drained() bool { return s.drained }

func (s *InputSystem) Update(_ time.Duration) {
	if s.drained {
		return
	}
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case res, ok := <-s.results:
			if !ok {
				s.drained = true
				s.log.Info("transport closed")
				return
			}
			s.apply(res)
		default:
			return
		}
	}
}

func (s *InputSystem) apply(res gonet.Result) {
	for _, tap := range s.taps {
		tap(res)
	}
	if res.Err != nil {
		s.sess.IngestError(res.Err)
		return
	}
	if err := s.sess.Ingest(res.Batch); errors.Is(err, session.ErrClosed) {
		s.log.Warn("batch received after session closed", zap.Int("turn", res.Batch.Turn))
	}
}
