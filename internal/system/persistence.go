package system

import (
	"context"
	"time"

	coresys "github.com/firerescue/viewer/internal/core/system"
	"github.com/firerescue/viewer/internal/persist"
	"github.com/firerescue/viewer/internal/session"
	"go.uber.org/zap"
)

const flushTimeout = 5 * time.Second

// JournalSystem periodically writes journaled frames and the session
// summary to the database. Phase 3 (Persist).
type JournalSystem struct {
	journal   *persist.Journal
	sess      *session.Session
	log       *zap.Logger
	tickCount int
	interval  int // flush every N ticks
	lastState string
}

func NewJournalSystem(j *persist.Journal, sess *session.Session, log *zap.Logger, intervalTicks int) *JournalSystem {
	return &JournalSystem{
		journal:  j,
		sess:     sess,
		log:      log.Named("journal"),
		interval: intervalTicks,
	}
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) Update(_ time.Duration) {
	// A state change (finished, error) is written right away.
	changed := s.sess.State() != s.lastState
	s.tickCount++
	if !changed && s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.flush(changed)
}

// FlushAll writes everything immediately. Called on shutdown.
func (s *JournalSystem) FlushAll() {
	s.flush(true)
}

func (s *JournalSystem) flush(withSummary bool) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	var err error
	if withSummary {
		err = s.journal.Update(ctx, s.summary())
	} else {
		err = s.journal.Flush(ctx)
	}
	if err != nil {
		s.log.Warn("journal flush failed", zap.Int("pending", s.journal.Pending()), zap.Error(err))
		return
	}
	s.lastState = s.sess.State()
}

func (s *JournalSystem) summary() persist.SessionSummary {
	st := s.sess.Stats()
	return persist.SessionSummary{
		State:    s.sess.State(),
		Message:  s.sess.Message(),
		Turn:     st.Turn,
		Rescued:  st.Rescued,
		Lost:     st.Lost,
		Damage:   st.Damage,
		Finished: s.sess.Closed(),
	}
}
