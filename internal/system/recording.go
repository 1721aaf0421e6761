package system

import (
	"time"

	coresys "github.com/firerescue/viewer/internal/core/system"
	gonet "github.com/firerescue/viewer/internal/net"
	"github.com/firerescue/viewer/internal/record"
	"go.uber.org/zap"
)

// RecordingSystem captures every transport result into a recording and
// flushes the compressed stream once per tick. Phase 3 (Persist).
type RecordingSystem struct {
	w       *record.Writer
	log     *zap.Logger
	dirty   bool
	failed  bool
	written int
}

func NewRecordingSystem(w *record.Writer, log *zap.Logger) *RecordingSystem {
	return &RecordingSystem{w: w, log: log.Named("recording")}
}

func (s *RecordingSystem) Phase() coresys.Phase { return coresys.PhasePersist }

// Capture is an InputSystem tap.
func (s *RecordingSystem) Capture(res gonet.Result) {
	var err error
	if res.Err != nil {
		err = s.w.WriteError(res.Err)
	} else {
		err = s.w.WriteBatch(res.Raw)
	}
	if err != nil {
		if !s.failed {
			s.log.Warn("recording write failed", zap.Error(err))
		}
		s.failed = true
		return
	}
	s.failed = false
	s.dirty = true
	s.written++
}

// Written returns how many results were recorded.
func (s *RecordingSystem) Written() int { return s.written }

func (s *RecordingSystem) Update(_ time.Duration) {
	if !s.dirty {
		return
	}
	if err := s.w.Flush(); err != nil {
		s.log.Warn("recording flush failed", zap.Error(err))
		return
	}
	s.dirty = false
}

// Close finishes the recording file.
func (s *RecordingSystem) Close() error {
	if p := s.w.Path(); p != "" {
		s.log.Info("recording closed", zap.String("path", p), zap.Int("entries", s.written))
	}
	return s.w.Close()
}
