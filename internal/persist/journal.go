package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/firerescue/viewer/internal/protocol"
	"github.com/firerescue/viewer/internal/reconcile"
	"go.uber.org/zap"
)

const maxPending = 10000

var ErrNoSession = errors.New("journal session not started")

type SessionInfo struct {
	ClientName string
	ServerURL  string
	World      string
}

type SessionSummary struct {
	State    string
	Message  string
	Turn     int
	Rescued  int
	Lost     int
	Damage   int
	Finished bool
}

// FrameRow is one applied frame as journaled.
type FrameRow struct {
	Batch       int
	Frame       int
	Turn        int
	Kind        string
	Action      string
	Actor       *int
	Diagnostics int
	Payload     []byte
}

// Store is the journal backend. *JournalRepo satisfies it.
type Store interface {
	StartSession(ctx context.Context, info SessionInfo) (int64, error)
	WriteFrames(ctx context.Context, sessionID int64, rows []FrameRow) error
	UpdateSession(ctx context.Context, id int64, s SessionSummary) error
}

// Journal buffers applied frames on the game loop and writes them out in
// batches. A failed flush keeps the rows for the next attempt; beyond
// maxPending the oldest rows are dropped.
type Journal struct {
	store   Store
	log     *zap.Logger
	session int64
	pending []FrameRow
	dropped int
}

func NewJournal(store Store, log *zap.Logger) *Journal {
	return &Journal{store: store, log: log.Named("journal")}
}

// Begin opens a journal session.
func (j *Journal) Begin(ctx context.Context, info SessionInfo) error {
	id, err := j.store.StartSession(ctx, info)
	if err != nil {
		return err
	}
	j.session = id
	j.log.Info("journal session started", zap.Int64("session", id))
	return nil
}

func (j *Journal) Session() int64 { return j.session }
func (j *Journal) Pending() int   { return len(j.pending) }

// Record queues one applied frame.
func (j *Journal) Record(batch int, f *protocol.Frame, o reconcile.Outcome) {
	payload, err := json.Marshal(f)
	if err != nil {
		j.log.Warn("frame not journaled", zap.Int("frame", f.Frame), zap.Error(err))
		return
	}
	row := FrameRow{
		Batch:       batch,
		Frame:       f.Frame,
		Turn:        o.Turn,
		Kind:        o.Kind.String(),
		Diagnostics: o.Diagnostics,
		Payload:     payload,
	}
	if f.Action != nil {
		row.Action = f.Action.Type
		if id, ok := f.Action.Actor(); ok {
			row.Actor = &id
		}
	}
	if len(j.pending) >= maxPending {
		j.pending = j.pending[1:]
		j.dropped++
	}
	j.pending = append(j.pending, row)
}

// Flush writes every queued frame.
func (j *Journal) Flush(ctx context.Context) error {
	if len(j.pending) == 0 {
		return nil
	}
	if j.session == 0 {
		return ErrNoSession
	}
	if j.dropped > 0 {
		j.log.Warn("journal backlog overflowed, frames dropped", zap.Int("dropped", j.dropped))
		j.dropped = 0
	}
	if err := j.store.WriteFrames(ctx, j.session, j.pending); err != nil {
		return fmt.Errorf("flush %d frames: %w", len(j.pending), err)
	}
	j.log.Debug("journal flushed", zap.Int("frames", len(j.pending)))
	j.pending = j.pending[:0]
	return nil
}

// Update flushes and then stores the session summary.
func (j *Journal) Update(ctx context.Context, s SessionSummary) error {
	if j.session == 0 {
		return ErrNoSession
	}
	if err := j.Flush(ctx); err != nil {
		return err
	}
	return j.store.UpdateSession(ctx, j.session, s)
}
