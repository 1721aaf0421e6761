package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// JournalRepo stores journal sessions and frames in Postgres.
type JournalRepo struct {
	db *DB
}

func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

func (r *JournalRepo) StartSession(ctx context.Context, info SessionInfo) (int64, error) {
	var id int64
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO journal_sessions (client_name, server_url, world)
		 VALUES ($1, $2, $3) RETURNING id`,
		info.ClientName, info.ServerURL, info.World,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start session: %w", err)
	}
	return id, nil
}

// WriteFrames inserts a batch of frames in one transaction.
func (r *JournalRepo) WriteFrames(ctx context.Context, sessionID int64, rows []FrameRow) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, f := range rows {
		batch.Queue(
			`INSERT INTO journal_frames (session_id, batch, frame, turn, kind, action, actor, diagnostics, payload)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			sessionID, f.Batch, f.Frame, f.Turn, f.Kind, f.Action, f.Actor, f.Diagnostics, string(f.Payload),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("journal insert: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *JournalRepo) UpdateSession(ctx context.Context, id int64, s SessionSummary) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE journal_sessions
		    SET state = $2, message = $3, last_turn = $4, rescued = $5, lost = $6, damage = $7,
		        finished_at = CASE WHEN $8 THEN now() ELSE finished_at END
		  WHERE id = $1`,
		id, s.State, s.Message, s.Turn, s.Rescued, s.Lost, s.Damage, s.Finished,
	)
	if err != nil {
		return fmt.Errorf("update session %d: %w", id, err)
	}
	return nil
}
