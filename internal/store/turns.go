package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Allreality/my-twin/internal/model"
	"github.com/Allreality/my-twin/internal/workmem"
)

// TurnStore keeps working memory in the turns table so that it survives
// across processes. Each append trims the session to MaxTurns; a session
// whose last append is older than IdleTTL reads as empty and is discarded
// on its next access.
type TurnStore struct {
	db   *sql.DB
	opts workmem.Options
	now  func() time.Time
}

// Turns returns a working memory backed by this database.
func (s *SQLiteStore) Turns(opts workmem.Options) *TurnStore {
	return &TurnStore{db: s.db, opts: opts.WithDefaults(), now: time.Now}
}

func (t *TurnStore) Append(ctx context.Context, sessionID string, turns ...model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	now := t.now()

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append turns: %w", err)
	}
	defer tx.Rollback()

	if err := t.expire(ctx, tx, sessionID, now); err != nil {
		return err
	}
	for _, turn := range turns {
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = now
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO turns (session_id, role, text, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, string(turn.Role), turn.Text, ts.UTC().Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert turn: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM turns WHERE session_id = ? AND seq NOT IN (
		   SELECT seq FROM turns WHERE session_id = ? ORDER BY seq DESC LIMIT ?)`,
		sessionID, sessionID, t.opts.MaxTurns)
	if err != nil {
		return fmt.Errorf("trim turns: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, last_append) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET last_append = excluded.last_append`,
		sessionID, now.UnixNano())
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

func (t *TurnStore) Recent(ctx context.Context, sessionID string, n int) ([]model.Turn, error) {
	if err := t.expire(ctx, t.db, sessionID, t.now()); err != nil {
		return nil, err
	}
	limit := -1
	if n > 0 {
		limit = n
	}
	rows, err := t.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns
		 WHERE session_id = ? ORDER BY seq DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	turns := []model.Turn{}
	for rows.Next() {
		var turn model.Turn
		var role, created string
		if err := rows.Scan(&role, &turn.Text, &created); err != nil {
			return nil, err
		}
		turn.Role = model.Role(role)
		turn.Timestamp, _ = time.Parse(timeLayout, created)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (t *TurnStore) Clear(ctx context.Context, sessionID string) error {
	return t.drop(ctx, t.db, sessionID)
}

// SweepExpired deletes every session idle longer than IdleTTL and returns
// how many were deleted.
func (t *TurnStore) SweepExpired(ctx context.Context) (int, error) {
	cutoff := t.now().Add(-t.opts.IdleTTL).UnixNano()
	rows, err := t.db.QueryContext(ctx, `SELECT session_id FROM sessions WHERE last_append < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := t.drop(ctx, t.db, id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// expire drops the session if its last append is older than IdleTTL.
func (t *TurnStore) expire(ctx context.Context, q execQuerier, sessionID string, now time.Time) error {
	var last int64
	err := q.QueryRowContext(ctx, `SELECT last_append FROM sessions WHERE session_id = ?`, sessionID).Scan(&last)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if now.Sub(time.Unix(0, last)) <= t.opts.IdleTTL {
		return nil
	}
	return t.drop(ctx, q, sessionID)
}

func (t *TurnStore) drop(ctx context.Context, q execQuerier, sessionID string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
