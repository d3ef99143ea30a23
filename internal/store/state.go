package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Allreality/my-twin/internal/model"
)

func (s *SQLiteStore) LoadState(ctx context.Context, subject string) (model.EmotionalState, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT subject, emotion, intensity, cause, last_update, momentum
		 FROM emotional_states WHERE subject = ?`, subject)
	st, err := scanState(row)
	if err == sql.ErrNoRows {
		return model.EmotionalState{}, false, nil
	}
	if err != nil {
		return model.EmotionalState{}, false, fmt.Errorf("load state: %w", err)
	}
	return st, true, nil
}

func (s *SQLiteStore) SaveState(ctx context.Context, st model.EmotionalState) error {
	var lastUpdate *string
	if !st.LastUpdate.IsZero() {
		v := st.LastUpdate.UTC().Format(timeLayout)
		lastUpdate = &v
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO emotional_states (subject, emotion, intensity, cause, last_update, momentum)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject) DO UPDATE SET
		   emotion = excluded.emotion,
		   intensity = excluded.intensity,
		   cause = excluded.cause,
		   last_update = excluded.last_update,
		   momentum = excluded.momentum`,
		st.Subject, string(st.Emotion), st.Intensity, st.Trigger, lastUpdate, st.Momentum)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (s *SQLiteStore) States(ctx context.Context) ([]model.EmotionalState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT subject, emotion, intensity, cause, last_update, momentum
		 FROM emotional_states ORDER BY subject`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []model.EmotionalState{}
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanState(row scanner) (model.EmotionalState, error) {
	var st model.EmotionalState
	var emotion string
	var trigger, lastUpdate sql.NullString

	err := row.Scan(&st.Subject, &emotion, &st.Intensity, &trigger, &lastUpdate, &st.Momentum)
	if err != nil {
		return st, err
	}
	st.Emotion = model.Emotion(emotion)
	if trigger.Valid {
		st.Trigger = trigger.String
	}
	if lastUpdate.Valid {
		st.LastUpdate, _ = time.Parse(timeLayout, lastUpdate.String)
	}
	return st, nil
}
