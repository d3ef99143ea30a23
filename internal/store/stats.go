package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath          string      `json:"db_path"`
	DBSizeBytes     int64       `json:"db_size_bytes"`
	TotalMemories   int         `json:"total_memories"`
	ActiveMemories  int         `json:"active_memories"`
	EmotionalStates int         `json:"emotional_states"`
	Types           []TypeStats `json:"types"`
}

// TypeStats holds per-memory-type counts.
type TypeStats struct {
	Type          string  `json:"memory_type"`
	Count         int     `json:"count"`
	AvgImportance float64 `json:"avg_importance"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	// DB file size
	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&st.TotalMemories)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL`).Scan(&st.ActiveMemories)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emotional_states`).Scan(&st.EmotionalStates)

	rows, err := s.db.QueryContext(ctx, `
		SELECT memory_type, COUNT(*) as cnt, AVG(importance)
		FROM memories WHERE deleted_at IS NULL
		GROUP BY memory_type ORDER BY cnt DESC, memory_type`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var ts TypeStats
		rows.Scan(&ts.Type, &ts.Count, &ts.AvgImportance)
		st.Types = append(st.Types, ts)
	}

	return st, nil
}
