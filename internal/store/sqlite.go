package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Allreality/my-twin/internal/model"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore implements semantic.Backend and emotion.StateStore using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		content           TEXT NOT NULL,
		embedding         BLOB,
		memory_type       TEXT NOT NULL DEFAULT 'episodic',
		emotional_valence REAL NOT NULL DEFAULT 0,
		importance        REAL NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL,
		deleted_at        TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_deleted ON memories(deleted_at);

	CREATE TABLE IF NOT EXISTS emotional_states (
		subject     TEXT PRIMARY KEY,
		emotion     TEXT NOT NULL,
		intensity   REAL NOT NULL,
		cause       TEXT,
		last_update TEXT,
		momentum    REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role       TEXT NOT NULL,
		text       TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);

	CREATE TABLE IF NOT EXISTS sessions (
		session_id  TEXT PRIMARY KEY,
		last_append INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Insert(ctx context.Context, e model.Entry) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, content, embedding, memory_type, emotional_valence, importance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Content, encodeVector(e.Embedding), string(e.Type),
		e.EmotionalValence, e.Importance, e.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", e.ID, model.ErrExists)
	}
	return nil
}

func (s *SQLiteStore) Entries(ctx context.Context) ([]model.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, memory_type, emotional_valence, importance, created_at
		 FROM memories WHERE deleted_at IS NULL
		 ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []model.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content, embedding, memory_type, emotional_valence, importance, created_at
		 FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return model.Entry{}, fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	return e, err
}

// Delete soft-deletes an entry; it no longer appears in reads but is still
// counted in Stats.TotalMemories.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (model.Entry, error) {
	var e model.Entry
	var blob []byte
	var typ, createdAt string

	err := row.Scan(&e.ID, &e.Content, &blob, &typ, &e.EmotionalValence, &e.Importance, &createdAt)
	if err != nil {
		return e, err
	}
	e.Type = model.MemoryType(typ)
	e.Embedding = decodeVector(blob)
	e.Timestamp, _ = time.Parse(timeLayout, createdAt)
	return e, nil
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(x))
	}
	return b
}

func decodeVector(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
