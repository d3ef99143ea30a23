// Package semantic is the long-term memory store: timestamped entries tagged
// with importance and emotional valence, retrieved by the cosine similarity
// of their embeddings to a query.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/Allreality/my-twin/internal/embedding"
	"github.com/Allreality/my-twin/internal/model"
)

const (
	DefaultLimit           = 5
	DefaultProviderTimeout = 30 * time.Second
)

// SearchOptions narrows a search. A zero Type matches every type.
type SearchOptions struct {
	Type  model.MemoryType
	Limit int
}

// Result is an entry together with its similarity to the query.
type Result struct {
	model.Entry
	Similarity float64 `json:"similarity"`
}

// Store embeds and ranks semantic memories over a Backend.
type Store struct {
	backend  Backend
	embedder embedding.Embedder
	timeout  time.Duration
	logger   logrus.FieldLogger

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	now func() time.Time
}

// New creates a Store. timeout bounds each embedding call; zero uses
// DefaultProviderTimeout.
func New(backend Backend, embedder embedding.Embedder, timeout time.Duration, logger logrus.FieldLogger) *Store {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Store{
		backend:  backend,
		embedder: embedder,
		timeout:  timeout,
		logger:   logger,
		entropy:  ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:      time.Now,
	}
}

func (s *Store) newID(t time.Time) string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

func (s *Store) embed(ctx context.Context, text string) (embedding.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed: %w", model.ErrProviderFailure, err)
	}
	return v, nil
}

// Store embeds content and appends a new entry, returning its id. Valence
// and importance are clamped to their ranges.
func (s *Store) Store(ctx context.Context, content string, typ model.MemoryType, valence, importance float64) (string, error) {
	if !model.ValidMemoryTypes[typ] {
		return "", fmt.Errorf("invalid memory type %q", typ)
	}
	vec, err := s.embed(ctx, content)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	e := model.Entry{
		ID:               s.newID(now),
		Content:          content,
		Embedding:        vec,
		Type:             typ,
		EmotionalValence: clamp(valence, -1, 1),
		Importance:       clamp(importance, 0, 1),
		Timestamp:        now,
	}
	if err := s.backend.Insert(ctx, e); err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"id":          e.ID,
		"memory_type": typ,
		"importance":  e.Importance,
	}).Debug("semantic: stored entry")
	return e.ID, nil
}

// Search ranks entries by descending cosine similarity to the query. Ties
// fall back to importance, then recency, then id. The type filter is
// applied before the limit.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	entries, err := s.backend.Entries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	if len(entries) == 0 {
		return []Result{}, nil
	}

	q, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		if opts.Type != "" && e.Type != opts.Type {
			continue
		}
		results = append(results, Result{Entry: e, Similarity: embedding.CosineSimilarity(q, e.Embedding)})
	}
	Rank(results)

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Rank sorts results into search order.
func Rank(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Importance != b.Importance {
			return a.Importance > b.Importance
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
}

// Get returns one entry or model.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (model.Entry, error) {
	return s.backend.Get(ctx, id)
}

// Delete removes one entry or returns model.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.backend.Delete(ctx, id)
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.backend.Count(ctx)
}

// Export returns every entry.
func (s *Store) Export(ctx context.Context) ([]model.Entry, error) {
	return s.backend.Entries(ctx)
}

// Import appends previously exported entries. Entries whose embedding
// width does not match the current embedder are re-embedded; entries with
// an id already present, including a deleted one, are skipped. It returns
// how many were added.
func (s *Store) Import(ctx context.Context, entries []model.Entry) (int, error) {
	existing, err := s.backend.Entries(ctx)
	if err != nil {
		return 0, fmt.Errorf("load entries: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.ID] = true
	}

	imported := 0
	for _, e := range entries {
		if e.ID != "" && seen[e.ID] {
			continue
		}
		if strings.TrimSpace(e.Content) == "" || !model.ValidMemoryTypes[e.Type] {
			s.logger.WithField("id", e.ID).Warn("semantic: skipping invalid import entry")
			continue
		}
		if len(e.Embedding) != s.embedder.Dims() {
			vec, err := s.embed(ctx, e.Content)
			if err != nil {
				return imported, err
			}
			e.Embedding = vec
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = s.now().UTC()
		}
		if e.ID == "" {
			e.ID = s.newID(e.Timestamp)
		}
		e.EmotionalValence = clamp(e.EmotionalValence, -1, 1)
		e.Importance = clamp(e.Importance, 0, 1)

		if err := s.backend.Insert(ctx, e); err != nil {
			if errors.Is(err, model.ErrExists) {
				s.logger.WithField("id", e.ID).Debug("semantic: import skipped existing id")
				seen[e.ID] = true
				continue
			}
			return imported, fmt.Errorf("insert entry: %w", err)
		}
		seen[e.ID] = true
		imported++
	}
	return imported, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
