package semantic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Allreality/my-twin/internal/embedding"
	"github.com/Allreality/my-twin/internal/model"
)

// fakeEmbedder returns fixed vectors for known texts and hashes the rest.
type fakeEmbedder struct {
	vecs     map[string]embedding.Vector
	fallback *embedding.HashEmbedder
	err      error
	block    bool
}

func newFakeEmbedder(vecs map[string]embedding.Vector) *fakeEmbedder {
	return &fakeEmbedder{vecs: vecs, fallback: embedding.NewHashEmbedder(2)}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return f.fallback.Embed(ctx, text)
}

func (f *fakeEmbedder) Dims() int { return 2 }

func newTestStore(t *testing.T, e embedding.Embedder) *Store {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return New(NewMemoryBackend(), e, time.Second, logger)
}

// unit returns a 2-d unit vector whose cosine with (1,0) is c.
func unit(c float64) embedding.Vector {
	return embedding.Vector{float32(c), float32(math.Sqrt(1 - c*c))}
}

func TestSearchRanksBySimilarityFirst(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(map[string]embedding.Vector{
		"query":   {1, 0},
		"close":   unit(0.9),
		"distant": unit(0.3),
	})
	s := newTestStore(t, e)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	closeID, err := s.Store(ctx, "close", model.Episodic, 0, 0.1)
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	_, err = s.Store(ctx, "distant", model.Episodic, 0, 1.0)
	require.NoError(t, err)

	got, err := s.Search(ctx, "query", SearchOptions{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, closeID, got[0].ID)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-6)
	assert.InDelta(t, 0.3, got[1].Similarity, 1e-6)
}

func TestSearchTieBreaks(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []Result{
		{Entry: model.Entry{ID: "a", Importance: 0.5, Timestamp: ts}, Similarity: 0.8},
		{Entry: model.Entry{ID: "b", Importance: 0.9, Timestamp: ts}, Similarity: 0.8},
		{Entry: model.Entry{ID: "c", Importance: 0.5, Timestamp: ts.Add(time.Hour)}, Similarity: 0.8},
		{Entry: model.Entry{ID: "d", Importance: 1.0, Timestamp: ts}, Similarity: 0.95},
	}
	Rank(results)

	var ids []string
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"d", "b", "c", "a"}, ids)
}

func TestStoreThenSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, embedding.NewHashEmbedder(64))

	for _, c := range []string{
		"My sister lives in Lisbon and teaches piano",
		"The gallery opens at nine on weekdays",
		"I am allergic to peanuts",
	} {
		_, err := s.Store(ctx, c, model.Semantic, 0, 0.5)
		require.NoError(t, err)
	}

	got, err := s.Search(ctx, "The gallery opens at nine on weekdays", SearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "The gallery opens at nine on weekdays", got[0].Content)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-6)
}

func TestSearchEmptyStore(t *testing.T) {
	e := newFakeEmbedder(nil)
	e.err = errors.New("provider down")
	s := newTestStore(t, e)

	got, err := s.Search(context.Background(), "anything", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchFiltersBeforeLimit(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(map[string]embedding.Vector{
		"query": {1, 0},
		"ep1":   unit(0.99),
		"ep2":   unit(0.98),
		"fact":  unit(0.2),
	})
	s := newTestStore(t, e)
	for _, c := range []string{"ep1", "ep2"} {
		_, err := s.Store(ctx, c, model.Episodic, 0, 0.5)
		require.NoError(t, err)
	}
	_, err := s.Store(ctx, "fact", model.Semantic, 0, 0.5)
	require.NoError(t, err)

	got, err := s.Search(ctx, "query", SearchOptions{Type: model.Semantic, Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fact", got[0].Content)
}

func TestStoreClampsAndValidates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, embedding.NewHashEmbedder(8))

	id, err := s.Store(ctx, "x", model.Episodic, -3, 7)
	require.NoError(t, err)
	e, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, -1.0, e.EmotionalValence)
	assert.Equal(t, 1.0, e.Importance)
	assert.Len(t, e.Embedding, 8)

	_, err = s.Store(ctx, "x", model.MemoryType("procedural"), 0, 0)
	assert.Error(t, err)
}

func TestProviderFailurePropagates(t *testing.T) {
	ctx := context.Background()
	e := newFakeEmbedder(nil)
	s := newTestStore(t, e)
	_, err := s.Store(ctx, "seed", model.Semantic, 0, 0.5)
	require.NoError(t, err)

	e.err = errors.New("503")
	_, err = s.Store(ctx, "more", model.Semantic, 0, 0.5)
	assert.ErrorIs(t, err, model.ErrProviderFailure)

	_, err = s.Search(ctx, "seed", SearchOptions{})
	assert.ErrorIs(t, err, model.ErrProviderFailure)
}

func TestProviderTimeout(t *testing.T) {
	e := newFakeEmbedder(nil)
	e.block = true
	logger, _ := test.NewNullLogger()
	s := New(NewMemoryBackend(), e, 20*time.Millisecond, logger)

	_, err := s.Store(context.Background(), "hangs", model.Semantic, 0, 0)
	assert.ErrorIs(t, err, model.ErrProviderFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeleteAndCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, embedding.NewHashEmbedder(8))

	id, err := s.Store(ctx, "to forget", model.Episodic, 0, 0.5)
	require.NoError(t, err)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Delete(ctx, id))
	assert.ErrorIs(t, s.Delete(ctx, id), model.ErrNotFound)
	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcurrentStoreGeneratesUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, embedding.NewHashEmbedder(8))

	var wg sync.WaitGroup
	ids := make([]string, 50)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := s.Store(ctx, fmt.Sprintf("memory %d", i), model.Semantic, 0, 0.5)
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestImportSkipsDuplicatesAndReembeds(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t, embedding.NewHashEmbedder(16))
	_, err := src.Store(ctx, "first", model.Semantic, 0.2, 0.6)
	require.NoError(t, err)
	exported, err := src.Export(ctx)
	require.NoError(t, err)

	dst := newTestStore(t, embedding.NewHashEmbedder(32))
	n, err := dst.Import(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = dst.Import(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := dst.Get(ctx, exported[0].ID)
	require.NoError(t, err)
	assert.Len(t, got.Embedding, 32)
	assert.Equal(t, 0.6, got.Importance)
}

// forgetfulBackend hides its entries from reads, like a soft delete.
type forgetfulBackend struct{ *MemoryBackend }

func (forgetfulBackend) Entries(context.Context) ([]model.Entry, error) { return nil, nil }

func TestImportSkipsIDsHiddenFromReads(t *testing.T) {
	ctx := context.Background()
	backend := forgetfulBackend{NewMemoryBackend()}
	s := New(backend, embedding.NewHashEmbedder(16), 0, nil)

	id, err := s.Store(ctx, "kept after delete", model.Semantic, 0, 0.5)
	require.NoError(t, err)
	entry, err := backend.Get(ctx, id)
	require.NoError(t, err)

	n, err := s.Import(ctx, []model.Entry{entry, {Content: "new one", Type: model.Episodic}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
