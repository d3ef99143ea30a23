package workmem

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Allreality/my-twin/internal/model"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestMemoryStore(t *testing.T, opts Options) (*MemoryStore, *clock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(opts, logger)
	s.now = c.now
	return s, c
}

func newTestRedisStore(t *testing.T, opts Options) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, opts, ""), mr
}

func turn(role model.Role, text string) model.Turn {
	return model.Turn{Role: role, Text: text}
}

// backends runs fn against both implementations.
func backends(t *testing.T, opts Options, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		s, _ := newTestMemoryStore(t, opts)
		fn(t, s)
	})
	t.Run("redis", func(t *testing.T) {
		s, _ := newTestRedisStore(t, opts)
		fn(t, s)
	})
}

func TestAppendEvictsOldest(t *testing.T) {
	backends(t, DefaultOptions(), func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 1; i <= 60; i++ {
			require.NoError(t, s.Append(ctx, "s1", turn(model.RoleUser, fmt.Sprintf("t%d", i))))
		}

		all, err := s.Recent(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, all, 50)
		assert.Equal(t, "t11", all[0].Text)
		assert.Equal(t, "t60", all[49].Text)
	})
}

func TestRecentReturnsOldestFirst(t *testing.T) {
	backends(t, DefaultOptions(), func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Append(ctx, "s1",
			turn(model.RoleUser, "a"),
			turn(model.RoleAssistant, "b"),
			turn(model.RoleUser, "c"),
		))

		got, err := s.Recent(ctx, "s1", 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].Text)
		assert.Equal(t, "c", got[1].Text)
		assert.False(t, got[0].Timestamp.IsZero())
	})
}

func TestUnknownSessionIsEmpty(t *testing.T) {
	backends(t, DefaultOptions(), func(t *testing.T, s Store) {
		got, err := s.Recent(context.Background(), "nobody", 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		sum, err := Summarize(context.Background(), s, "nobody", 5, 50)
		require.NoError(t, err)
		assert.Equal(t, "", sum)
	})
}

func TestSessionsAreIsolated(t *testing.T) {
	backends(t, DefaultOptions(), func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Append(ctx, "a", turn(model.RoleUser, "for a")))
		require.NoError(t, s.Append(ctx, "b", turn(model.RoleUser, "for b")))
		require.NoError(t, s.Clear(ctx, "a"))

		got, err := s.Recent(ctx, "a", 0)
		require.NoError(t, err)
		assert.Empty(t, got)

		got, err = s.Recent(ctx, "b", 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
	})
}

func TestMemoryStoreIdleExpiry(t *testing.T) {
	s, c := newTestMemoryStore(t, Options{MaxTurns: 10, IdleTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", turn(model.RoleUser, "old")))
	c.advance(30 * time.Minute)
	require.NoError(t, s.Append(ctx, "s1", turn(model.RoleUser, "still here")))

	got, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	c.advance(61 * time.Minute)
	got, err = s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Append(ctx, "s1", turn(model.RoleUser, "fresh")))
	got, err = s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Text)
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	s, c := newTestMemoryStore(t, Options{IdleTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "a", turn(model.RoleUser, "x")))
	c.advance(2 * time.Hour)
	require.NoError(t, s.Append(ctx, "b", turn(model.RoleUser, "y")))

	assert.Equal(t, 1, s.SweepExpired())
	assert.Equal(t, 0, s.SweepExpired())
}

func TestRedisStoreIdleExpiry(t *testing.T) {
	s, mr := newTestRedisStore(t, Options{MaxTurns: 10, IdleTTL: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, "s1", turn(model.RoleUser, "hello")))
	assert.True(t, mr.Exists("conversation:s1"))

	mr.FastForward(2 * time.Hour)
	got, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSummarize(t *testing.T) {
	s, _ := newTestMemoryStore(t, DefaultOptions())
	ctx := context.Background()
	long := "This message is definitely longer than fifty characters in total."
	require.NoError(t, s.Append(ctx, "s1",
		turn(model.RoleUser, "I got bad news today"),
		turn(model.RoleAssistant, long),
	))

	got, err := Summarize(ctx, s, "s1", 5, 50)
	require.NoError(t, err)
	assert.Equal(t,
		"Recent conversation:\n"+
			"User: I got bad news today\n"+
			"You: "+long[:50]+"...",
		got)
}

func TestSummaryLinesCountsRunes(t *testing.T) {
	lines := SummaryLines([]model.Turn{turn(model.RoleUser, "héllo wörld")}, 5)
	assert.Equal(t, []string{"User: héllo..."}, lines)
}
