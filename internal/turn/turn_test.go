package turn

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
	"github.com/Allreality/my-twin/internal/emotion"
	"github.com/Allreality/my-twin/internal/model"
	"github.com/Allreality/my-twin/internal/semantic"
	"github.com/Allreality/my-twin/internal/workmem"
)

type fixture struct {
	pp      *PostProcessor
	turns   *workmem.MemoryStore
	sem     *semantic.Store
	tracker *emotion.Tracker
	hook    *test.Hook
}

func newFixture(t *testing.T, importance ImportanceScorer, sentiment SentimentScorer) *fixture {
	t.Helper()
	return newFixtureWithOptions(t, importance, sentiment, DefaultOptions())
}

func newFixtureWithOptions(t *testing.T, importance ImportanceScorer, sentiment SentimentScorer, opts Options) *fixture {
	t.Helper()
	logger, hook := test.NewNullLogger()
	f := &fixture{
		turns:   workmem.NewMemoryStore(workmem.DefaultOptions(), logger),
		sem:     semantic.New(semantic.NewMemoryBackend(), embedding.NewHashEmbedder(32), time.Second, logger),
		tracker: emotion.NewTracker(nil, emotion.DefaultParams(), logger),
		hook:    hook,
	}
	f.pp = New(f.turns, f.sem, f.tracker, importance, sentiment, opts, logger)
	return f
}

func fixed(v float64) ImportanceFunc { return func(string, string) float64 { return v } }
func mood(v float64) SentimentFunc   { return func(string) float64 { return v } }

func TestCommitWritesAllThree(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixed(0.8), mood(-0.7))

	res := f.pp.Commit(ctx, Request{SessionID: "s1", Subject: "alice", Query: "I got bad news today", Response: "I'm sorry to hear that."})
	require.NoError(t, res.Err())
	assert.True(t, res.TurnsAppended)
	require.NotEmpty(t, res.MemoryID)

	turns, err := f.turns.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, model.RoleUser, turns[0].Role)
	assert.Equal(t, "I got bad news today", turns[0].Text)
	assert.Equal(t, model.RoleAssistant, turns[1].Role)

	e, err := f.sem.Get(ctx, res.MemoryID)
	require.NoError(t, err)
	assert.Equal(t, model.Episodic, e.Type)
	assert.Equal(t, "User: I got bad news today\nTwin: I'm sorry to hear that.", e.Content)
	assert.Equal(t, 0.8, e.Importance)
	assert.Equal(t, -0.7, e.EmotionalValence)

	require.NotNil(t, res.State)
	assert.Equal(t, model.Anxious, res.State.Emotion)
	assert.InDelta(t, 0.6, res.State.Intensity, 1e-9)
	assert.Equal(t, "conversation about I got bad news today", res.State.Trigger)
}

func TestCommitImportanceThresholdIsStrict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixed(0.5), mood(0))

	res := f.pp.Commit(ctx, Request{SessionID: "s", Subject: "a", Query: "hi", Response: "hello"})
	require.NoError(t, res.Err())
	assert.Empty(t, res.MemoryID)
	assert.Equal(t, 0.5, res.Importance)

	n, err := f.sem.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestCommitZeroThreshold(t *testing.T) {
	ctx := context.Background()
	f := newFixtureWithOptions(t, fixed(0.05), mood(0), Options{Threshold: 0})

	res := f.pp.Commit(ctx, Request{SessionID: "s", Subject: "a", Query: "hi", Response: "hello"})
	require.NoError(t, res.Err())
	assert.NotEmpty(t, res.MemoryID)

	f = newFixtureWithOptions(t, fixed(0), mood(0), Options{Threshold: 0})
	res = f.pp.Commit(ctx, Request{SessionID: "s", Subject: "a", Query: "hi", Response: "hello"})
	require.NoError(t, res.Err())
	assert.Empty(t, res.MemoryID)
}

func TestCommitIsolatesScorerFailures(t *testing.T) {
	tests := []struct {
		name        string
		importance  ImportanceScorer
		sentiment   SentimentScorer
		wantMemory  bool
		wantEmotion bool
	}{
		{"importance panics", ImportanceFunc(func(string, string) float64 { panic("boom") }), mood(0.4), false, true},
		{"importance out of range", fixed(1.7), mood(0.4), false, true},
		{"importance NaN", fixed(math.NaN()), mood(0.4), false, true},
		{"sentiment out of range", fixed(0.9), mood(-2), true, false},
		{"sentiment panics", fixed(0.9), SentimentFunc(func(string) float64 { panic("boom") }), true, false},
		{"both fail", fixed(-1), mood(math.NaN()), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, tt.importance, tt.sentiment)

			res := f.pp.Commit(ctx, Request{SessionID: "s", Subject: "a", Query: "q", Response: "r"})
			assert.True(t, res.TurnsAppended)
			assert.NoError(t, res.AppendErr)
			assert.ErrorIs(t, res.Err(), model.ErrScorerFailure)

			turns, err := f.turns.Recent(ctx, "s", 0)
			require.NoError(t, err)
			assert.Len(t, turns, 2)

			assert.Equal(t, tt.wantMemory, res.MemoryID != "")
			assert.Equal(t, tt.wantMemory, res.MemoryErr == nil)
			assert.Equal(t, tt.wantEmotion, res.State != nil)
			assert.Equal(t, tt.wantEmotion, res.EmotionErr == nil)

			if tt.wantMemory {
				e, err := f.sem.Get(ctx, res.MemoryID)
				require.NoError(t, err)
				assert.Equal(t, 0.0, e.EmotionalValence)
			}
			assert.NotEmpty(t, f.hook.AllEntries())
		})
	}
}

type brokenTurns struct{ workmem.Store }

func (brokenTurns) Append(context.Context, string, ...model.Turn) error {
	return errors.New("redis: connection refused")
}

func TestCommitSurvivesWorkingMemoryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixed(0.9), mood(0.9))
	f.pp.turns = brokenTurns{f.turns}

	res := f.pp.Commit(ctx, Request{SessionID: "s", Subject: "a", Query: "I won the prize!", Response: "Congratulations!"})
	assert.False(t, res.TurnsAppended)
	assert.Error(t, res.AppendErr)
	assert.NotEmpty(t, res.MemoryID)
	require.NotNil(t, res.State)
	assert.Equal(t, model.Happy, res.State.Emotion)
}

func TestCommitPerRequestScorers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixed(0.1), mood(0))

	res := f.pp.Commit(ctx, Request{
		SessionID: "s", Subject: "a", Query: "q", Response: "r",
		Importance: fixed(0.95),
		Sentiment:  mood(1),
	})
	require.NoError(t, res.Err())
	assert.NotEmpty(t, res.MemoryID)
	assert.Equal(t, 1.0, res.Sentiment)
}

func TestConcurrentCommitsSameSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fixed(0), mood(0.2))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f.pp.Commit(ctx, Request{SessionID: "shared", Subject: "x", Query: fmt.Sprintf("q%d", i), Response: fmt.Sprintf("r%d", i)})
		}(i)
	}
	wg.Wait()

	turns, err := f.turns.Recent(ctx, "shared", 0)
	require.NoError(t, err)
	require.Len(t, turns, 40)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, model.RoleUser, turns[i].Role)
		assert.Equal(t, "r"+turns[i].Text[1:], turns[i+1].Text)
	}
}

func TestTrigger(t *testing.T) {
	assert.Equal(t, "conversation", Trigger("   "))
	assert.Equal(t, "conversation about the weather", Trigger("the weather?"))
	assert.Equal(t, "conversation about can you tell me about the", Trigger("can you tell me about the gallery opening tonight"))
}

func TestRulesSentiment(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		text string
		sign int
	}{
		{"I love this painting, it's wonderful", 1},
		{"I got bad news today", -1},
		{"I am not happy about it", -1},
		{"the meeting is at noon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, err := Rules{}.ScoreSentiment(ctx, tt.text)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, v, -1.0)
			assert.LessOrEqual(t, v, 1.0)
			switch tt.sign {
			case 1:
				assert.Greater(t, v, 0.0)
			case -1:
				assert.Less(t, v, 0.0)
			default:
				assert.Equal(t, 0.0, v)
			}
		})
	}
}

func TestRulesImportance(t *testing.T) {
	ctx := context.Background()
	high, err := Rules{}.ScoreImportance(ctx, "Please remember my sister's name is Ana", "I will.")
	require.NoError(t, err)
	assert.Greater(t, high, DefaultImportanceThreshold)

	low, err := Rules{}.ScoreImportance(ctx, "ok thanks", "You're welcome.")
	require.NoError(t, err)
	assert.LessOrEqual(t, low, DefaultImportanceThreshold)
}
