package turn

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Allreality/my-twin/internal/model"
)

// ImportanceScorer rates how worth remembering a turn is, in [0,1].
type ImportanceScorer interface {
	ScoreImportance(ctx context.Context, query, response string) (float64, error)
}

// SentimentScorer rates the sentiment of a message, in [-1,1].
type SentimentScorer interface {
	ScoreSentiment(ctx context.Context, text string) (float64, error)
}

// ImportanceFunc adapts a plain function to ImportanceScorer.
type ImportanceFunc func(query, response string) float64

func (f ImportanceFunc) ScoreImportance(_ context.Context, query, response string) (float64, error) {
	return f(query, response), nil
}

// SentimentFunc adapts a plain function to SentimentScorer.
type SentimentFunc func(text string) float64

func (f SentimentFunc) ScoreSentiment(_ context.Context, text string) (float64, error) {
	return f(text), nil
}

// score runs fn under timeout, turning a panic, an error, NaN, or a value
// outside [lo,hi] into model.ErrScorerFailure.
func score(ctx context.Context, name string, lo, hi float64, timeout time.Duration,
	fn func(context.Context) (float64, error)) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("%w: %s scorer panicked: %v", model.ErrScorerFailure, name, r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err = fn(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %s scorer: %w", model.ErrScorerFailure, name, err)
	}
	if math.IsNaN(v) || v < lo || v > hi {
		return 0, fmt.Errorf("%w: %s scorer returned %v, want [%v,%v]", model.ErrScorerFailure, name, v, lo, hi)
	}
	return v, nil
}
