// Package turn writes a completed exchange back into the twin's stores:
// working memory, semantic memory, and emotional state.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Allreality/my-twin/internal/keyed"
	"github.com/Allreality/my-twin/internal/model"
	"github.com/Allreality/my-twin/internal/workmem"
)

const (
	DefaultImportanceThreshold = 0.5
	DefaultScorerTimeout       = 30 * time.Second
	triggerWords               = 6
)

// MemoryWriter stores a semantic memory.
type MemoryWriter interface {
	Store(ctx context.Context, content string, typ model.MemoryType, valence, importance float64) (string, error)
}

// EmotionUpdater folds a sentiment event into a subject's state.
type EmotionUpdater interface {
	Update(ctx context.Context, subject string, sentiment float64, trigger string) (model.EmotionalState, error)
}

// Request is one exchange to commit. Nil scorers fall back to the
// processor's defaults.
type Request struct {
	SessionID  string
	Subject    string
	Query      string
	Response   string
	Importance ImportanceScorer
	Sentiment  SentimentScorer
}

// Result reports each of the three independent writes.
type Result struct {
	TurnsAppended bool    `json:"turns_appended"`
	Importance    float64 `json:"importance"`
	MemoryID      string  `json:"memory_id,omitempty"`
	Sentiment     float64 `json:"sentiment"`

	State *model.EmotionalState `json:"emotional_state,omitempty"`

	AppendErr  error `json:"-"`
	MemoryErr  error `json:"-"`
	EmotionErr error `json:"-"`
}

// Err joins the failures of the individual writes, or returns nil.
func (r Result) Err() error {
	return errors.Join(r.AppendErr, r.MemoryErr, r.EmotionErr)
}

// PostProcessor commits turns. Commits for the same session are serialized.
type PostProcessor struct {
	turns      workmem.Store
	memories   MemoryWriter
	emotions   EmotionUpdater
	importance ImportanceScorer
	sentiment  SentimentScorer
	opts       Options
	locks      keyed.Mutex
	logger     logrus.FieldLogger

	now func() time.Time
}

// Options tunes a PostProcessor.
type Options struct {
	// Threshold is the importance an exchange must exceed to be stored as
	// an episodic memory. Zero stores every exchange scored above zero.
	Threshold float64
	// Timeout bounds each scorer call.
	Timeout time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{Threshold: DefaultImportanceThreshold, Timeout: DefaultScorerTimeout}
}

// New creates a PostProcessor. Nil scorers default to Rules. A threshold
// outside [0,1] uses DefaultImportanceThreshold and a non-positive timeout
// uses DefaultScorerTimeout.
func New(turns workmem.Store, memories MemoryWriter, emotions EmotionUpdater,
	importance ImportanceScorer, sentiment SentimentScorer, opts Options, logger logrus.FieldLogger) *PostProcessor {
	if importance == nil {
		importance = Rules{}
	}
	if sentiment == nil {
		sentiment = Rules{}
	}
	if !(opts.Threshold >= 0 && opts.Threshold <= 1) {
		opts.Threshold = DefaultImportanceThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultScorerTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PostProcessor{
		turns:      turns,
		memories:   memories,
		emotions:   emotions,
		importance: importance,
		sentiment:  sentiment,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Commit appends both turns to working memory, stores an episodic memory
// when the importance score exceeds the threshold, and updates the
// subject's emotional state from the query's sentiment. A failure in one
// write, including a failing scorer, is recorded in the Result and does not
// prevent the others.
func (p *PostProcessor) Commit(ctx context.Context, req Request) Result {
	unlock := p.locks.Lock(req.SessionID)
	defer unlock()

	log := p.logger.WithFields(logrus.Fields{"session": req.SessionID, "subject": req.Subject})
	var res Result

	now := p.now().UTC()
	err := p.turns.Append(ctx, req.SessionID,
		model.Turn{Timestamp: now, Role: model.RoleUser, Text: req.Query},
		model.Turn{Timestamp: now, Role: model.RoleAssistant, Text: req.Response},
	)
	if err != nil {
		res.AppendErr = fmt.Errorf("append turns: %w", err)
		log.WithError(err).Warn("turn: working memory append failed")
	} else {
		res.TurnsAppended = true
	}

	sentScorer := req.Sentiment
	if sentScorer == nil {
		sentScorer = p.sentiment
	}
	sentiment, sentErr := score(ctx, "sentiment", -1, 1, p.opts.Timeout, func(ctx context.Context) (float64, error) {
		return sentScorer.ScoreSentiment(ctx, req.Query)
	})
	if sentErr == nil {
		res.Sentiment = sentiment
	}

	res.MemoryID, res.Importance, res.MemoryErr = p.remember(ctx, req, res.Sentiment)
	if res.MemoryErr != nil {
		log.WithError(res.MemoryErr).Warn("turn: semantic memory write skipped")
	}

	if sentErr != nil {
		res.EmotionErr = sentErr
		log.WithError(sentErr).Warn("turn: emotional update skipped")
	} else {
		st, err := p.emotions.Update(ctx, req.Subject, sentiment, Trigger(req.Query))
		if err != nil {
			res.EmotionErr = fmt.Errorf("update emotion: %w", err)
			log.WithError(err).Warn("turn: emotional update failed")
		} else {
			res.State = &st
		}
	}

	log.WithFields(logrus.Fields{
		"importance": res.Importance,
		"sentiment":  res.Sentiment,
		"memory_id":  res.MemoryID,
	}).Debug("turn: committed")
	return res
}

func (p *PostProcessor) remember(ctx context.Context, req Request, valence float64) (string, float64, error) {
	scorer := req.Importance
	if scorer == nil {
		scorer = p.importance
	}
	importance, err := score(ctx, "importance", 0, 1, p.opts.Timeout, func(ctx context.Context) (float64, error) {
		return scorer.ScoreImportance(ctx, req.Query, req.Response)
	})
	if err != nil {
		return "", 0, err
	}
	if importance <= p.opts.Threshold {
		return "", importance, nil
	}

	content := "User: " + req.Query + "\nTwin: " + req.Response
	id, err := p.memories.Store(ctx, content, model.Episodic, valence, importance)
	if err != nil {
		return "", importance, fmt.Errorf("store memory: %w", err)
	}
	return id, importance, nil
}

// Trigger describes what caused an emotional update: "conversation about"
// followed by the opening words of the query.
func Trigger(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "conversation"
	}
	if len(fields) > triggerWords {
		fields = fields[:triggerWords]
	}
	topic := strings.TrimRight(strings.Join(fields, " "), ".,!?;:")
	return "conversation about " + topic
}
