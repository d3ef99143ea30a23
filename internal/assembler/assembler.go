// Package assembler builds the bounded context payload for one model call
// from the personality descriptor, the emotional state, relevant semantic
// memories, and the recent conversation.
package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Allreality/my-twin/internal/emotion"
	"github.com/Allreality/my-twin/internal/model"
	"github.com/Allreality/my-twin/internal/personality"
	"github.com/Allreality/my-twin/internal/semantic"
	"github.com/Allreality/my-twin/internal/workmem"
)

const (
	DefaultBudget       = 4000
	DefaultMemories     = 5
	DefaultSummaryTurns = 5
)

// Block priorities, most important first.
const (
	PriorityPersonality = iota
	PriorityEmotion
	PriorityMemories
	PrioritySummary
	PriorityQuery
)

// EmotionSource reads a subject's decayed emotional state.
type EmotionSource interface {
	Get(ctx context.Context, subject string) (model.EmotionalState, error)
}

// MemorySource ranks semantic memories against a query.
type MemorySource interface {
	Search(ctx context.Context, query string, opts semantic.SearchOptions) ([]semantic.Result, error)
}

// Options configures an Assembler.
type Options struct {
	Budget       int `mapstructure:"budget"`
	Memories     int `mapstructure:"memories"`
	SummaryTurns int `mapstructure:"summary_turns"`
	SummaryChars int `mapstructure:"summary_chars"`
}

func (o Options) withDefaults() Options {
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	if o.Memories <= 0 {
		o.Memories = DefaultMemories
	}
	if o.SummaryTurns <= 0 {
		o.SummaryTurns = DefaultSummaryTurns
	}
	if o.SummaryChars <= 0 {
		o.SummaryChars = workmem.DefaultSummaryChars
	}
	return o
}

// Request is the input to Build. A zero Budget uses the assembler default;
// a nil Personality uses personality.Default.
type Request struct {
	Subject     string
	SessionID   string
	Query       string
	Personality *personality.Descriptor
	Budget      int
}

// Payload is an assembled context.
type Payload struct {
	Text    string  `json:"text"`
	Tokens  int     `json:"tokens"`
	Budget  int     `json:"budget"`
	Blocks  []Block `json:"-"`
	Dropped Dropped `json:"dropped"`
}

// Assembler reads from the stores but never writes to them.
type Assembler struct {
	emotions EmotionSource
	memories MemorySource
	turns    workmem.Store
	counter  Counter
	opts     Options
	logger   logrus.FieldLogger

	now func() time.Time
}

// New creates an Assembler. A nil counter uses CharCounter.
func New(emotions EmotionSource, memories MemorySource, turns workmem.Store, counter Counter, opts Options, logger logrus.FieldLogger) *Assembler {
	if counter == nil {
		counter = CharCounter{CharsPerToken: 4}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Assembler{
		emotions: emotions,
		memories: memories,
		turns:    turns,
		counter:  counter,
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Build gathers every block and folds them into the budget. It fails with
// model.ErrBudgetExceeded when personality and emotion alone do not fit,
// and with model.ErrProviderFailure when the query cannot be embedded.
func (a *Assembler) Build(ctx context.Context, req Request) (*Payload, error) {
	budget := req.Budget
	if budget <= 0 {
		budget = a.opts.Budget
	}
	desc := req.Personality
	if desc == nil {
		desc = personality.Default()
	}

	var (
		state   model.EmotionalState
		results []semantic.Result
		turns   []model.Turn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		state, err = a.emotions.Get(gctx, req.Subject)
		return err
	})
	g.Go(func() error {
		var err error
		results, err = a.memories.Search(gctx, req.Query, semantic.SearchOptions{Limit: a.opts.Memories})
		return err
	})
	g.Go(func() error {
		var err error
		turns, err = a.turns.Recent(gctx, req.SessionID, a.opts.SummaryTurns)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("assemble context: %w", err)
	}

	blocks := []Block{
		{Kind: KindPersonality, Priority: PriorityPersonality, Items: []string{desc.Render()}, Trim: TrimNever},
		{Kind: KindEmotion, Priority: PriorityEmotion, Items: []string{emotion.Render(state, a.now())}, Trim: TrimNever},
		{Kind: KindMemories, Priority: PriorityMemories, Header: "Relevant memories:", Items: MemoryLines(results), Trim: TrimBack},
		{Kind: KindSummary, Priority: PrioritySummary, Header: "Recent conversation:", Items: workmem.SummaryLines(turns, a.opts.SummaryChars), Trim: TrimFront},
	}
	if q := strings.TrimSpace(req.Query); q != "" {
		blocks = append(blocks, Block{Kind: KindQuery, Priority: PriorityQuery, Header: "Current message:", Items: []string{q}, Trim: TrimText})
	}

	text, kept, dropped, err := Fold(blocks, budget, a.counter)
	if err != nil {
		return nil, err
	}

	p := &Payload{
		Text:    text,
		Tokens:  a.counter.Count(text),
		Budget:  budget,
		Blocks:  kept,
		Dropped: dropped,
	}
	a.logger.WithFields(logrus.Fields{
		"subject":  req.Subject,
		"session":  req.SessionID,
		"tokens":   p.Tokens,
		"budget":   budget,
		"memories": len(results) - dropped.Items[KindMemories],
		"dropped":  dropped.Items,
	}).Debug("assembler: built context")
	return p, nil
}

// MemoryLines renders search results in rank order as dated bullets.
func MemoryLines(results []semantic.Result) []string {
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s (From: %s)", r.Content, r.Timestamp.Format(time.DateOnly)))
	}
	return lines
}
