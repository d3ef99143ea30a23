// Package twin wires the context engine's components from a configuration.
package twin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Allreality/my-twin/internal/assembler"
	"github.com/Allreality/my-twin/internal/config"
	"github.com/Allreality/my-twin/internal/embedding"
	"github.com/Allreality/my-twin/internal/emotion"
	"github.com/Allreality/my-twin/internal/ingest"
	"github.com/Allreality/my-twin/internal/personality"
	"github.com/Allreality/my-twin/internal/semantic"
	"github.com/Allreality/my-twin/internal/store"
	"github.com/Allreality/my-twin/internal/turn"
	"github.com/Allreality/my-twin/internal/workmem"
)

// Engine owns every store and the components that read and write them.
type Engine struct {
	Config      *config.Config
	Personality *personality.Descriptor
	Emotions    *emotion.Tracker
	Turns       workmem.Store
	Memories    *semantic.Store
	Assembler   *assembler.Assembler
	Post        *turn.PostProcessor
	Ingester    *ingest.Ingester

	db     *store.SQLiteStore
	redis  redis.UniversalClient
	logger logrus.FieldLogger
}

// New builds an Engine. Callers must Close it.
func New(cfg *config.Config, logger logrus.FieldLogger) (*Engine, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{Config: cfg, logger: logger}

	desc := personality.Default()
	if cfg.Personality.File != "" {
		d, err := personality.Load(cfg.Personality.File)
		if err != nil {
			return nil, err
		}
		desc = d
	}
	e.Personality = desc

	if cfg.Semantic.Backend == "sqlite" || cfg.WorkingMemory.Backend == "sqlite" {
		db, err := store.NewSQLiteStore(cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		e.db = db
	}

	var (
		backend semantic.Backend
		states  emotion.StateStore
	)
	switch cfg.Semantic.Backend {
	case "sqlite":
		backend, states = e.db, e.db
	default:
		backend, states = semantic.NewMemoryBackend(), emotion.NewMemoryStateStore()
	}

	wmOpts := workmem.Options{MaxTurns: cfg.WorkingMemory.MaxTurns, IdleTTL: cfg.WorkingMemory.IdleTTL}
	switch cfg.WorkingMemory.Backend {
	case "sqlite":
		e.Turns = e.db.Turns(wmOpts)
	case "redis":
		rc := cfg.WorkingMemory.Redis
		e.redis = redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		e.Turns = workmem.NewRedisStore(e.redis, wmOpts, rc.Prefix)
	default:
		e.Turns = workmem.NewMemoryStore(wmOpts, logger.WithField("component", "workmem"))
	}

	embedder, err := embedding.NewFromConfig(cfg.Embedding)
	if err != nil {
		e.Close()
		return nil, err
	}
	counter, err := assembler.NewCounter(cfg.Assembler.Tokenizer)
	if err != nil {
		e.Close()
		return nil, err
	}

	var (
		importance turn.ImportanceScorer = turn.Rules{}
		sentiment  turn.SentimentScorer  = turn.Rules{}
	)
	if cfg.Turn.Scorer == "openai" {
		llm := turn.NewLLM(cfg.Turn.APIKey, cfg.Turn.BaseURL, cfg.Turn.ScorerModel)
		importance, sentiment = llm, llm
	}

	e.Emotions = emotion.NewTracker(states, cfg.Emotion, logger.WithField("component", "emotion"))
	e.Memories = semantic.New(backend, embedder, cfg.Embedding.Timeout, logger.WithField("component", "semantic"))
	e.Assembler = assembler.New(e.Emotions, e.Memories, e.Turns, counter, assembler.Options{
		Budget:       cfg.Assembler.Budget,
		Memories:     cfg.Assembler.Memories,
		SummaryTurns: cfg.Assembler.SummaryTurns,
		SummaryChars: cfg.WorkingMemory.SummaryChars,
	}, logger.WithField("component", "assembler"))
	e.Post = turn.New(e.Turns, e.Memories, e.Emotions, importance, sentiment, turn.Options{
		Threshold: cfg.Turn.ImportanceThreshold,
		Timeout:   cfg.Turn.Timeout,
	}, logger.WithField("component", "turn"))
	e.Ingester = ingest.New(e.Memories, ingest.Options{
		Workers:    cfg.Ingest.Workers,
		Importance: cfg.Ingest.Importance,
		Split:      ingest.SplitOptions{MaxChars: cfg.Ingest.MaxChars},
	}, logger.WithField("component", "ingest"))

	return e, nil
}

// Close releases the database and Redis connections.
func (e *Engine) Close() error {
	var errs []error
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	if e.redis != nil {
		errs = append(errs, e.redis.Close())
	}
	return errors.Join(errs...)
}

// Descriptor returns the personality for a mode, falling back to the
// configured mode when mode is empty.
func (e *Engine) Descriptor(mode string) *personality.Descriptor {
	if mode == "" {
		mode = e.Config.Personality.Mode
	}
	return e.Personality.ForMode(mode)
}

// Context assembles the payload for one model call.
func (e *Engine) Context(ctx context.Context, subject, sessionID, query, mode string, budget int) (*assembler.Payload, error) {
	return e.Assembler.Build(ctx, assembler.Request{
		Subject:     e.subject(subject),
		SessionID:   sessionID,
		Query:       query,
		Personality: e.Descriptor(mode),
		Budget:      budget,
	})
}

// Commit writes an exchange back into every store.
func (e *Engine) Commit(ctx context.Context, subject, sessionID, query, response string) turn.Result {
	return e.Post.Commit(ctx, turn.Request{
		SessionID: sessionID,
		Subject:   e.subject(subject),
		Query:     query,
		Response:  response,
	})
}

func (e *Engine) subject(s string) string {
	if s == "" {
		return e.Config.Subject
	}
	return s
}

// Export writes all semantic memories and emotional states as JSON.
func (e *Engine) Export(ctx context.Context, w io.Writer) error {
	memories, err := e.Memories.Export(ctx)
	if err != nil {
		return fmt.Errorf("export memories: %w", err)
	}
	states, err := e.Emotions.Snapshot(ctx)
	if err != nil {
		return err
	}
	return store.WriteDump(w, store.Dump{
		ExportedAt: time.Now().UTC(),
		Memories:   memories,
		States:     states,
	})
}

// ImportResult counts what an import added.
type ImportResult struct {
	Memories int `json:"memories"`
	States   int `json:"emotional_states"`
}

// Import loads an export produced by Export.
func (e *Engine) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var res ImportResult
	d, err := store.ReadDump(r)
	if err != nil {
		return res, err
	}
	if res.Memories, err = e.Memories.Import(ctx, d.Memories); err != nil {
		return res, fmt.Errorf("import memories: %w", err)
	}
	if res.States, err = e.Emotions.Restore(ctx, d.States); err != nil {
		return res, fmt.Errorf("import states: %w", err)
	}
	return res, nil
}

// Stats describes the engine's stores.
type Stats struct {
	Store           *store.Stats `json:"store,omitempty"`
	Memories        int          `json:"memories"`
	EmotionalStates int          `json:"emotional_states"`
	SemanticBackend string       `json:"semantic_backend"`
	WorkingMemory   string       `json:"working_memory_backend"`
	Embedding       string       `json:"embedding_provider"`
}

// Stats gathers counts from every store.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		SemanticBackend: e.Config.Semantic.Backend,
		WorkingMemory:   e.Config.WorkingMemory.Backend,
		Embedding:       e.Config.Embedding.Provider,
	}
	n, err := e.Memories.Count(ctx)
	if err != nil {
		return nil, err
	}
	st.Memories = n
	states, err := e.Emotions.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	st.EmotionalStates = len(states)

	if e.db != nil {
		if st.Store, err = e.db.Stats(ctx); err != nil {
			return nil, err
		}
	}
	return st, nil
}
