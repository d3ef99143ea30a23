package emotion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Allreality/my-twin/internal/keyed"
	"github.com/Allreality/my-twin/internal/model"
)

// StateStore persists one EmotionalState per subject.
type StateStore interface {
	// LoadState returns the stored state and whether one exists.
	LoadState(ctx context.Context, subject string) (model.EmotionalState, bool, error)
	SaveState(ctx context.Context, st model.EmotionalState) error
	// States returns every stored state.
	States(ctx context.Context) ([]model.EmotionalState, error)
}

// MemoryStateStore keeps states in a process-local map.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]model.EmotionalState
}

// NewMemoryStateStore returns an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]model.EmotionalState)}
}

func (m *MemoryStateStore) LoadState(_ context.Context, subject string) (model.EmotionalState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[subject]
	return st, ok, nil
}

func (m *MemoryStateStore) SaveState(_ context.Context, st model.EmotionalState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.Subject] = st
	return nil
}

func (m *MemoryStateStore) States(_ context.Context) ([]model.EmotionalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.EmotionalState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// Tracker applies the decay-then-blend rule. Updates for the same subject
// are serialized; different subjects proceed in parallel.
type Tracker struct {
	params Params
	states StateStore
	locks  keyed.Mutex
	logger logrus.FieldLogger

	// now is swappable for tests.
	now func() time.Time
}

// NewTracker creates a Tracker. A nil store means in-memory state.
func NewTracker(states StateStore, params Params, logger logrus.FieldLogger) *Tracker {
	if states == nil {
		states = NewMemoryStateStore()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{
		params: params.withDefaults(),
		states: states,
		logger: logger,
		now:    time.Now,
	}
}

// Params returns the effective parameters.
func (t *Tracker) Params() Params { return t.params }

// Get returns the subject's state with decay projected to now. It never
// mutates the stored state, so repeated reads do not compound decay.
// Unknown subjects get a fresh neutral state.
func (t *Tracker) Get(ctx context.Context, subject string) (model.EmotionalState, error) {
	st, err := t.load(ctx, subject)
	if err != nil {
		return model.EmotionalState{}, err
	}
	st.Intensity = Decay(st.Intensity, t.elapsed(st), t.params)
	return st, nil
}

// Update folds an event with sentiment in [-1,1] into the subject's state.
// Out-of-range sentiment is clamped; NaN is rejected.
func (t *Tracker) Update(ctx context.Context, subject string, sentiment float64, trigger string) (model.EmotionalState, error) {
	if math.IsNaN(sentiment) {
		return model.EmotionalState{}, fmt.Errorf("emotion: %w: sentiment is NaN", model.ErrScorerFailure)
	}
	sentiment = clamp(sentiment, -1, 1)

	unlock := t.locks.Lock(subject)
	defer unlock()

	st, err := t.load(ctx, subject)
	if err != nil {
		return model.EmotionalState{}, err
	}

	current := Decay(st.Intensity, t.elapsed(st), t.params)
	next := Blend(current, sentiment, st.Momentum)
	prev := st.Emotion

	st.Emotion = Label(next, sentiment, prev)
	st.Intensity = next
	st.Trigger = trigger
	st.LastUpdate = t.now().UTC()

	if err := t.states.SaveState(ctx, st); err != nil {
		return model.EmotionalState{}, fmt.Errorf("emotion: save state: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"subject":   subject,
		"sentiment": sentiment,
		"from":      prev,
		"to":        st.Emotion,
		"intensity": next,
	}).Debug("emotion: state updated")

	return st, nil
}

// Snapshot returns every stored state as last written, without decay.
func (t *Tracker) Snapshot(ctx context.Context) ([]model.EmotionalState, error) {
	states, err := t.states.States(ctx)
	if err != nil {
		return nil, fmt.Errorf("emotion: list states: %w", err)
	}
	return states, nil
}

// Restore writes previously exported states, replacing any current state
// for the same subject. States with an unknown label are skipped. It
// returns how many were written.
func (t *Tracker) Restore(ctx context.Context, states []model.EmotionalState) (int, error) {
	n := 0
	for _, st := range states {
		if st.Subject == "" || !model.ValidEmotions[st.Emotion] {
			t.logger.WithField("subject", st.Subject).Warn("emotion: skipping invalid state")
			continue
		}
		st.Intensity = clamp(st.Intensity, 0, 1)
		if !validMomentum(st.Momentum) {
			st.Momentum = t.params.Momentum
		}

		unlock := t.locks.Lock(st.Subject)
		err := t.states.SaveState(ctx, st)
		unlock()
		if err != nil {
			return n, fmt.Errorf("emotion: save state: %w", err)
		}
		n++
	}
	return n, nil
}

func (t *Tracker) load(ctx context.Context, subject string) (model.EmotionalState, error) {
	st, ok, err := t.states.LoadState(ctx, subject)
	if err != nil {
		return model.EmotionalState{}, fmt.Errorf("emotion: load state: %w", err)
	}
	if !ok {
		return t.fresh(subject), nil
	}
	// Momentum belongs to the tracker, not to stored history.
	st.Momentum = t.params.Momentum
	return st, nil
}

func (t *Tracker) fresh(subject string) model.EmotionalState {
	return model.EmotionalState{
		Subject:   subject,
		Emotion:   model.Neutral,
		Intensity: InitialIntensity,
		Momentum:  t.params.Momentum,
	}
}

// elapsed is zero for a state that has never been updated.
func (t *Tracker) elapsed(st model.EmotionalState) time.Duration {
	if st.LastUpdate.IsZero() {
		return 0
	}
	return t.now().Sub(st.LastUpdate)
}
