// Package workmem holds the bounded, time-ordered window of recent turns
// for each session. Appends past MaxTurns evict the oldest turns; a session
// with no append for IdleTTL is discarded as a whole.
package workmem

import (
	"context"
	"strings"
	"time"

	"github.com/Allreality/my-twin/internal/model"
)

const (
	DefaultMaxTurns     = 50
	DefaultIdleTTL      = 24 * time.Hour
	DefaultSummaryChars = 50
)

// Options configures a working memory backend.
type Options struct {
	MaxTurns int
	IdleTTL  time.Duration
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{MaxTurns: DefaultMaxTurns, IdleTTL: DefaultIdleTTL}
}

// WithDefaults fills unset fields with the package defaults.
func (o Options) WithDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = DefaultMaxTurns
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = DefaultIdleTTL
	}
	return o
}

// Store is a per-session turn buffer. Unknown and expired sessions read as
// empty; they are never an error.
type Store interface {
	// Append adds turns in order, evicting from the front past the cap.
	Append(ctx context.Context, sessionID string, turns ...model.Turn) error

	// Recent returns the last n turns oldest-first. n <= 0 returns every
	// retained turn.
	Recent(ctx context.Context, sessionID string, n int) ([]model.Turn, error)

	// Clear discards a session's history.
	Clear(ctx context.Context, sessionID string) error
}

// Summarize renders the last n turns of a session, each cut to maxChars.
// It returns an empty string when the session has no turns.
func Summarize(ctx context.Context, s Store, sessionID string, n, maxChars int) (string, error) {
	turns, err := s.Recent(ctx, sessionID, n)
	if err != nil {
		return "", err
	}
	lines := SummaryLines(turns, maxChars)
	if len(lines) == 0 {
		return "", nil
	}
	return "Recent conversation:\n" + strings.Join(lines, "\n"), nil
}

// SummaryLines renders one line per turn, oldest first.
func SummaryLines(turns []model.Turn, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultSummaryChars
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		speaker := "User"
		if t.Role == model.RoleAssistant {
			speaker = "You"
		}
		lines = append(lines, speaker+": "+truncate(strings.TrimSpace(t.Text), maxChars))
	}
	return lines
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

func tail(turns []model.Turn, n int) []model.Turn {
	if n > 0 && len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	out := make([]model.Turn, len(turns))
	copy(out, turns)
	return out
}
