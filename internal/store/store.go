// Package store provides SQLite persistence for the twin's state: semantic
// memory entries, per-subject emotional states and per-session turns.
package store

import (
	"github.com/Allreality/my-twin/internal/emotion"
	"github.com/Allreality/my-twin/internal/semantic"
	"github.com/Allreality/my-twin/internal/workmem"
)

var (
	_ semantic.Backend   = (*SQLiteStore)(nil)
	_ emotion.StateStore = (*SQLiteStore)(nil)
	_ workmem.Store      = (*TurnStore)(nil)
)
