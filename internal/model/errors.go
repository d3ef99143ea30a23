package model

import "errors"

var (
	// ErrNotFound reports a missing semantic entry. Unknown sessions and
	// subjects are never reported with it; they resolve to defaults.
	ErrNotFound = errors.New("not found")

	// ErrExists reports an insert whose id is already taken, including by a
	// deleted entry.
	ErrExists = errors.New("already exists")

	// ErrBudgetExceeded reports that the fixed context blocks alone do not
	// fit the token budget.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrProviderFailure wraps embedding and model-call failures.
	ErrProviderFailure = errors.New("provider failure")

	// ErrScorerFailure reports an importance or sentiment scorer that errored,
	// panicked, or returned a value outside its range.
	ErrScorerFailure = errors.New("scorer failure")
)
