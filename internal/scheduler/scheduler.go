// Package scheduler computes when a card should next be reviewed. A Strategy
// is a pure function of the card's review history, its opaque scheduler state,
// the given rating, and the review time; the Registry maps the scheduler-type
// string carried on an item to a Strategy instance.
package scheduler

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rememo/rememo/internal/domain"
)

// Built-in scheduler type names.
const (
	TypeSimpleDefer = "simple-defer"
	TypeFSRS        = "fsrs"
)

// Request carries everything a strategy may look at. History is ordered by
// review timestamp ascending. SchedulerData is the card's current opaque
// state, nil when no schedule exists yet.
type Request struct {
	History       []domain.Review
	SchedulerData json.RawMessage
	LastReview    *time.Time
	NextReview    *time.Time
	Rating        domain.Rating
	Now           time.Time
}

// Result is the outcome of a computation. NextReview is strictly after the
// request's Now. Retention is the predicted recall probability at NextReview,
// nil for strategies without a retention concept.
type Result struct {
	NextReview    time.Time
	SchedulerData json.RawMessage
	Retention     *float64
}

// Strategy computes the next schedule for one review. Implementations must be
// pure: no clocks, no I/O, no hidden state, so that a computation can be
// replayed or retried cheaply. A rating outside the strategy's accepted
// domain fails with domain.ErrInvalidRating, never a silent clamp.
type Strategy interface {
	Name() string
	Compute(req Request) (*Result, error)
}

// Registry resolves scheduler-type names to strategies. It is constructed
// once at startup and passed by reference into the review recorder; there is
// no ambient global registry.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry preloaded with the built-in strategies.
// Register replaces entries by name, so callers can swap a built-in for a
// differently parameterized instance before first use.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[string]Strategy)}
	r.Register(NewSimpleDefer())
	r.Register(NewFSRS(DefaultFSRSParams()))
	return r
}

// Register adds or replaces the strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Resolve returns the strategy registered under name, or
// domain.ErrUnknownSchedulerType. That failure aborts the enclosing review
// operation; it is not retryable without operator intervention.
func (r *Registry) Resolve(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSchedulerType, name)
	}
	return s, nil
}
