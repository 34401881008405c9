package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rememo/rememo/internal/domain"
)

// simpleState is the opaque scheduler_data payload of the simple-defer
// strategy: just the interval that produced the current schedule, so that
// compounding ratings keep compounding across reviews.
type simpleState struct {
	IntervalDays float64 `json:"interval_days"`
}

const simpleDefaultInterval = 24 * time.Hour

// SimpleDefer is a fixed-table deferral strategy with no memory model and no
// retention estimate. Ratings 1-3 map to fixed intervals; 4 and 5 multiply
// the previous interval.
type SimpleDefer struct{}

// NewSimpleDefer returns the simple-defer strategy.
func NewSimpleDefer() *SimpleDefer { return &SimpleDefer{} }

func (*SimpleDefer) Name() string { return TypeSimpleDefer }

// Compute maps the rating to the next interval:
//
//	1 -> 1 day
//	2 -> 3 days
//	3 -> 7 days
//	4 -> previous interval x 1.3
//	5 -> previous interval x 1.7
func (*SimpleDefer) Compute(req Request) (*Result, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: simple-defer accepts 1-5, got %d", domain.ErrInvalidRating, req.Rating)
	}

	prev := previousInterval(req)

	var next time.Duration
	switch req.Rating {
	case 1:
		next = 24 * time.Hour
	case 2:
		next = 3 * 24 * time.Hour
	case 3:
		next = 7 * 24 * time.Hour
	case 4:
		next = time.Duration(float64(prev) * 1.3)
	case 5:
		next = time.Duration(float64(prev) * 1.7)
	}

	data, err := json.Marshal(simpleState{IntervalDays: next.Hours() / 24})
	if err != nil {
		return nil, fmt.Errorf("encode simple-defer state: %w", err)
	}

	return &Result{
		NextReview:    req.Now.Add(next),
		SchedulerData: data,
	}, nil
}

// previousInterval recovers the interval of the current schedule: from the
// stored state when it decodes, from the last_review -> next_review delta
// otherwise, and a 1-day default when neither exists.
func previousInterval(req Request) time.Duration {
	var st simpleState
	if len(req.SchedulerData) > 0 && json.Unmarshal(req.SchedulerData, &st) == nil && st.IntervalDays > 0 {
		return time.Duration(st.IntervalDays * 24 * float64(time.Hour))
	}
	if req.LastReview != nil && req.NextReview != nil {
		if d := req.NextReview.Sub(*req.LastReview); d > 0 {
			return d
		}
	}
	return simpleDefaultInterval
}
