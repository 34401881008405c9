package scheduler

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rememo/rememo/internal/domain"
)

// FSRS rating domain. The strategy rejects anything outside Again..Easy.
const (
	Again domain.Rating = 1
	Hard  domain.Rating = 2
	Good  domain.Rating = 3
	Easy  domain.Rating = 4
)

// fsrsState is the opaque scheduler_data payload of the FSRS-style strategy:
// the card's memory state as a (stability, difficulty) pair.
type fsrsState struct {
	Stability  float64 `json:"stability"`
	Difficulty float64 `json:"difficulty"`
}

// FSRSParams tunes the FSRS-style strategy. The growth/lapse constants are
// starting points, not fitted weights.
type FSRSParams struct {
	// TargetRetention is the desired recall probability at the scheduled
	// review time, e.g. 0.9 for 90%.
	TargetRetention float64

	// Growth scales the stability increase of a successful review.
	Growth float64
	// StabilityDecay damps the gain of already-stable cards.
	StabilityDecay float64
	// RetrievabilitySpread controls how strongly a low retrievability at
	// review time amplifies the stability gain.
	RetrievabilitySpread float64
	// LapseScale scales the post-lapse stability.
	LapseScale float64
}

// DefaultFSRSParams returns sensible defaults with 90% target retention.
func DefaultFSRSParams() FSRSParams {
	return FSRSParams{
		TargetRetention:      0.9,
		Growth:               3.0,
		StabilityDecay:       0.1,
		RetrievabilitySpread: 1.2,
		LapseScale:           1.8,
	}
}

// Per-rating initialization of the memory state on a card's first review.
// Higher ratings start with higher stability and lower difficulty.
var (
	initStability  = [4]float64{0.4, 1.2, 3.2, 7.2}
	initDifficulty = [4]float64{7.5, 6.2, 5.0, 3.4}
)

// Additive difficulty delta per rating, clamped to [1,10] after applying.
var difficultyDelta = [4]float64{1.4, 0.6, -0.2, -0.8}

// Multiplier on the stability gain per successful rating.
var gainModifier = [4]float64{0, 0.6, 1.0, 1.5}

const (
	minStability  = 0.1
	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// FSRS is a memory-model strategy tracking stability S (days until
// retrievability drops to ~90%) and difficulty D per card, with a power-law
// forgetting curve R(t) = (1 + t/(9S))^-1.
type FSRS struct {
	params FSRSParams
}

// NewFSRS returns an FSRS-style strategy with the given parameters.
func NewFSRS(p FSRSParams) *FSRS { return &FSRS{params: p} }

func (*FSRS) Name() string { return TypeFSRS }

// Compute updates (S, D) for the rating and schedules the next review at the
// point where predicted retrievability falls to the target retention.
//
// A card with no usable scheduler state takes the first-review path: (S, D)
// come straight from the per-rating lookup tables. Undecodable state is
// treated the same way, never as a fatal error.
func (f *FSRS) Compute(req Request) (*Result, error) {
	if req.Rating < Again || req.Rating > Easy {
		return nil, fmt.Errorf("%w: fsrs accepts 1-4, got %d", domain.ErrInvalidRating, req.Rating)
	}

	st, ok := decodeFSRSState(req.SchedulerData)
	if !ok || req.LastReview == nil {
		st = fsrsState{
			Stability:  initStability[req.Rating-1],
			Difficulty: initDifficulty[req.Rating-1],
		}
	} else {
		elapsed := req.Now.Sub(*req.LastReview).Hours() / 24
		if elapsed < 0 {
			elapsed = 0
		}
		r := retrievability(elapsed, st.Stability)

		st.Difficulty = clamp(st.Difficulty+difficultyDelta[req.Rating-1], minDifficulty, maxDifficulty)
		if req.Rating == Again {
			st.Stability = f.lapseStability(st.Difficulty, st.Stability, r)
		} else {
			st.Stability = f.recallStability(st.Difficulty, st.Stability, r, req.Rating)
		}
	}

	interval := f.nextInterval(st.Stability)
	retention := retrievability(interval.Hours()/24, st.Stability)

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode fsrs state: %w", err)
	}

	return &Result{
		NextReview:    req.Now.Add(interval),
		SchedulerData: data,
		Retention:     &retention,
	}, nil
}

// retrievability is the predicted recall probability after elapsed days at
// stability s: R = (1 + t/(9s))^-1.
func retrievability(elapsedDays, s float64) float64 {
	if s < minStability {
		s = minStability
	}
	return 1 / (1 + elapsedDays/(9*s))
}

// recallStability grows stability after a successful review. The gain rises
// as retrievability at review time falls, so reviewing near the forgetting
// point earns the largest increase. The gain is strictly positive whenever
// any time has elapsed, which keeps stability monotonic under repeated
// successful reviews.
func (f *FSRS) recallStability(d, s, r float64, rating domain.Rating) float64 {
	gain := f.params.Growth *
		(11 - d) / 10 *
		math.Pow(s, -f.params.StabilityDecay) *
		(math.Exp(f.params.RetrievabilitySpread*(1-r)) - 1) *
		gainModifier[rating-1]
	return s * (1 + gain)
}

// lapseStability resets stability downward after a failed review, driven by
// difficulty and the pre-lapse stability. It never exceeds the pre-lapse
// value.
func (f *FSRS) lapseStability(d, s, r float64) float64 {
	lapsed := f.params.LapseScale *
		math.Pow(d, -0.4) *
		(math.Pow(s+1, 0.3) - 1) *
		math.Exp(f.params.RetrievabilitySpread*(1-r))
	return clamp(math.Min(lapsed, s), minStability, math.Inf(1))
}

// nextInterval inverts the forgetting curve: the time t at which R(t, s)
// equals the target retention, i.e. t = 9s(1/target - 1).
func (f *FSRS) nextInterval(s float64) time.Duration {
	days := 9 * s * (1/f.params.TargetRetention - 1)
	return time.Duration(days * 24 * float64(time.Hour))
}

func decodeFSRSState(data json.RawMessage) (fsrsState, bool) {
	var st fsrsState
	if len(data) == 0 {
		return st, false
	}
	if err := json.Unmarshal(data, &st); err != nil || st.Stability <= 0 {
		return st, false
	}
	return st, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
