// Package review implements the transactional review-recording operation:
// load card and history, run the scheduler strategy, persist the review and
// the new schedule as one atomic unit.
package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
	"github.com/rememo/rememo/internal/scheduler"
	"github.com/rememo/rememo/internal/storage"
)

const (
	conflictRetries = 3
	conflictBackoff = 25 * time.Millisecond
)

// Recorder orchestrates record_review. The registry is passed in at
// construction; there is no ambient global strategy state.
type Recorder struct {
	db       *sql.DB
	registry *scheduler.Registry
	log      *slog.Logger
}

// NewRecorder returns a recorder using the given database and registry.
func NewRecorder(db *sql.DB, registry *scheduler.Registry, log *slog.Logger) *Recorder {
	return &Recorder{db: db, registry: registry, log: log}
}

// Request describes one review to record. A zero ReviewTime means "now".
type Request struct {
	CardID     string
	Rating     domain.Rating
	ReviewTime time.Time
	DeviceID   string
	Duration   *time.Duration
}

// Record executes the review-recording sequence atomically: any failure
// leaves no partial writes. A concurrent review of the same card surfaces as
// a staleness conflict, which is retried transparently a small number of
// times; the strategies being pure functions makes the retry safe and cheap.
func (r *Recorder) Record(ctx context.Context, req Request) (*domain.Review, error) {
	if req.ReviewTime.IsZero() {
		req.ReviewTime = time.Now().UTC()
	}

	var rec *domain.Review
	backoff := retry.WithMaxRetries(conflictRetries, retry.NewConstant(conflictBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		rec, err = r.recordOnce(ctx, req)
		if errors.Is(err, domain.ErrConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Recorder) recordOnce(ctx context.Context, req Request) (*domain.Review, error) {
	var rec *domain.Review
	err := dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		cards := storage.NewCardRepo(tx)
		card, err := cards.GetByID(ctx, req.CardID)
		if err != nil {
			return err
		}

		item, err := storage.NewItemRepo(tx).GetByID(ctx, card.ItemID)
		if err != nil {
			return err
		}

		history, err := storage.NewReviewRepo(tx).ListByCard(ctx, card.ID)
		if err != nil {
			return err
		}

		strategy, err := r.registry.Resolve(item.ItemType)
		if err != nil {
			return err
		}

		if len(card.SchedulerData) > 0 && !json.Valid(card.SchedulerData) {
			r.log.Warn("card has undecodable scheduler data, treating as first review",
				"card_id", card.ID, "scheduler_type", item.ItemType)
		}

		result, err := strategy.Compute(scheduler.Request{
			History:       history,
			SchedulerData: card.SchedulerData,
			LastReview:    card.LastReview,
			NextReview:    card.NextReview,
			Rating:        req.Rating,
			Now:           req.ReviewTime,
		})
		if err != nil {
			return err
		}

		rec = &domain.Review{
			ID:              uuid.NewString(),
			CardID:          card.ID,
			Rating:          req.Rating,
			ReviewTimestamp: req.ReviewTime,
			Duration:        req.Duration,
			SchedulerData:   result.SchedulerData,
			DeviceID:        req.DeviceID,
		}
		if err := storage.NewReviewRepo(tx).Insert(ctx, rec); err != nil {
			return err
		}

		// Optimistic guard: fails with ErrConflict when another review of
		// this card committed since our load, rolling back the whole tx.
		if err := cards.UpdateSchedule(ctx, card, result.NextReview, req.ReviewTime, result.SchedulerData); err != nil {
			return err
		}

		_, err = storage.NewItemRepo(tx).BumpDataVersion(ctx, card.ItemID, req.ReviewTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
