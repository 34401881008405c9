package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// ReviewRepo persists review records. History is append-only: reviews are
// inserted exactly once and never updated or deleted outside the item
// cascade.
type ReviewRepo struct {
	db dbx.DBTX
}

// NewReviewRepo returns a review repository bound to the given DBTX.
func NewReviewRepo(db dbx.DBTX) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// Insert appends one review record.
func (r *ReviewRepo) Insert(ctx context.Context, review *domain.Review) error {
	var durationMs sql.NullInt64
	if review.Duration != nil {
		durationMs = sql.NullInt64{Int64: review.Duration.Milliseconds(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reviews (id, card_id, rating, review_timestamp, duration_ms, scheduler_data, device_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, review.ID, review.CardID, int(review.Rating), toNanos(review.ReviewTimestamp),
		durationMs, nullBytes(review.SchedulerData), nullString(review.DeviceID))
	if err != nil {
		return fail("insert review", err)
	}
	return nil
}

// ListByCard returns the card's full history ordered by review_timestamp
// ascending, suitable for replay.
func (r *ReviewRepo) ListByCard(ctx context.Context, cardID string) ([]domain.Review, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, card_id, rating, review_timestamp, duration_ms, scheduler_data, device_id
		FROM reviews
		WHERE card_id = ?
		ORDER BY review_timestamp, id
	`, cardID)
	if err != nil {
		return nil, fail("select reviews", err)
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var (
			review        domain.Review
			rating        int
			ts            int64
			durationMs    sql.NullInt64
			schedulerData sql.NullString
			deviceID      sql.NullString
		)
		if err := rows.Scan(&review.ID, &review.CardID, &rating, &ts, &durationMs, &schedulerData, &deviceID); err != nil {
			return nil, fail("scan review", err)
		}
		review.Rating = domain.Rating(rating)
		review.ReviewTimestamp = fromNanos(ts)
		if durationMs.Valid {
			d := time.Duration(durationMs.Int64) * time.Millisecond
			review.Duration = &d
		}
		if schedulerData.Valid {
			review.SchedulerData = []byte(schedulerData.String)
		}
		review.DeviceID = deviceID.String
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate reviews", err)
	}
	return reviews, nil
}
