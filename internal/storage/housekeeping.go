package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Housekeeper runs the low-frequency maintenance pass: orphan cleanup and a
// statistics refresh. It touches only tables this package owns and runs
// independently of request handling, so it never blocks the request path.
type Housekeeper struct {
	db       *sql.DB
	log      *slog.Logger
	interval time.Duration
}

// NewHousekeeper returns a housekeeper ticking at the given interval.
func NewHousekeeper(db *sql.DB, log *slog.Logger, interval time.Duration) *Housekeeper {
	return &Housekeeper{db: db, log: log, interval: interval}
}

// Run loops until ctx is cancelled. Failures are logged and retried on the
// next tick; housekeeping never takes the process down.
func (h *Housekeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.RunOnce(ctx); err != nil {
				h.log.Warn("housekeeping pass failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single pass: delete rows orphaned by out-of-band
// imports (foreign keys already cascade in normal operation), then refresh
// the stats row.
func (h *Housekeeper) RunOnce(ctx context.Context) error {
	orphanedReviews, err := h.deleteOrphans(ctx,
		`DELETE FROM reviews WHERE card_id NOT IN (SELECT id FROM cards)`)
	if err != nil {
		return fail("delete orphaned reviews", err)
	}
	orphanedCards, err := h.deleteOrphans(ctx,
		`DELETE FROM cards WHERE item_id NOT IN (SELECT id FROM items)`)
	if err != nil {
		return fail("delete orphaned cards", err)
	}
	orphanedLinks, err := h.deleteOrphans(ctx,
		`DELETE FROM item_tags WHERE item_id NOT IN (SELECT id FROM items) OR tag_id NOT IN (SELECT id FROM tags)`)
	if err != nil {
		return fail("delete orphaned item tags", err)
	}

	now := time.Now()
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO stats (id, cards_total, cards_due, cards_suspended, reviews_total, refreshed_at)
		VALUES (
			1,
			(SELECT COUNT(*) FROM cards),
			(SELECT COUNT(*) FROM cards WHERE suspended IS NULL AND next_review IS NOT NULL AND next_review <= ?),
			(SELECT COUNT(*) FROM cards WHERE suspended IS NOT NULL),
			(SELECT COUNT(*) FROM reviews),
			?
		)
		ON CONFLICT(id) DO UPDATE SET
			cards_total = excluded.cards_total,
			cards_due = excluded.cards_due,
			cards_suspended = excluded.cards_suspended,
			reviews_total = excluded.reviews_total,
			refreshed_at = excluded.refreshed_at
	`, toNanos(now), toNanos(now))
	if err != nil {
		return fail("refresh stats", err)
	}

	if orphanedReviews+orphanedCards+orphanedLinks > 0 {
		h.log.Info("housekeeping removed orphans",
			"reviews", orphanedReviews, "cards", orphanedCards, "item_tags", orphanedLinks)
	}
	return nil
}

func (h *Housekeeper) deleteOrphans(ctx context.Context, query string) (int64, error) {
	res, err := h.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats is the snapshot maintained by the housekeeping pass.
type Stats struct {
	CardsTotal     int64
	CardsDue       int64
	CardsSuspended int64
	ReviewsTotal   int64
	RefreshedAt    time.Time
}

// ReadStats returns the last refreshed snapshot, or nil before the first
// housekeeping pass.
func ReadStats(ctx context.Context, db *sql.DB) (*Stats, error) {
	var (
		s           Stats
		refreshedAt int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT cards_total, cards_due, cards_suspended, reviews_total, refreshed_at FROM stats WHERE id = 1
	`).Scan(&s.CardsTotal, &s.CardsDue, &s.CardsSuspended, &s.ReviewsTotal, &refreshedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fail("read stats", err)
	}
	s.RefreshedAt = fromNanos(refreshedAt)
	return &s, nil
}
