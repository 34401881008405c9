package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// CardRepo persists cards and their scheduling state.
type CardRepo struct {
	db dbx.DBTX
}

// NewCardRepo returns a card repository bound to the given DBTX.
func NewCardRepo(db dbx.DBTX) *CardRepo {
	return &CardRepo{db: db}
}

const cardColumns = `id, item_id, card_index, next_review, last_review, scheduler_data, priority, suspended`

// CreateForItem materializes count cards with card_index 0..count-1, schedule
// unset, default priority, not suspended.
func (r *CardRepo) CreateForItem(ctx context.Context, itemID string, count int) ([]domain.Card, error) {
	if count < 1 {
		return nil, fmt.Errorf("%w: card count must be at least 1, got %d", domain.ErrValidation, count)
	}

	cards := make([]domain.Card, 0, count)
	for i := 0; i < count; i++ {
		card := domain.NewCard(itemID, i)
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO cards (id, item_id, card_index, priority)
			VALUES (?, ?, ?, ?)
		`, card.ID, card.ItemID, card.CardIndex, card.Priority)
		if err != nil {
			return nil, fail("insert card", err)
		}
		cards = append(cards, *card)
	}
	return cards, nil
}

// GetByID returns the card or domain.ErrNotFound.
func (r *CardRepo) GetByID(ctx context.Context, id string) (*domain.Card, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanCard(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %s: %w", id, domain.ErrNotFound)
		}
		return nil, fail("select card", err)
	}
	return card, nil
}

// ListByItem returns the item's cards ordered by card_index.
func (r *CardRepo) ListByItem(ctx context.Context, itemID string) ([]domain.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE item_id = ? ORDER BY card_index
	`, itemID)
	if err != nil {
		return nil, fail("select cards", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// ListByItems returns all cards belonging to any of the given items.
func (r *CardRepo) ListByItems(ctx context.Context, itemIDs []string) ([]domain.Card, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(itemIDs)), ",")
	args := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+cardColumns+` FROM cards WHERE item_id IN (`+placeholders+`) ORDER BY item_id, card_index
	`, args...)
	if err != nil {
		return nil, fail("select cards by items", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// SetPriority sets the card's priority. Values outside [0,1] fail with
// domain.ErrValidation; there is no clamping.
func (r *CardRepo) SetPriority(ctx context.Context, id string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%w: priority must be within [0,1], got %g", domain.ErrValidation, value)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE cards SET priority = ? WHERE id = ?`, value, id)
	if err != nil {
		return fail("set card priority", err)
	}
	return expectOneRow(res, fmt.Sprintf("card %s", id))
}

// Suspend excludes the card from due queries. Idempotent: an already
// suspended card keeps its original suspension timestamp.
func (r *CardRepo) Suspend(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE cards SET suspended = COALESCE(suspended, ?) WHERE id = ?
	`, toNanos(at), id)
	if err != nil {
		return fail("suspend card", err)
	}
	return expectOneRow(res, fmt.Sprintf("card %s", id))
}

// Unsuspend restores due-query eligibility. Idempotent.
func (r *CardRepo) Unsuspend(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cards SET suspended = NULL WHERE id = ?`, id)
	if err != nil {
		return fail("unsuspend card", err)
	}
	return expectOneRow(res, fmt.Sprintf("card %s", id))
}

// UpdateSchedule writes the schedule computed by a review, guarded by an
// optimistic check that last_review and scheduler_data are unchanged since
// the card was loaded. A concurrent reviewer that got there first makes the
// guard miss, returning domain.ErrConflict so the caller can reload and
// recompute.
func (r *CardRepo) UpdateSchedule(ctx context.Context, card *domain.Card,
	nextReview time.Time, lastReview time.Time, schedulerData json.RawMessage) error {

	res, err := r.db.ExecContext(ctx, `
		UPDATE cards
		SET next_review = ?, last_review = ?, scheduler_data = ?
		WHERE id = ? AND last_review IS ? AND scheduler_data IS ?
	`, toNanos(nextReview), toNanos(lastReview), nullBytes(schedulerData),
		card.ID, toNullNanos(card.LastReview), nullBytes(card.SchedulerData))
	if err != nil {
		return fail("update card schedule", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fail("rows affected", err)
	}
	if n == 1 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM cards WHERE id = ?`, card.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("card %s: %w", card.ID, domain.ErrNotFound)
	}
	if err != nil {
		return fail("check card", err)
	}
	return fmt.Errorf("card %s changed since load: %w", card.ID, domain.ErrConflict)
}

// Upsert writes a card as-is. Used by the sync resolver when the owning
// item's change wins: the reviewing device owns the authoritative scheduling
// state, so the whole row is replaced rather than merged.
func (r *CardRepo) Upsert(ctx context.Context, card *domain.Card) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cards (id, item_id, card_index, next_review, last_review, scheduler_data, priority, suspended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			next_review = excluded.next_review,
			last_review = excluded.last_review,
			scheduler_data = excluded.scheduler_data,
			priority = excluded.priority,
			suspended = excluded.suspended
	`, card.ID, card.ItemID, card.CardIndex,
		toNullNanos(card.NextReview), toNullNanos(card.LastReview), nullBytes(card.SchedulerData),
		card.Priority, toNullNanos(card.Suspended))
	if err != nil {
		return fail("upsert card", err)
	}
	return nil
}

func scanCard(scan func(dest ...any) error) (*domain.Card, error) {
	var (
		card          domain.Card
		nextReview    sql.NullInt64
		lastReview    sql.NullInt64
		schedulerData sql.NullString
		suspended     sql.NullInt64
	)
	if err := scan(&card.ID, &card.ItemID, &card.CardIndex, &nextReview, &lastReview,
		&schedulerData, &card.Priority, &suspended); err != nil {
		return nil, err
	}
	card.NextReview = fromNullNanos(nextReview)
	card.LastReview = fromNullNanos(lastReview)
	card.Suspended = fromNullNanos(suspended)
	if schedulerData.Valid {
		card.SchedulerData = []byte(schedulerData.String)
	}
	return &card, nil
}

func collectCards(rows *sql.Rows) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		card, err := scanCard(rows.Scan)
		if err != nil {
			return nil, fail("scan card", err)
		}
		cards = append(cards, *card)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate cards", err)
	}
	return cards, nil
}
