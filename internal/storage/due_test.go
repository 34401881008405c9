package storage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rememo/rememo/internal/domain"
)

// schedule gives a card a concrete next_review and priority directly.
func schedule(t *testing.T, db *sql.DB, cardID string, next time.Time, priority float64) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		`UPDATE cards SET next_review = ?, priority = ? WHERE id = ?`,
		toNanos(next), priority, cardID)
	require.NoError(t, err)
}

func TestDueSelectsElapsedUnsuspendedCards(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, cards := seedItem(t, db, "simple-defer", 4)
	schedule(t, db, cards[0].ID, now.Add(-time.Hour), 0.5)  // due
	schedule(t, db, cards[1].ID, now, 0.5)                  // due exactly now
	schedule(t, db, cards[2].ID, now.Add(time.Hour), 0.5)   // not yet due
	schedule(t, db, cards[3].ID, now.Add(-2*time.Hour), 0.5) // due but suspended
	require.NoError(t, NewCardRepo(db).Suspend(ctx, cards[3].ID, now))

	page, next, err := NewDueQuery(db).Due(ctx, now, DueFilter{}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Nil(t, next)

	got := []string{page[0].ID, page[1].ID}
	assert.Contains(t, got, cards[0].ID)
	assert.Contains(t, got, cards[1].ID)

	// Unsuspending restores eligibility regardless of next_review.
	require.NoError(t, NewCardRepo(db).Unsuspend(ctx, cards[3].ID))
	page, _, err = NewDueQuery(db).Due(ctx, now, DueFilter{}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestDueOrderingIsTotal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, cards := seedItem(t, db, "simple-defer", 4)
	// Priority beats urgency; urgency breaks priority ties; id breaks full ties.
	schedule(t, db, cards[0].ID, now.Add(-time.Hour), 0.2)
	schedule(t, db, cards[1].ID, now.Add(-3*time.Hour), 0.9)
	schedule(t, db, cards[2].ID, now.Add(-2*time.Hour), 0.9)
	schedule(t, db, cards[3].ID, now.Add(-2*time.Hour), 0.9)

	page, _, err := NewDueQuery(db).Due(ctx, now, DueFilter{}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 4)

	assert.Equal(t, cards[1].ID, page[0].ID, "highest priority, earliest next_review first")
	tieA, tieB := page[1].ID, page[2].ID
	assert.Less(t, tieA, tieB, "equal (priority, next_review) ordered by id")
	assert.Equal(t, cards[0].ID, page[3].ID, "lowest priority last")
}

func TestDueCursorPagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	_, cards := seedItem(t, db, "simple-defer", 5)
	for i, card := range cards {
		schedule(t, db, card.ID, now.Add(-time.Duration(i+1)*time.Minute), float64(i)*0.2)
	}

	var (
		seen  []string
		after *Cursor
	)
	for {
		page, next, err := NewDueQuery(db).Due(ctx, now, DueFilter{}, after, 2)
		require.NoError(t, err)
		for _, card := range page {
			seen = append(seen, card.ID)
		}
		if next == nil {
			break
		}
		// Cursors survive the encode/decode round trip clients perform.
		decoded, err := DecodeCursor(next.Encode())
		require.NoError(t, err)
		after = decoded
	}

	require.Len(t, seen, 5)
	unique := make(map[string]bool, len(seen))
	for _, id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 5, "no row is repeated or skipped across pages")
}

func TestDueFilters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	vocabItem, vocabCards := seedItem(t, db, "fsrs", 1)
	_, factCards := seedItem(t, db, "simple-defer", 1)
	schedule(t, db, vocabCards[0].ID, now.Add(-time.Hour), 0.9)
	schedule(t, db, factCards[0].ID, now.Add(-time.Hour), 0.3)

	require.NoError(t, NewTagRepo(db).ReplaceItemTags(ctx, vocabItem.ID, []string{"spanish", "verbs"}, now))

	q := NewDueQuery(db)

	page, _, err := q.Due(ctx, now, DueFilter{ItemType: "fsrs"}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, vocabCards[0].ID, page[0].ID)
	assert.Equal(t, "fsrs", page[0].ItemType)

	page, _, err = q.Due(ctx, now, DueFilter{Tags: []string{"spanish"}}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, vocabCards[0].ID, page[0].ID)

	page, _, err = q.Due(ctx, now, DueFilter{Tags: []string{"nope"}}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	lo, hi := 0.5, 1.0
	page, _, err = q.Due(ctx, now, DueFilter{MinPriority: &lo, MaxPriority: &hi}, nil, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, vocabCards[0].ID, page[0].ID)
}

func TestDueFilterValidation(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	q := NewDueQuery(db)

	bad := 1.5
	_, _, err := q.Due(ctx, now, DueFilter{MinPriority: &bad}, nil, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	lo, hi := 0.8, 0.2
	_, _, err = q.Due(ctx, now, DueFilter{MinPriority: &lo, MaxPriority: &hi}, nil, 10)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = DecodeCursor("not base64!!")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
