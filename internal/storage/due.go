package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// Due-query page size bounds.
const (
	defaultDueLimit = 50
	maxDueLimit     = 500
)

// DueFilter narrows the due-card selection. Zero values mean "no filter".
// Tag filtering matches items carrying at least one of the given tag names.
type DueFilter struct {
	ItemType    string
	Tags        []string
	MinPriority *float64
	MaxPriority *float64
}

// DueCard is a due query row: the card plus the item fields a review client
// needs to render it.
type DueCard struct {
	domain.Card
	ItemType string
	Title    string
}

// Cursor marks a position in the due ordering (priority DESC, next_review
// ASC, id ASC). The triple makes the order total, so a page boundary stays
// well-defined even when concurrent reviews reschedule cards.
type Cursor struct {
	Priority   float64 `json:"p"`
	NextReview int64   `json:"n"` // unix nanoseconds
	ID         string  `json:"id"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by Encode. Malformed tokens fail with
// domain.ErrValidation.
func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("%w: malformed cursor", domain.ErrValidation)
	}
	return &c, nil
}

// DueQuery is the read-only engine selecting what should be reviewed now.
type DueQuery struct {
	db dbx.DBTX
}

// NewDueQuery returns a due query engine bound to the given DBTX.
func NewDueQuery(db dbx.DBTX) *DueQuery {
	return &DueQuery{db: db}
}

// Due returns the page of cards with next_review <= now and no suspension,
// ordered by priority descending, then next_review ascending, then id. The
// returned cursor is nil when the page was not full.
func (q *DueQuery) Due(ctx context.Context, now time.Time, filter DueFilter, after *Cursor, limit int) ([]DueCard, *Cursor, error) {
	if limit <= 0 {
		limit = defaultDueLimit
	}
	if limit > maxDueLimit {
		limit = maxDueLimit
	}
	if err := validateFilter(filter); err != nil {
		return nil, nil, err
	}

	var (
		where = []string{"c.next_review IS NOT NULL", "c.next_review <= ?", "c.suspended IS NULL"}
		args  = []any{toNanos(now)}
	)

	if filter.ItemType != "" {
		where = append(where, "i.item_type = ?")
		args = append(args, filter.ItemType)
	}
	if filter.MinPriority != nil {
		where = append(where, "c.priority >= ?")
		args = append(args, *filter.MinPriority)
	}
	if filter.MaxPriority != nil {
		where = append(where, "c.priority <= ?")
		args = append(args, *filter.MaxPriority)
	}
	if len(filter.Tags) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.Tags)), ",")
		where = append(where, `EXISTS (
			SELECT 1 FROM item_tags it
			JOIN tags t ON t.id = it.tag_id
			WHERE it.item_id = i.id AND t.name IN (`+placeholders+`)
		)`)
		for _, tag := range filter.Tags {
			args = append(args, tag)
		}
	}
	if after != nil {
		// Rows strictly after the cursor triple in the defined order.
		where = append(where, `(c.priority < ? OR (c.priority = ? AND (c.next_review > ? OR (c.next_review = ? AND c.id > ?))))`)
		args = append(args, after.Priority, after.Priority, after.NextReview, after.NextReview, after.ID)
	}

	query := `
		SELECT c.id, c.item_id, c.card_index, c.next_review, c.last_review,
		       c.scheduler_data, c.priority, c.suspended, i.item_type, i.title
		FROM cards c
		JOIN items i ON i.id = c.item_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY c.priority DESC, c.next_review ASC, c.id ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fail("select due cards", err)
	}
	defer rows.Close()

	var page []DueCard
	for rows.Next() {
		var dc DueCard
		card, err := scanCard(func(dest ...any) error {
			return rows.Scan(append(dest, &dc.ItemType, &dc.Title)...)
		})
		if err != nil {
			return nil, nil, fail("scan due card", err)
		}
		dc.Card = *card
		page = append(page, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fail("iterate due cards", err)
	}

	var next *Cursor
	if len(page) == limit {
		last := page[len(page)-1]
		next = &Cursor{
			Priority:   last.Priority,
			NextReview: toNanos(*last.NextReview),
			ID:         last.ID,
		}
	}
	return page, next, nil
}

func validateFilter(f DueFilter) error {
	for _, p := range []*float64{f.MinPriority, f.MaxPriority} {
		if p != nil && (*p < 0 || *p > 1) {
			return fmt.Errorf("%w: priority bound must be within [0,1], got %g", domain.ErrValidation, *p)
		}
	}
	if f.MinPriority != nil && f.MaxPriority != nil && *f.MinPriority > *f.MaxPriority {
		return fmt.Errorf("%w: min priority above max priority", domain.ErrValidation)
	}
	return nil
}
