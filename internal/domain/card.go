package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultPriority is assigned to freshly materialized cards.
const DefaultPriority = 0.5

// Card is one reviewable, independently scheduled unit derived from an item.
// SchedulerData is opaque: only the strategy registered for the owning item's
// type may decode it.
type Card struct {
	ID            string
	ItemID        string
	CardIndex     int
	NextReview    *time.Time // nil until a schedule exists
	LastReview    *time.Time // nil until first review
	SchedulerData json.RawMessage
	Priority      float64    // clamped to [0,1]
	Suspended     *time.Time // non-nil excludes the card from due queries
}

// NewCard materializes a card for an item. The schedule stays unset until the
// first review.
func NewCard(itemID string, cardIndex int) *Card {
	return &Card{
		ID:        uuid.NewString(),
		ItemID:    itemID,
		CardIndex: cardIndex,
		Priority:  DefaultPriority,
	}
}

// IsSuspended reports whether the card is excluded from due queries.
func (c *Card) IsSuspended() bool {
	return c.Suspended != nil
}
