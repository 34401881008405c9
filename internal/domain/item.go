// Package domain holds the core data model of the review scheduler: items,
// their reviewable cards, immutable review records, and the sentinel errors
// shared by every layer above storage.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Item is the unit of content to be remembered. Its content blob is owned and
// validated by the external item service; the core never inspects it.
type Item struct {
	ID          string
	ItemType    string // key into the scheduler registry
	Title       string
	ItemData    json.RawMessage
	DataVersion int64 // monotonic, starts at 1, bumped on every sync-relevant mutation
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewItem creates an item at version 1 with both timestamps set to now.
func NewItem(itemType, title string, data json.RawMessage, now time.Time) *Item {
	return &Item{
		ID:          uuid.NewString(),
		ItemType:    itemType,
		Title:       title,
		ItemData:    data,
		DataVersion: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Tag labels items for filtering. Invisible tags are kept out of listings but
// still usable as filters.
type Tag struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Visible   bool
}
