package domain

import (
	"encoding/json"
	"time"
)

// Rating is the reviewer's response to a card. Its accepted range belongs to
// the scheduler strategy, not to the core: a strategy rejects out-of-range
// values with ErrInvalidRating rather than clamping them.
type Rating int

// Review is one immutable review event. SchedulerData snapshots the state the
// strategy produced for this review, so history can be replayed.
type Review struct {
	ID              string
	CardID          string
	Rating          Rating
	ReviewTimestamp time.Time
	Duration        *time.Duration
	SchedulerData   json.RawMessage
	DeviceID        string // empty when the reviewing device did not identify itself
}

// SyncState tracks, per device, when the last successful sync ran. It has no
// bearing on scheduling.
type SyncState struct {
	DeviceID string
	LastSync time.Time
}
