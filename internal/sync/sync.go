// Package sync reconciles item and card state across devices. Conflicts are
// decided per item, whole-record: the higher data_version wins, with the
// later updated_at breaking ties. Field-level merge is deliberately not
// attempted.
package sync

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
	"github.com/rememo/rememo/internal/storage"
)

// ItemChange is one device-side edit: the item with the device's version
// counter, the card states riding along with it, or a deletion marker.
type ItemChange struct {
	Item    domain.Item
	Cards   []domain.Card
	Deleted bool
}

// Request is one device's sync call: its last successful sync time and its
// local change set.
type Request struct {
	DeviceID string
	LastSync time.Time
	Changes  []ItemChange
}

// Response carries everything the device missed since LastSync, plus the
// sync start time both sides advance their clocks to.
type Response struct {
	Items    []domain.Item
	Cards    []domain.Card
	SyncedAt time.Time
	Applied  int
	Skipped  int
}

// Resolver applies the sync protocol against local storage.
type Resolver struct {
	db  *sql.DB
	log *slog.Logger
}

// NewResolver returns a sync resolver over the given database.
func NewResolver(db *sql.DB, log *slog.Logger) *Resolver {
	return &Resolver{db: db, log: log}
}

// Sync runs one reconciliation round for a device inside a single
// transaction: collect the server-side changes since the device's last sync,
// apply the device's winning changes, and advance the device's sync state to
// the round's start time.
//
// Card scheduling state is never merged: when an item change wins, its card
// rows replace the server's wholesale, because the device that performed the
// most recent review owns the authoritative scheduler_data.
func (r *Resolver) Sync(ctx context.Context, req Request) (*Response, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", domain.ErrValidation)
	}

	start := time.Now().UTC()
	resp := &Response{SyncedAt: start}

	err := dbx.WithTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		items := storage.NewItemRepo(tx)
		cards := storage.NewCardRepo(tx)

		// Server -> device changes are collected before the device's own
		// edits are applied, so a device never gets its own writes echoed
		// back in the same round.
		changed, err := items.ChangedSince(ctx, req.LastSync)
		if err != nil {
			return err
		}
		resp.Items = changed

		if len(changed) > 0 {
			ids := make([]string, len(changed))
			for i, item := range changed {
				ids[i] = item.ID
			}
			resp.Cards, err = cards.ListByItems(ctx, ids)
			if err != nil {
				return err
			}
		}

		for _, change := range req.Changes {
			applied, err := applyChange(ctx, items, cards, change)
			if err != nil {
				return err
			}
			if applied {
				resp.Applied++
			} else {
				resp.Skipped++
			}
		}

		return storage.NewSyncStateRepo(tx).Upsert(ctx, req.DeviceID, start)
	})
	if err != nil {
		return nil, err
	}

	r.log.Info("sync round complete",
		"device_id", req.DeviceID,
		"sent", len(resp.Items),
		"applied", resp.Applied,
		"skipped", resp.Skipped,
	)
	return resp, nil
}

// applyChange resolves one incoming item change against the server copy.
func applyChange(ctx context.Context, items *storage.ItemRepo, cards *storage.CardRepo, change ItemChange) (bool, error) {
	current, err := items.GetByID(ctx, change.Item.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		if change.Deleted {
			// Deleting something the server never saw is a no-op.
			return false, nil
		}
		current = nil
	case err != nil:
		return false, err
	}

	if current != nil && !wins(&change.Item, current) {
		return false, nil
	}

	if change.Deleted {
		if err := items.Delete(ctx, change.Item.ID); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := items.Upsert(ctx, &change.Item); err != nil {
		return false, err
	}
	for i := range change.Cards {
		if err := cards.Upsert(ctx, &change.Cards[i]); err != nil {
			return false, err
		}
	}
	return true, nil
}

// wins reports whether the incoming item beats the current one: higher
// data_version outright, later updated_at on equal versions.
func wins(incoming, current *domain.Item) bool {
	if incoming.DataVersion != current.DataVersion {
		return incoming.DataVersion > current.DataVersion
	}
	return incoming.UpdatedAt.After(current.UpdatedAt)
}
