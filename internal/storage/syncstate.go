package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// SyncStateRepo tracks the last successful sync per device.
type SyncStateRepo struct {
	db dbx.DBTX
}

// NewSyncStateRepo returns a sync-state repository bound to the given DBTX.
func NewSyncStateRepo(db dbx.DBTX) *SyncStateRepo {
	return &SyncStateRepo{db: db}
}

// Get returns the device's sync state, or nil when the device has never
// synced.
func (r *SyncStateRepo) Get(ctx context.Context, deviceID string) (*domain.SyncState, error) {
	var lastSync int64
	err := r.db.QueryRowContext(ctx,
		`SELECT last_sync FROM sync_state WHERE device_id = ?`, deviceID).Scan(&lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fail("select sync state", err)
	}
	return &domain.SyncState{DeviceID: deviceID, LastSync: fromNanos(lastSync)}, nil
}

// Upsert advances the device's last successful sync time.
func (r *SyncStateRepo) Upsert(ctx context.Context, deviceID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (device_id, last_sync) VALUES (?, ?)
		ON CONFLICT(device_id) DO UPDATE SET last_sync = excluded.last_sync
	`, deviceID, toNanos(at))
	if err != nil {
		return fail("upsert sync state", err)
	}
	return nil
}
