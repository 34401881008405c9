package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// ItemRepo persists items. Bound to a DBTX so it participates in whatever
// transaction the caller runs.
type ItemRepo struct {
	db dbx.DBTX
}

// NewItemRepo returns an item repository bound to the given DBTX.
func NewItemRepo(db dbx.DBTX) *ItemRepo {
	return &ItemRepo{db: db}
}

const itemColumns = `id, item_type, title, item_data, data_version, created_at, updated_at`

// Create inserts a new item row.
func (r *ItemRepo) Create(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, item_type, title, item_data, data_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.ItemType, item.Title, string(item.ItemData), item.DataVersion,
		toNanos(item.CreatedAt), toNanos(item.UpdatedAt))
	if err != nil {
		return fail("insert item", err)
	}
	return nil
}

// GetByID returns the item or domain.ErrNotFound.
func (r *ItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("item %s: %w", id, domain.ErrNotFound)
		}
		return nil, fail("select item", err)
	}
	return item, nil
}

// List returns all items ordered by creation time.
func (r *ItemRepo) List(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at, id`)
	if err != nil {
		return nil, fail("select items", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// Update rewrites the mutable fields, bumps data_version, and stamps
// updated_at. Returns domain.ErrNotFound when the item does not exist.
func (r *ItemRepo) Update(ctx context.Context, item *domain.Item, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items
		SET item_type = ?, title = ?, item_data = ?, data_version = data_version + 1, updated_at = ?
		WHERE id = ?
	`, item.ItemType, item.Title, string(item.ItemData), toNanos(at), item.ID)
	if err != nil {
		return fail("update item", err)
	}
	return expectOneRow(res, fmt.Sprintf("item %s", item.ID))
}

// BumpDataVersion increments the item's sync version and returns the new
// value. Run inside the transaction that made the mutation being versioned.
func (r *ItemRepo) BumpDataVersion(ctx context.Context, id string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE items SET data_version = data_version + 1, updated_at = ? WHERE id = ?
	`, toNanos(at), id)
	if err != nil {
		return 0, fail("bump item version", err)
	}
	if err := expectOneRow(res, fmt.Sprintf("item %s", id)); err != nil {
		return 0, err
	}

	var version int64
	if err := r.db.QueryRowContext(ctx, `SELECT data_version FROM items WHERE id = ?`, id).Scan(&version); err != nil {
		return 0, fail("read item version", err)
	}
	return version, nil
}

// Delete removes the item; cards and reviews go with it via cascade. This is
// the only path that destroys cards.
func (r *ItemRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fail("delete item", err)
	}
	return expectOneRow(res, fmt.Sprintf("item %s", id))
}

// Upsert writes an item as-is, including its data_version. Used by the sync
// resolver once a conflict has been decided; normal mutations go through
// Update/BumpDataVersion instead.
func (r *ItemRepo) Upsert(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO items (id, item_type, title, item_data, data_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			item_type = excluded.item_type,
			title = excluded.title,
			item_data = excluded.item_data,
			data_version = excluded.data_version,
			updated_at = excluded.updated_at
	`, item.ID, item.ItemType, item.Title, string(item.ItemData), item.DataVersion,
		toNanos(item.CreatedAt), toNanos(item.UpdatedAt))
	if err != nil {
		return fail("upsert item", err)
	}
	return nil
}

// ChangedSince returns items with updated_at strictly after since, ordered by
// updated_at.
func (r *ItemRepo) ChangedSince(ctx context.Context, since time.Time) ([]domain.Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE updated_at > ? ORDER BY updated_at, id
	`, toNanos(since))
	if err != nil {
		return nil, fail("select changed items", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func scanItem(scan func(dest ...any) error) (*domain.Item, error) {
	var (
		item      domain.Item
		data      string
		createdAt int64
		updatedAt int64
	)
	if err := scan(&item.ID, &item.ItemType, &item.Title, &data, &item.DataVersion, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.ItemData = []byte(data)
	item.CreatedAt = fromNanos(createdAt)
	item.UpdatedAt = fromNanos(updatedAt)
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]domain.Item, error) {
	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows.Scan)
		if err != nil {
			return nil, fail("scan item", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate items", err)
	}
	return items, nil
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fail("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return nil
}
