package storage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// TagRepo persists tags and item-tag links.
type TagRepo struct {
	db dbx.DBTX
}

// NewTagRepo returns a tag repository bound to the given DBTX.
func NewTagRepo(db dbx.DBTX) *TagRepo {
	return &TagRepo{db: db}
}

// Ensure creates any missing tags by name and returns all of them.
func (r *TagRepo) Ensure(ctx context.Context, names []string, at time.Time) ([]domain.Tag, error) {
	if len(names) == 0 {
		return nil, nil
	}
	for _, name := range names {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO tags (id, name, created_at, visible) VALUES (?, ?, ?, 1)
			ON CONFLICT(name) DO NOTHING
		`, uuid.NewString(), name, toNanos(at))
		if err != nil {
			return nil, fail("insert tag", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(names)), ",")
	args := make([]any, len(names))
	for i, name := range names {
		args[i] = name
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at, visible FROM tags WHERE name IN (`+placeholders+`) ORDER BY name
	`, args...)
	if err != nil {
		return nil, fail("select tags", err)
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		var (
			tag       domain.Tag
			createdAt int64
		)
		if err := rows.Scan(&tag.ID, &tag.Name, &createdAt, &tag.Visible); err != nil {
			return nil, fail("scan tag", err)
		}
		tag.CreatedAt = fromNanos(createdAt)
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate tags", err)
	}
	return tags, nil
}

// ReplaceItemTags makes the given names the item's complete tag set.
func (r *TagRepo) ReplaceItemTags(ctx context.Context, itemID string, names []string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM item_tags WHERE item_id = ?`, itemID); err != nil {
		return fail("clear item tags", err)
	}

	tags, err := r.Ensure(ctx, names, at)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO item_tags (item_id, tag_id, created_at) VALUES (?, ?, ?)
		`, itemID, tag.ID, toNanos(at))
		if err != nil {
			return fail("link item tag", err)
		}
	}
	return nil
}

// ListForItem returns the item's tag names, sorted.
func (r *TagRepo) ListForItem(ctx context.Context, itemID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.name
		FROM item_tags it
		JOIN tags t ON t.id = it.tag_id
		WHERE it.item_id = ?
		ORDER BY t.name
	`, itemID)
	if err != nil {
		return nil, fail("select item tags", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fail("scan item tag", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fail("iterate item tags", err)
	}
	return names, nil
}
