package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTagsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewTagRepo(db)
	now := time.Now().UTC()

	first, err := repo.Ensure(ctx, []string{"spanish", "verbs"}, now)
	require.NoError(t, err)
	require.Len(t, first, 2)

	again, err := repo.Ensure(ctx, []string{"verbs", "spanish"}, now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, again, 2)

	ids := map[string]string{}
	for _, tag := range first {
		ids[tag.Name] = tag.ID
	}
	for _, tag := range again {
		assert.Equal(t, ids[tag.Name], tag.ID, "re-ensuring must not mint new tag ids")
	}
}

func TestReplaceItemTags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewTagRepo(db)
	item, _ := seedItem(t, db, "fsrs", 1)
	now := time.Now().UTC()

	require.NoError(t, repo.ReplaceItemTags(ctx, item.ID, []string{"a", "b"}, now))
	names, err := repo.ListForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, names)

	require.NoError(t, repo.ReplaceItemTags(ctx, item.ID, []string{"b", "c"}, now))
	names, err = repo.ListForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, names)

	require.NoError(t, repo.ReplaceItemTags(ctx, item.ID, nil, now))
	names, err = repo.ListForItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, names)
}
