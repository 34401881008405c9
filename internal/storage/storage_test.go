package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/rememo/rememo/internal/domain"
)

// newTestDB opens a private in-memory database with the full schema applied.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	db, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedItem inserts an item with one card per count and returns both.
func seedItem(t *testing.T, db *sql.DB, itemType string, cardCount int) (*domain.Item, []domain.Card) {
	t.Helper()
	ctx := context.Background()
	item := domain.NewItem(itemType, "test item", json.RawMessage(`{}`), time.Now().UTC())
	require.NoError(t, NewItemRepo(db).Create(ctx, item))
	cards, err := NewCardRepo(db).CreateForItem(ctx, item.ID, cardCount)
	require.NoError(t, err)
	return item, cards
}

// testLogger discards everything; tests assert on behavior, not log lines.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
