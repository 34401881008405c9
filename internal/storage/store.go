package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rememo/rememo/internal/dbx"
	"github.com/rememo/rememo/internal/domain"
)

// Store is the transactional facade over the repositories: the operations
// the adapters call, each one either a single statement or a dbx.WithTx
// block. Scheduling computations never happen here; that is the review
// recorder's job.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying pool for collaborators that run their own
// transactions (recorder, sync resolver, housekeeper).
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateItemInput describes a new item. CardCount is explicit: how many
// cards an item needs is decided by the external item/type layer, never
// inferred from content shape.
type CreateItemInput struct {
	ItemType  string
	Title     string
	ItemData  json.RawMessage
	CardCount int
	Tags      []string
}

// CreateItem creates the item, its tag links, and its cards as one atomic
// unit.
func (s *Store) CreateItem(ctx context.Context, in CreateItemInput) (*domain.Item, []domain.Card, error) {
	now := time.Now().UTC()
	data := in.ItemData
	if len(data) == 0 {
		data = []byte("{}")
	}
	item := domain.NewItem(in.ItemType, in.Title, data, now)

	var cards []domain.Card
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		if err := NewItemRepo(tx).Create(ctx, item); err != nil {
			return err
		}
		if len(in.Tags) > 0 {
			if err := NewTagRepo(tx).ReplaceItemTags(ctx, item.ID, in.Tags, now); err != nil {
				return err
			}
		}
		var err error
		cards, err = NewCardRepo(tx).CreateForItem(ctx, item.ID, in.CardCount)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return item, cards, nil
}

// GetItem returns the item with its tags and cards.
func (s *Store) GetItem(ctx context.Context, id string) (*domain.Item, []string, []domain.Card, error) {
	item, err := NewItemRepo(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	tags, err := NewTagRepo(s.db).ListForItem(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	cards, err := NewCardRepo(s.db).ListByItem(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return item, tags, cards, nil
}

// ListItems returns all items.
func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	return NewItemRepo(s.db).List(ctx)
}

// UpdateItemInput carries the mutable item fields. Nil means "leave as is";
// Tags replaces the whole tag set when non-nil.
type UpdateItemInput struct {
	ItemType *string
	Title    *string
	ItemData json.RawMessage
	Tags     []string
}

// UpdateItem applies the changes and bumps the item's data_version.
func (s *Store) UpdateItem(ctx context.Context, id string, in UpdateItemInput) (*domain.Item, error) {
	now := time.Now().UTC()
	var updated *domain.Item
	err := dbx.WithTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) error {
		items := NewItemRepo(tx)
		item, err := items.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if in.ItemType != nil {
			item.ItemType = *in.ItemType
		}
		if in.Title != nil {
			item.Title = *in.Title
		}
		if len(in.ItemData) > 0 {
			item.ItemData = in.ItemData
		}
		if err := items.Update(ctx, item, now); err != nil {
			return err
		}
		if in.Tags != nil {
			if err := NewTagRepo(tx).ReplaceItemTags(ctx, id, in.Tags, now); err != nil {
				return err
			}
		}
		updated, err = items.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteItem removes the item; its cards and their reviews cascade.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	return NewItemRepo(s.db).Delete(ctx, id)
}

// GetCard returns a single card.
func (s *Store) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	return NewCardRepo(s.db).GetByID(ctx, id)
}

// SetPriority validates and sets a card's priority.
func (s *Store) SetPriority(ctx context.Context, cardID string, value float64) error {
	return NewCardRepo(s.db).SetPriority(ctx, cardID, value)
}

// SuspendCard excludes the card from due queries until unsuspended.
func (s *Store) SuspendCard(ctx context.Context, cardID string) error {
	return NewCardRepo(s.db).Suspend(ctx, cardID, time.Now().UTC())
}

// UnsuspendCard restores the card's due-query eligibility.
func (s *Store) UnsuspendCard(ctx context.Context, cardID string) error {
	return NewCardRepo(s.db).Unsuspend(ctx, cardID)
}

// ListReviews returns a card's history, oldest first. The card must exist.
func (s *Store) ListReviews(ctx context.Context, cardID string) ([]domain.Review, error) {
	if _, err := NewCardRepo(s.db).GetByID(ctx, cardID); err != nil {
		return nil, err
	}
	return NewReviewRepo(s.db).ListByCard(ctx, cardID)
}

// DueCards runs the due query against the pool; it never joins a
// review-recording transaction.
func (s *Store) DueCards(ctx context.Context, now time.Time, filter DueFilter, after *Cursor, limit int) ([]DueCard, *Cursor, error) {
	return NewDueQuery(s.db).Due(ctx, now, filter, after, limit)
}
