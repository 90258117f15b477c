package store

import (
	"context"

	"github.com/starford/eatsync/internal/models"
)

// Store is the persistence contract the sync coordinator consumes. Each call
// is independent; no transaction spans calls.
type Store interface {
	ListArticles(ctx context.Context) ([]models.ArticleRecord, error)
	ListHealthRecords(ctx context.Context) ([]models.HealthRecord, error)
	ListEvents(ctx context.Context) ([]models.EventRecord, error)

	ClearArticles(ctx context.Context) error
	ClearHealthRecords(ctx context.Context) error
	ClearEvents(ctx context.Context) error

	InsertArticle(ctx context.Context, r models.ArticleRecord) error
	InsertHealthRecord(ctx context.Context, r models.HealthRecord) error
	InsertEvent(ctx context.Context, r models.EventRecord) error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
