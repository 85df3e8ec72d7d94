package store

import (
	"context"
	"errors"
	"time"

	"quotewire/internal/model"
)

var (
	ErrNotFound = errors.New("quote not found")
)

// Store persists harvested quotes, deduplicated by content hash.
type Store interface {
	// Save writes the quotes not already stored and returns how many were new.
	Save(ctx context.Context, quotes []string, article model.Article) (int, error)
	SaveArticle(ctx context.Context, article model.Article) error
	Articles(ctx context.Context, limit int) ([]model.Article, error)
	Get(ctx context.Context, id string) (*model.Quote, error)
	Unscored(ctx context.Context, limit int) ([]model.Quote, error)
	RecordScores(ctx context.Context, scores []Score) error
	CleanRecentDuplicates(ctx context.Context, window time.Duration) (int, error)
}

// Score is the scorer's verdict for one quote. Text replaces the stored
// display text.
type Score struct {
	ID    string
	Text  string
	Value float64
}
