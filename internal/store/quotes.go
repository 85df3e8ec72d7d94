package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quotewire/internal/docstore"
	"quotewire/internal/metrics"
	"quotewire/internal/model"
	"quotewire/internal/quote"
	"quotewire/internal/urlutil"
)

// QuoteStore keeps quotes in a document collection keyed by quote.ID, so a
// quote seen twice maps onto the same document.
type QuoteStore struct {
	db         docstore.Store
	logger     *zap.Logger
	metrics    *metrics.Metrics
	collection string
	articles   string
	retry      []docstore.CommitterOption
}

type Option func(*QuoteStore)

func WithArticles(collection string) Option {
	return func(s *QuoteStore) { s.articles = collection }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *QuoteStore) { s.metrics = m }
}

// WithCommitRetry overrides the committer retry policy.
func WithCommitRetry(attempts int, backoff time.Duration) Option {
	return func(s *QuoteStore) {
		s.retry = append(s.retry, docstore.WithRetry(attempts, backoff))
	}
}

func NewQuoteStore(db docstore.Store, collection string, logger *zap.Logger, opts ...Option) *QuoteStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuoteStore{
		db:         db,
		logger:     logger.With(zap.String("collection", collection)),
		collection: collection,
		articles:   "articles",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *QuoteStore) committer() *docstore.Committer {
	return docstore.NewCommitter(s.db, s.logger, s.retry...)
}

// Save stores every quote whose normalized text is not yet present. The
// existence check and the write are not atomic: two concurrent writers may
// both insert the same quote, which lands on the same id anyway.
func (s *QuoteStore) Save(ctx context.Context, quotes []string, article model.Article) (int, error) {
	c := s.committer()
	staged := make(map[string]struct{}, len(quotes))
	now := time.Now().UTC()

	for _, text := range quotes {
		id := quote.ID(text)
		if _, dup := staged[id]; dup {
			continue
		}

		_, err := s.db.Get(ctx, s.collection, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return c.Written(), fmt.Errorf("check quote %s: %w", id, err)
		}

		staged[id] = struct{}{}
		err = c.Set(ctx, s.collection, id, docstore.Doc{
			"text":            text,
			"normalized_text": quote.Normalize(text),
			"article_url":     article.URL,
			"article_title":   article.Title,
			"source":          article.Site,
			"score":           nil,
			"processed":       false,
			"timestamp":       now,
		})
		if err != nil {
			s.metrics.AddCommits(c.Commits())
			return c.Written(), err
		}
	}

	err := c.Flush(ctx)
	s.metrics.AddCommits(c.Commits())
	if err != nil {
		return c.Written(), err
	}

	if c.Written() > 0 {
		s.logger.Info("Stored new quotes",
			zap.Int("count", c.Written()),
			zap.String("title", article.Title))
	}
	return c.Written(), nil
}

// SaveArticle keeps the raw article keyed by URL hash.
func (s *QuoteStore) SaveArticle(ctx context.Context, article model.Article) error {
	keywords := make([]any, len(article.Keywords))
	for i, k := range article.Keywords {
		keywords[i] = k
	}
	return s.db.Set(ctx, s.articles, urlutil.Hash(article.URL), docstore.Doc{
		"url":           article.URL,
		"title":         article.Title,
		"excerpt":       article.Excerpt,
		"body":          article.Body,
		"site":          article.Site,
		"keywords":      keywords,
		"discovered_at": article.DiscoveredAt.UTC(),
	})
}

// Articles lists saved raw articles, newest first. Zero limit means all.
func (s *QuoteStore) Articles(ctx context.Context, limit int) ([]model.Article, error) {
	recs, err := s.db.Query(ctx, s.articles, docstore.Query{}.Order("discovered_at", true).Take(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.Article, 0, len(recs))
	for _, r := range recs {
		a := model.Article{
			URL:     r.Doc.String("url"),
			Title:   r.Doc.String("title"),
			Body:    r.Doc.String("body"),
			Excerpt: r.Doc.String("excerpt"),
			Site:    r.Doc.String("site"),
		}
		if kws, ok := r.Doc["keywords"].([]any); ok {
			for _, k := range kws {
				if kw, ok := k.(string); ok {
					a.Keywords = append(a.Keywords, kw)
				}
			}
		}
		if ts, ok := r.Doc.Time("discovered_at"); ok {
			a.DiscoveredAt = ts
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *QuoteStore) Get(ctx context.Context, id string) (*model.Quote, error) {
	doc, err := s.db.Get(ctx, s.collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	q := toQuote(id, doc)
	return &q, nil
}

// Unscored returns up to limit quotes that have not been through the scorer.
func (s *QuoteStore) Unscored(ctx context.Context, limit int) ([]model.Quote, error) {
	recs, err := s.db.Query(ctx, s.collection, docstore.Query{}.
		Where("processed", docstore.Eq, false).
		Take(limit))
	if err != nil {
		return nil, err
	}
	out := make([]model.Quote, 0, len(recs))
	for _, r := range recs {
		out = append(out, toQuote(r.ID, r.Doc))
	}
	return out, nil
}

// RecordScores marks each quote processed with its score, in batches.
func (s *QuoteStore) RecordScores(ctx context.Context, scores []Score) error {
	c := s.committer()
	for _, sc := range scores {
		err := c.Update(ctx, s.collection, sc.ID, docstore.Doc{
			"text":      sc.Text,
			"score":     sc.Value,
			"processed": true,
		})
		if err != nil {
			s.metrics.AddCommits(c.Commits())
			return err
		}
	}
	err := c.Flush(ctx)
	s.metrics.AddCommits(c.Commits())
	return err
}

// CleanRecentDuplicates removes quotes stored within window whose display
// text normalizes to the same string, keeping the smallest id of each group.
func (s *QuoteStore) CleanRecentDuplicates(ctx context.Context, window time.Duration) (int, error) {
	since := time.Now().UTC().Add(-window)
	recs, err := s.db.Query(ctx, s.collection, docstore.Query{}.
		Where("timestamp", docstore.Gte, since))
	if err != nil {
		return 0, err
	}

	// recs are ordered by id, so the first of each group is the keeper.
	keep := make(map[string]string, len(recs))
	c := s.committer()
	for _, r := range recs {
		key := quote.Normalize(r.Doc.String("text"))
		if _, ok := keep[key]; !ok {
			keep[key] = r.ID
			continue
		}
		if err := c.Delete(ctx, s.collection, r.ID); err != nil {
			return c.Written(), err
		}
	}
	if err := c.Flush(ctx); err != nil {
		return c.Written(), err
	}

	if c.Written() > 0 {
		s.logger.Info("Removed duplicate quotes",
			zap.Int("deleted", c.Written()),
			zap.Duration("window", window))
	}
	return c.Written(), nil
}

func toQuote(id string, doc docstore.Doc) model.Quote {
	q := model.Quote{
		ID:             id,
		Text:           doc.String("text"),
		NormalizedText: doc.String("normalized_text"),
		ArticleURL:     doc.String("article_url"),
		ArticleTitle:   doc.String("article_title"),
		Source:         doc.String("source"),
		Score:          doc.Float("score"),
		Processed:      doc.Bool("processed"),
	}
	if ts, ok := doc.Time("timestamp"); ok {
		q.Timestamp = ts
	}
	return q
}
