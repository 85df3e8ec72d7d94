package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"quotewire/internal/docstore"
	"quotewire/internal/metrics"
	"quotewire/internal/model"
)

// ErrEmpty means there was nothing to serve even after a reset.
var ErrEmpty = errors.New("no quotes available")

// Queue hands quotes to display devices. Each entry is served at most once
// per cycle; when every entry has been served the cycle starts over.
//
// Entries are keyed by their source quote id, so a quote can be queued only
// once. Serving picks the undisplayed entry with the smallest (seq, id),
// where seq is assigned in enqueue order.
type Queue struct {
	db         docstore.Store
	collection string
	logger     *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

type Stats struct {
	Total       int `json:"total"`
	Undisplayed int `json:"undisplayed"`
}

type Option func(*Queue)

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) { q.metrics = m }
}

func New(db docstore.Store, collection string, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		db:         db,
		collection: collection,
		logger:     logger.With(zap.String("queue", collection)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) metaCollection() string {
	return q.collection + "_meta"
}

const seqDoc = "seq"

// Enqueue adds the quotes that are not queued yet and returns how many
// were added. Existing entries keep their display state.
func (q *Queue) Enqueue(ctx context.Context, quotes []model.Quote) (int, error) {
	var seq int64
	meta, err := q.db.Get(ctx, q.metaCollection(), seqDoc)
	switch {
	case err == nil:
		seq = meta.Int("value")
	case !errors.Is(err, docstore.ErrNotFound):
		return 0, fmt.Errorf("read queue sequence: %w", err)
	}

	c := docstore.NewCommitter(q.db, q.logger)
	added := make(map[string]struct{}, len(quotes))
	for _, qt := range quotes {
		if _, dup := added[qt.ID]; dup {
			continue
		}
		_, err := q.db.Get(ctx, q.collection, qt.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return 0, fmt.Errorf("check entry %s: %w", qt.ID, err)
		}

		seq++
		added[qt.ID] = struct{}{}
		err = c.Set(ctx, q.collection, qt.ID, docstore.Doc{
			"source_id":         qt.ID,
			"text":              qt.Text,
			"source":            qt.Source,
			"seq":               seq,
			"displayed":         false,
			"display_timestamp": nil,
			"display_device_id": nil,
		})
		if err != nil {
			return 0, err
		}
	}
	if len(added) == 0 {
		return 0, nil
	}

	if err := c.Set(ctx, q.metaCollection(), seqDoc, docstore.Doc{"value": seq}); err != nil {
		return 0, err
	}
	if err := c.Flush(ctx); err != nil {
		return 0, err
	}
	q.metrics.AddCommits(c.Commits())

	q.logger.Info("Enqueued quotes", zap.Int("count", len(added)))
	return len(added), nil
}

// Populate enqueues every quote in source scoring at least minScore,
// best scores first.
func (q *Queue) Populate(ctx context.Context, source string, minScore float64) (int, error) {
	recs, err := q.db.Query(ctx, source, docstore.Query{}.
		Where("score", docstore.Gte, minScore).
		Order("score", true))
	if err != nil {
		return 0, fmt.Errorf("query %s: %w", source, err)
	}

	quotes := make([]model.Quote, 0, len(recs))
	for _, r := range recs {
		quotes = append(quotes, model.Quote{
			ID:     r.ID,
			Text:   r.Doc.String("text"),
			Source: r.Doc.String("source"),
			Score:  r.Doc.Float("score"),
		})
	}
	return q.Enqueue(ctx, quotes)
}

// Serve marks the next undisplayed entry as shown on deviceID and returns
// it. Concurrent callers never receive the same entry. When everything has
// been shown the queue is reset once and selection retried.
func (q *Queue) Serve(ctx context.Context, deviceID string) (*model.QueueEntry, error) {
	entry, err := q.claim(ctx, deviceID)
	if errors.Is(err, ErrEmpty) {
		if _, err := q.Reset(ctx); err != nil {
			q.metrics.IncServed("error")
			return nil, err
		}
		entry, err = q.claim(ctx, deviceID)
	}

	switch {
	case errors.Is(err, ErrEmpty):
		q.metrics.IncServed("empty")
	case err != nil:
		q.metrics.IncServed("error")
	default:
		q.metrics.IncServed("served")
	}
	return entry, err
}

func (q *Queue) claim(ctx context.Context, deviceID string) (*model.QueueEntry, error) {
	var entry *model.QueueEntry
	err := q.db.RunTransaction(ctx, func(ctx context.Context, tx docstore.Txn) error {
		entry = nil
		recs, err := tx.Query(q.collection, docstore.Query{}.
			Where("displayed", docstore.Eq, false).
			Order("seq", false).
			Take(1))
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return ErrEmpty
		}

		now := q.now().UTC()
		rec := recs[0]
		err = tx.Update(q.collection, rec.ID, docstore.Doc{
			"displayed":         true,
			"display_timestamp": now,
			"display_device_id": deviceID,
		})
		if err != nil {
			return err
		}

		e := toEntry(rec)
		e.Displayed = true
		e.DisplayTimestamp = &now
		e.DisplayDeviceID = &deviceID
		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Reset makes every served entry eligible again and returns how many
// entries changed.
func (q *Queue) Reset(ctx context.Context) (int, error) {
	recs, err := q.db.Query(ctx, q.collection, docstore.Query{}.Where("displayed", docstore.Eq, true))
	if err != nil {
		return 0, err
	}

	c := docstore.NewCommitter(q.db, q.logger)
	for _, r := range recs {
		err := c.Update(ctx, q.collection, r.ID, docstore.Doc{
			"displayed":         false,
			"display_timestamp": nil,
			"display_device_id": nil,
		})
		if err != nil {
			return c.Written(), err
		}
	}
	if err := c.Flush(ctx); err != nil {
		return c.Written(), err
	}
	q.metrics.AddCommits(c.Commits())
	q.metrics.IncReset()

	q.logger.Info("Queue reset", zap.Int("entries", c.Written()))
	return c.Written(), nil
}

// Clear deletes every entry and the sequence counter.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	recs, err := q.db.Query(ctx, q.collection, docstore.Query{})
	if err != nil {
		return 0, err
	}

	c := docstore.NewCommitter(q.db, q.logger)
	for _, r := range recs {
		if err := c.Delete(ctx, q.collection, r.ID); err != nil {
			return c.Written(), err
		}
	}
	if err := c.Delete(ctx, q.metaCollection(), seqDoc); err != nil {
		return c.Written(), err
	}
	if err := c.Flush(ctx); err != nil {
		return c.Written(), err
	}
	q.metrics.AddCommits(c.Commits())

	q.logger.Info("Queue cleared", zap.Int("entries", len(recs)))
	return len(recs), nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	recs, err := q.db.Query(ctx, q.collection, docstore.Query{})
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(recs)}
	for _, r := range recs {
		if !r.Doc.Bool("displayed") {
			st.Undisplayed++
		}
	}
	return st, nil
}

// Entries lists the queue in serving order.
func (q *Queue) Entries(ctx context.Context) ([]model.QueueEntry, error) {
	recs, err := q.db.Query(ctx, q.collection, docstore.Query{}.Order("seq", false))
	if err != nil {
		return nil, err
	}
	out := make([]model.QueueEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, toEntry(r))
	}
	return out, nil
}

func toEntry(r docstore.Record) model.QueueEntry {
	return model.QueueEntry{
		ID:               r.ID,
		SourceID:         r.Doc.String("source_id"),
		Text:             r.Doc.String("text"),
		Source:           r.Doc.String("source"),
		Seq:              r.Doc.Int("seq"),
		Displayed:        r.Doc.Bool("displayed"),
		DisplayTimestamp: r.Doc.TimePtr("display_timestamp"),
		DisplayDeviceID:  r.Doc.StringPtr("display_device_id"),
	}
}
