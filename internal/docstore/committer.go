package docstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CommitError reports a batch that kept failing after every retry. Writes
// committed by earlier batches stay in place.
type CommitError struct {
	Ops      int
	Attempts int
	Err      error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit of %d ops failed after %d attempts: %v", e.Ops, e.Attempts, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Committer stages writes and commits them in batches of at most MaxBatchOps.
// A failing commit is retried with a linear backoff before giving up.
type Committer struct {
	store       Store
	logger      *zap.Logger
	batch       Batch
	limit       int
	maxAttempts int
	backoff     time.Duration
	commits     int
	written     int
}

type CommitterOption func(*Committer)

// WithLimit lowers the batch size. Values above MaxBatchOps are clamped.
func WithLimit(n int) CommitterOption {
	return func(c *Committer) {
		if n > 0 && n <= MaxBatchOps {
			c.limit = n
		}
	}
}

func WithRetry(attempts int, backoff time.Duration) CommitterOption {
	return func(c *Committer) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		c.backoff = backoff
	}
}

func NewCommitter(store Store, logger *zap.Logger, opts ...CommitterOption) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Committer{
		store:       store,
		logger:      logger,
		limit:       MaxBatchOps,
		maxAttempts: 3,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Committer) Set(ctx context.Context, collection, id string, doc Doc) error {
	return c.stage(ctx, func(b Batch) error { return b.Set(collection, id, doc) })
}

func (c *Committer) Update(ctx context.Context, collection, id string, fields Doc) error {
	return c.stage(ctx, func(b Batch) error { return b.Update(collection, id, fields) })
}

func (c *Committer) Delete(ctx context.Context, collection, id string) error {
	return c.stage(ctx, func(b Batch) error { return b.Delete(collection, id) })
}

func (c *Committer) stage(ctx context.Context, add func(Batch) error) error {
	if c.batch == nil {
		c.batch = c.store.NewBatch()
	}
	if err := add(c.batch); err != nil {
		return err
	}
	if c.batch.Len() >= c.limit {
		return c.Flush(ctx)
	}
	return nil
}

// Flush commits whatever is staged. It is a no-op on an empty batch.
func (c *Committer) Flush(ctx context.Context) error {
	if c.batch == nil || c.batch.Len() == 0 {
		return nil
	}

	ops := c.batch.Len()
	var err error
	attempts := 0
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attempts = attempt
		if err = c.batch.Commit(ctx); err == nil {
			c.commits++
			c.written += ops
			c.batch = nil
			return nil
		}
		if ctx.Err() != nil {
			break
		}

		delay := time.Duration(attempt) * c.backoff
		c.logger.Warn("Batch commit failed",
			zap.Int("ops", ops),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if attempt < c.maxAttempts {
			select {
			case <-ctx.Done():
				return &CommitError{Ops: ops, Attempts: attempt, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	c.batch = nil
	return &CommitError{Ops: ops, Attempts: attempts, Err: err}
}

// Commits is the number of successful commits so far.
func (c *Committer) Commits() int {
	return c.commits
}

// Written is the number of operations committed so far.
func (c *Committer) Written() int {
	return c.written
}

// Pending is the number of staged, uncommitted operations.
func (c *Committer) Pending() int {
	if c.batch == nil {
		return 0
	}
	return c.batch.Len()
}
