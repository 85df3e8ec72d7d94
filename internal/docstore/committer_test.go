package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore fails the first n batch commits.
type flakyStore struct {
	Store
	failures int
	commits  int
}

func (s *flakyStore) NewBatch() Batch {
	return &flakyBatch{Batch: s.Store.NewBatch(), parent: s}
}

type flakyBatch struct {
	Batch
	parent *flakyStore
}

func (b *flakyBatch) Commit(ctx context.Context) error {
	b.parent.commits++
	if b.parent.failures > 0 {
		b.parent.failures--
		return errors.New("unavailable")
	}
	return b.Batch.Commit(ctx)
}

func TestCommitter_FlushesAtLimitAndRemainder(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	c := NewCommitter(st, nil)
	for i := 0; i < MaxBatchOps+1; i++ {
		require.NoError(t, c.Set(ctx, "quotes", fmt.Sprintf("q%04d", i), Doc{"i": i}))
	}
	assert.Equal(t, 1, c.Commits())
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 2, c.Commits())
	assert.Equal(t, MaxBatchOps+1, c.Written())

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 2, c.Commits(), "empty flush must not commit")
}

func TestCommitter_RetriesThenSucceeds(t *testing.T) {
	st := &flakyStore{Store: newTestStore(t), failures: 2}
	ctx := context.Background()

	c := NewCommitter(st, nil, WithRetry(3, time.Millisecond))
	require.NoError(t, c.Set(ctx, "quotes", "a", Doc{"x": 1}))
	require.NoError(t, c.Flush(ctx))

	assert.Equal(t, 3, st.commits)
	_, err := st.Get(ctx, "quotes", "a")
	assert.NoError(t, err)
}

func TestCommitter_GivesUpWithCommitError(t *testing.T) {
	st := &flakyStore{Store: newTestStore(t), failures: 10}
	ctx := context.Background()

	c := NewCommitter(st, nil, WithRetry(3, time.Millisecond))
	require.NoError(t, c.Set(ctx, "quotes", "a", Doc{"x": 1}))
	err := c.Flush(ctx)

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, 1, commitErr.Ops)
	assert.Equal(t, 3, commitErr.Attempts)
	assert.Equal(t, 0, c.Pending())
}

func TestCommitter_CancelledContextReportsAttemptsMade(t *testing.T) {
	st := &flakyStore{Store: newTestStore(t), failures: 10}
	ctx, cancel := context.WithCancel(context.Background())

	c := NewCommitter(st, nil, WithRetry(5, time.Millisecond))
	require.NoError(t, c.Set(ctx, "quotes", "a", Doc{"x": 1}))
	cancel()
	err := c.Flush(ctx)

	var commitErr *CommitError
	require.ErrorAs(t, err, &commitErr)
	assert.Equal(t, 1, commitErr.Attempts)
	assert.Equal(t, 1, st.commits)
}
