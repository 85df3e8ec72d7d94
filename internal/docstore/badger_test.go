package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	st, err := OpenBadger("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBadgerStore_SetGetUpdateDelete(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.Get(ctx, "quotes", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.Update(ctx, "quotes", "missing", Doc{"score": 0.5})
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.Set(ctx, "quotes", "a", Doc{"text": "hello", "score": nil, "timestamp": now}))
	require.NoError(t, st.Update(ctx, "quotes", "a", Doc{"score": 0.75, "processed": true}))

	doc, err := st.Get(ctx, "quotes", "a")
	require.NoError(t, err)
	assert.Equal(t, "hello", doc.String("text"))
	assert.True(t, doc.Bool("processed"))
	require.NotNil(t, doc.Float("score"))
	assert.InDelta(t, 0.75, *doc.Float("score"), 1e-9)

	ts, ok := doc.Time("timestamp")
	require.True(t, ok)
	assert.True(t, now.Equal(ts))

	require.NoError(t, st.Delete(ctx, "quotes", "a"))
	_, err = st.Get(ctx, "quotes", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStore_CollectionsAreIsolated(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Set(ctx, "a", "1", Doc{"v": 1}))
	require.NoError(t, st.Set(ctx, "ab", "1", Doc{"v": 2}))

	recs, err := st.Query(ctx, "a", Query{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].Doc.Int("v"))
}

func TestBadgerStore_QueryFiltersOrderAndLimit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, score := range []any{0.9, 0.2, 0.7, nil, 0.7} {
		id := fmt.Sprintf("q%d", i)
		require.NoError(t, st.Set(ctx, "quotes", id, Doc{
			"score":     score,
			"timestamp": base.Add(time.Duration(i) * time.Hour),
		}))
	}

	recs, err := st.Query(ctx, "quotes", Query{}.Where("score", Gte, 0.67).Order("score", false))
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"q2", "q4", "q0"}, ids, "ties on score fall back to id order")

	recs, err = st.Query(ctx, "quotes", Query{}.Where("score", Eq, nil))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "q3", recs[0].ID)

	recs, err = st.Query(ctx, "quotes", Query{}.Where("timestamp", Gte, base.Add(3*time.Hour)).Take(1))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "q3", recs[0].ID)
}

func TestBadgerBatch_LimitAndAtomicCommit(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	b := st.NewBatch()
	for i := 0; i < MaxBatchOps; i++ {
		require.NoError(t, b.Set("quotes", fmt.Sprintf("%04d", i), Doc{"i": i}))
	}
	assert.ErrorIs(t, b.Set("quotes", "overflow", Doc{}), ErrBatchFull)
	require.NoError(t, b.Commit(ctx))

	recs, err := st.Query(ctx, "quotes", Query{})
	require.NoError(t, err)
	assert.Len(t, recs, MaxBatchOps)

	// An update of a missing document fails the whole batch.
	b = st.NewBatch()
	require.NoError(t, b.Set("quotes", "new", Doc{}))
	require.NoError(t, b.Update("quotes", "ghost", Doc{"x": 1}))
	err = b.Commit(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.Get(ctx, "quotes", "new")
	assert.ErrorIs(t, err, ErrNotFound, "failed batch must not leave partial writes")
}

func TestBadgerStore_TransactionSerializesConcurrentWriters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "meta", "counter", Doc{"n": 0}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
				doc, err := tx.Get("meta", "counter")
				if err != nil {
					return err
				}
				return tx.Update("meta", "counter", Doc{"n": doc.Int("n") + 1})
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := st.Get(ctx, "meta", "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), doc.Int("n"))
}

func TestBadgerStore_TransactionErrorDiscardsWrites(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.RunTransaction(ctx, func(ctx context.Context, tx Txn) error {
		if err := tx.Set("quotes", "a", Doc{"x": 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.Get(ctx, "quotes", "a")
	assert.ErrorIs(t, err, ErrNotFound)
}
