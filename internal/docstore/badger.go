package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	keySep         = "\x00"
	maxTxnAttempts = 25
)

// BadgerStore keeps every collection in one embedded Badger database. Keys are
// "<collection>\x00<id>" and values are JSON documents.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadger opens (or creates) a database at path. An empty path runs in memory.
func OpenBadger(path string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return NewBadgerStore(db, logger), nil
}

// NewBadgerStore wraps an already opened database.
func NewBadgerStore(db *badger.DB, logger *zap.Logger) *BadgerStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BadgerStore{db: db, logger: logger}
}

func (s *BadgerStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartGC runs value log garbage collection until ctx is done.
func (s *BadgerStore) StartGC(ctx context.Context, every time.Duration) {
	if s.db.Opts().InMemory || every <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := s.db.RunValueLogGC(0.7)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("Value log GC failed", zap.Error(err))
				}
			}
		}
	}()
}

func docKey(collection, id string) []byte {
	return []byte(collection + keySep + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + keySep)
}

func (s *BadgerStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	var doc Doc
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = getDoc(txn, collection, id)
		return err
	})
	return doc, err
}

func (s *BadgerStore) Set(ctx context.Context, collection, id string, doc Doc) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setDoc(txn, collection, id, doc)
	})
}

func (s *BadgerStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return updateDoc(txn, collection, id, fields)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, collection, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(collection, id))
	})
}

func (s *BadgerStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = queryDocs(txn, collection, q)
		return err
	})
	return out, err
}

func (s *BadgerStore) NewBatch() Batch {
	return &badgerBatch{db: s.db}
}

// RunTransaction retries fn when Badger reports a write conflict: another
// transaction committed a key this one read.
func (s *BadgerStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error {
	for attempt := 1; attempt <= maxTxnAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		txn := s.db.NewTransaction(true)
		err := fn(ctx, &badgerTxn{txn: txn})
		if err == nil {
			err = txn.Commit()
		}
		txn.Discard()

		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}

		s.logger.Debug("Transaction conflict, retrying", zap.Int("attempt", attempt))
		time.Sleep(time.Duration(attempt) * time.Millisecond)
	}
	return ErrConflict
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(collection, id string) (Doc, error) {
	return getDoc(t.txn, collection, id)
}

func (t *badgerTxn) Query(collection string, q Query) ([]Record, error) {
	return queryDocs(t.txn, collection, q)
}

func (t *badgerTxn) Set(collection, id string, doc Doc) error {
	return setDoc(t.txn, collection, id, doc)
}

func (t *badgerTxn) Update(collection, id string, fields Doc) error {
	return updateDoc(t.txn, collection, id, fields)
}

type batchOp struct {
	kind       string
	collection string
	id         string
	doc        Doc
}

type badgerBatch struct {
	db  *badger.DB
	ops []batchOp
}

func (b *badgerBatch) add(op batchOp) error {
	if len(b.ops) >= MaxBatchOps {
		return ErrBatchFull
	}
	b.ops = append(b.ops, op)
	return nil
}

func (b *badgerBatch) Set(collection, id string, doc Doc) error {
	return b.add(batchOp{kind: "set", collection: collection, id: id, doc: doc})
}

func (b *badgerBatch) Update(collection, id string, fields Doc) error {
	return b.add(batchOp{kind: "update", collection: collection, id: id, doc: fields})
}

func (b *badgerBatch) Delete(collection, id string) error {
	return b.add(batchOp{kind: "delete", collection: collection, id: id})
}

func (b *badgerBatch) Len() int {
	return len(b.ops)
}

// Commit applies every staged write in a single Badger transaction. A batch
// can be committed again after a failure; the writes are replayed.
func (b *badgerBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			var err error
			switch op.kind {
			case "set":
				err = setDoc(txn, op.collection, op.id, op.doc)
			case "update":
				err = updateDoc(txn, op.collection, op.id, op.doc)
			case "delete":
				err = txn.Delete(docKey(op.collection, op.id))
			}
			if err != nil {
				return fmt.Errorf("%s %s/%s: %w", op.kind, op.collection, op.id, err)
			}
		}
		return nil
	})
}

func getDoc(txn *badger.Txn, collection, id string) (Doc, error) {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var doc Doc
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	return doc, err
}

func setDoc(txn *badger.Txn, collection, id string, doc Doc) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return txn.Set(docKey(collection, id), data)
}

func updateDoc(txn *badger.Txn, collection, id string, fields Doc) error {
	current, err := getDoc(txn, collection, id)
	if err != nil {
		return err
	}
	return setDoc(txn, collection, id, current.merge(fields))
}

func queryDocs(txn *badger.Txn, collection string, q Query) ([]Record, error) {
	prefix := collectionPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var records []Record
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		id := string(bytes.TrimPrefix(item.Key(), prefix))

		var doc Doc
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		records = append(records, Record{ID: id, Doc: doc})
	}
	return q.Apply(records), nil
}
