package docstore

import (
	"context"
	"errors"
)

// MaxBatchOps is the largest number of writes a single atomic batch may carry.
const MaxBatchOps = 500

var (
	ErrNotFound  = errors.New("document not found")
	ErrBatchFull = errors.New("batch is full")
	ErrConflict  = errors.New("transaction conflict")
)

// Store is a document database with named collections.
type Store interface {
	Get(ctx context.Context, collection, id string) (Doc, error)
	Set(ctx context.Context, collection, id string, doc Doc) error
	// Update merges fields into an existing document. Missing documents yield ErrNotFound.
	Update(ctx context.Context, collection, id string, fields Doc) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Record, error)

	// NewBatch returns an empty write batch applied atomically by Commit.
	NewBatch() Batch
	// RunTransaction runs fn inside a read-modify-write transaction. fn may be
	// invoked more than once when a concurrent writer wins the race.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error

	Close() error
}

// Batch groups up to MaxBatchOps writes into one commit.
type Batch interface {
	Set(collection, id string, doc Doc) error
	Update(collection, id string, fields Doc) error
	Delete(collection, id string) error
	Len() int
	Commit(ctx context.Context) error
}

// Txn is the handle passed to a RunTransaction callback.
type Txn interface {
	Get(collection, id string) (Doc, error)
	Query(collection string, q Query) ([]Record, error)
	Set(collection, id string, doc Doc) error
	Update(collection, id string, fields Doc) error
}
