package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore maps collections one-to-one onto MongoDB collections. Document ids
// are stored as _id. Batches and transactions need a replica set deployment.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// OpenMongo connects, pings and returns a store bound to database dbName.
func OpenMongo(ctx context.Context, uri, dbName string, logger *zap.Logger) (*MongoStore, error) {
	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return NewMongoStore(cli, cli.Database(dbName), logger), nil
}

// NewMongoStore wraps an already connected client.
func NewMongoStore(cli *mongo.Client, db *mongo.Database, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{client: cli, db: db, logger: logger}
}

// EnsureIndexes creates single-field ascending indexes used by queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context, collection string, fields ...string) error {
	models := make([]mongo.IndexModel, 0, len(fields))
	for _, f := range fields {
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: f, Value: 1}}})
	}
	if len(models) == 0 {
		return nil
	}
	_, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models)
	return err
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Doc, error) {
	return mongoGet(ctx, s.db.Collection(collection), id)
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, doc Doc) error {
	return mongoSet(ctx, s.db.Collection(collection), id, doc)
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields Doc) error {
	return mongoUpdate(ctx, s.db.Collection(collection), id, fields)
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) Query(ctx context.Context, collection string, q Query) ([]Record, error) {
	return mongoQuery(ctx, s.db.Collection(collection), q)
}

func (s *MongoStore) NewBatch() Batch {
	return &mongoBatch{store: s}
}

func (s *MongoStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Txn) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &mongoTxn{ctx: sc, db: s.db})
	})
	return err
}

type mongoTxn struct {
	ctx context.Context
	db  *mongo.Database
}

func (t *mongoTxn) Get(collection, id string) (Doc, error) {
	return mongoGet(t.ctx, t.db.Collection(collection), id)
}

func (t *mongoTxn) Query(collection string, q Query) ([]Record, error) {
	return mongoQuery(t.ctx, t.db.Collection(collection), q)
}

func (t *mongoTxn) Set(collection, id string, doc Doc) error {
	return mongoSet(t.ctx, t.db.Collection(collection), id, doc)
}

func (t *mongoTxn) Update(collection, id string, fields Doc) error {
	return mongoUpdate(t.ctx, t.db.Collection(collection), id, fields)
}

type mongoBatch struct {
	store *MongoStore
	ops   []batchOp
}

func (b *mongoBatch) add(op batchOp) error {
	if len(b.ops) >= MaxBatchOps {
		return ErrBatchFull
	}
	b.ops = append(b.ops, op)
	return nil
}

func (b *mongoBatch) Set(collection, id string, doc Doc) error {
	return b.add(batchOp{kind: "set", collection: collection, id: id, doc: doc})
}

func (b *mongoBatch) Update(collection, id string, fields Doc) error {
	return b.add(batchOp{kind: "update", collection: collection, id: id, doc: fields})
}

func (b *mongoBatch) Delete(collection, id string) error {
	return b.add(batchOp{kind: "delete", collection: collection, id: id})
}

func (b *mongoBatch) Len() int {
	return len(b.ops)
}

// Commit applies the staged writes in order inside one multi-document
// transaction, so either all of them land or none do. Updating a missing
// document aborts the batch with ErrNotFound.
func (b *mongoBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	return b.store.RunTransaction(ctx, func(ctx context.Context, _ Txn) error {
		for _, op := range b.ops {
			coll := b.store.db.Collection(op.collection)
			var err error
			switch op.kind {
			case "set":
				err = mongoSet(ctx, coll, op.id, op.doc)
			case "update":
				err = mongoUpdate(ctx, coll, op.id, op.doc)
			case "delete":
				_, err = coll.DeleteOne(ctx, bson.M{"_id": op.id})
			}
			if err != nil {
				return fmt.Errorf("%s %s/%s: %w", op.kind, op.collection, op.id, err)
			}
		}
		return nil
	})
}

func mongoGet(ctx context.Context, coll *mongo.Collection, id string) (Doc, error) {
	var raw bson.M
	err := coll.FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(raw), nil
}

func mongoSet(ctx context.Context, coll *mongo.Collection, id string, doc Doc) error {
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, toBSON(doc), options.Replace().SetUpsert(true))
	return err
}

func mongoUpdate(ctx context.Context, coll *mongo.Collection, id string, fields Doc) error {
	res, err := coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": toBSON(fields)})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func mongoQuery(ctx context.Context, coll *mongo.Collection, q Query) ([]Record, error) {
	filter := bson.M{}
	for _, f := range q.Filters {
		cond, ok := filter[f.Field].(bson.M)
		if !ok {
			cond = bson.M{}
		}
		cond[mongoOp(f.Op)] = f.Value
		filter[f.Field] = cond
	}

	sortDir := 1
	if q.Desc {
		sortDir = -1
	}
	sortSpec := bson.D{}
	if q.OrderBy != "" {
		sortSpec = append(sortSpec, bson.E{Key: q.OrderBy, Value: sortDir})
	}
	sortSpec = append(sortSpec, bson.E{Key: "_id", Value: 1})

	opts := options.Find().SetSort(sortSpec)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []Record
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, err
		}
		id, _ := raw["_id"].(string)
		out = append(out, Record{ID: id, Doc: fromBSON(raw)})
	}
	return out, cur.Err()
}

func mongoOp(op Op) string {
	switch op {
	case Gt:
		return "$gt"
	case Gte:
		return "$gte"
	case Lt:
		return "$lt"
	case Lte:
		return "$lte"
	}
	return "$eq"
}

func toBSON(doc Doc) bson.M {
	out := make(bson.M, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func fromBSON(raw bson.M) Doc {
	out := make(Doc, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		switch t := v.(type) {
		case primitive.DateTime:
			out[k] = t.Time().UTC()
		case primitive.A:
			out[k] = []any(t)
		default:
			out[k] = v
		}
	}
	return out
}
