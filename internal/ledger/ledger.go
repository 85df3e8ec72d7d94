package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quotewire/internal/docstore"
	"quotewire/internal/urlutil"
)

// Ledger records URLs that reached a definitive outcome so later runs skip
// them. Keys are urlutil.Hash of the URL.
type Ledger interface {
	Seen(ctx context.Context, url string) (bool, error)
	Mark(ctx context.Context, url, site string) error
	Forget(ctx context.Context, url string) error
}

// DocLedger keeps one document per URL in a docstore collection. Entries
// older than retention no longer count as seen; zero retention keeps them
// forever.
type DocLedger struct {
	db         docstore.Store
	collection string
	retention  time.Duration
	now        func() time.Time
}

func NewDocLedger(db docstore.Store, collection string, retention time.Duration) *DocLedger {
	return &DocLedger{db: db, collection: collection, retention: retention, now: time.Now}
}

func (l *DocLedger) Seen(ctx context.Context, url string) (bool, error) {
	doc, err := l.db.Get(ctx, l.collection, urlutil.Hash(url))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	if l.retention <= 0 {
		return true, nil
	}
	ts, ok := doc.Time("timestamp")
	return ok && l.now().Sub(ts) < l.retention, nil
}

func (l *DocLedger) Mark(ctx context.Context, url, site string) error {
	return l.db.Set(ctx, l.collection, urlutil.Hash(url), docstore.Doc{
		"url":       urlutil.Normalize(url),
		"site":      site,
		"timestamp": l.now().UTC(),
	})
}

func (l *DocLedger) Forget(ctx context.Context, url string) error {
	return l.db.Delete(ctx, l.collection, urlutil.Hash(url))
}

const ledgerPrefix = "ledger:"

// RedisLedger stores one key per URL with the retention as its TTL.
type RedisLedger struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisLedger(client *redis.Client, retention time.Duration) *RedisLedger {
	return &RedisLedger{client: client, retention: retention}
}

// DialRedis connects and pings, the way every Redis consumer here starts.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func (l *RedisLedger) key(url string) string {
	return ledgerPrefix + urlutil.Hash(url)
}

func (l *RedisLedger) Seen(ctx context.Context, url string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(url)).Result()
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return n == 1, nil
}

// Mark sets the key with the retention TTL. A zero retention never expires.
func (l *RedisLedger) Mark(ctx context.Context, url, site string) error {
	return l.client.Set(ctx, l.key(url), site, l.retention).Err()
}

func (l *RedisLedger) Forget(ctx context.Context, url string) error {
	return l.client.Del(ctx, l.key(url)).Err()
}
