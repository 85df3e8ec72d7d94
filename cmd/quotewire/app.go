package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quotewire/internal/config"
	"quotewire/internal/docstore"
	"quotewire/internal/fetch"
	"quotewire/internal/ledger"
	"quotewire/internal/metrics"
	"quotewire/internal/pipeline"
	"quotewire/internal/queue"
	"quotewire/internal/scoring"
	"quotewire/internal/site"
	"quotewire/internal/store"
)

// app holds the long-lived dependencies shared by every command.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	db      docstore.Store
	rdb     *redis.Client
	metrics *metrics.Metrics
	quotes  *store.QuoteStore
	queue   *queue.Queue
}

func openApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(prometheus.DefaultRegisterer),
	}

	switch cfg.Store.Backend {
	case "mongo":
		ms, err := docstore.OpenMongo(ctx, cfg.Store.MongoURI, cfg.Store.MongoDB, logger)
		if err != nil {
			return nil, err
		}
		if err := ms.EnsureIndexes(ctx, cfg.Ingest.QuotesCollection, "processed", "score", "timestamp"); err != nil {
			logger.Warn("Index setup failed", zap.Error(err))
		}
		if err := ms.EnsureIndexes(ctx, cfg.Queue.Collection, "displayed", "seq"); err != nil {
			logger.Warn("Index setup failed", zap.Error(err))
		}
		a.db = ms
	default:
		bs, err := docstore.OpenBadger(cfg.Store.BadgerPath, logger)
		if err != nil {
			return nil, err
		}
		bs.StartGC(ctx, cfg.Store.GCInterval)
		a.db = bs
	}

	if cfg.Ledger.Backend == "redis" {
		rdb, err := ledger.DialRedis(ctx, cfg.Ledger.RedisAddr)
		if err != nil {
			a.db.Close()
			return nil, err
		}
		a.rdb = rdb
	}

	a.quotes = store.NewQuoteStore(a.db, cfg.Ingest.QuotesCollection, logger,
		store.WithArticles(cfg.Ingest.ArticlesCollection),
		store.WithMetrics(a.metrics))
	a.queue = queue.New(a.db, cfg.Queue.Collection, logger, queue.WithMetrics(a.metrics))
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("Closing store failed", zap.Error(err))
		}
	}
}

func (a *app) ledger() ledger.Ledger {
	if a.rdb != nil {
		return ledger.NewRedisLedger(a.rdb, a.cfg.Ledger.Retention)
	}
	return ledger.NewDocLedger(a.db, a.cfg.Ledger.Collection, a.cfg.Ledger.Retention)
}

func (a *app) pipeline() (*pipeline.Pipeline, error) {
	profiles, err := site.FromConfigs(a.cfg.Sites)
	if err != nil {
		return nil, err
	}
	fc := a.cfg.Fetch
	fetcher := fetch.NewFetcher(fc.UserAgents, a.logger,
		fetch.WithTimeout(fc.Timeout),
		fetch.WithRetry(fc.MaxAttempts, fc.BaseDelay),
		fetch.WithMetrics(a.metrics))

	ic := a.cfg.Ingest
	return pipeline.New(profiles, fetcher, a.quotes, a.ledger(), a.logger,
		pipeline.WithKeywords(ic.Keywords),
		pipeline.WithQuoteBounds(ic.QuoteMinLen, ic.QuoteMaxLen),
		pipeline.WithMaxArticles(ic.MaxArticlesPerSite),
		pipeline.WithArticleDelay(ic.ArticleDelay),
		pipeline.WithConcurrency(ic.Concurrency),
		pipeline.WithSaveArticles(ic.SaveArticles),
		pipeline.WithMetrics(a.metrics)), nil
}

func (a *app) scoringPass() (*scoring.Pass, error) {
	if a.cfg.Scoring.APIKey == "" {
		return nil, fmt.Errorf("no scorer api key configured (set QUOTEWIRE_SCORER_API_KEY)")
	}
	return scoring.NewPass(a.quotes, scoring.NewChatScorer(a.cfg.Scoring), a.cfg.Scoring.BatchSize, a.logger), nil
}
