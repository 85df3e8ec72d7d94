package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"quotewire/internal/docstore"
	"quotewire/internal/extract"
	"quotewire/internal/fetch"
	"quotewire/internal/keyword"
	"quotewire/internal/ledger"
	"quotewire/internal/metrics"
	"quotewire/internal/model"
	"quotewire/internal/quote"
	"quotewire/internal/site"
	"quotewire/internal/store"
	"quotewire/internal/urlutil"
)

// Fetcher downloads a page. This allows us to mock the network in tests.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Pipeline runs one ingestion pass over every configured site.
type Pipeline struct {
	profiles  []site.Profile
	fetcher   Fetcher
	store     store.Store
	ledger    ledger.Ledger
	extractor *extract.Extractor
	filter    *keyword.Filter
	quotes    *quote.Extractor
	logger    *zap.Logger
	metrics   *metrics.Metrics

	maxPerSite   int
	delay        time.Duration
	concurrency  int
	saveArticles bool
	now          func() time.Time
}

type Option func(*Pipeline)

func WithKeywords(words []string) Option {
	return func(p *Pipeline) { p.filter = keyword.NewFilter(words) }
}

func WithQuoteBounds(min, max int) Option {
	return func(p *Pipeline) { p.quotes = quote.NewExtractor(min, max) }
}

func WithMaxArticles(n int) Option {
	return func(p *Pipeline) { p.maxPerSite = n }
}

// WithArticleDelay sets the minimum gap between two article fetches on the
// same site.
func WithArticleDelay(d time.Duration) Option {
	return func(p *Pipeline) { p.delay = d }
}

// WithConcurrency sets how many sites are processed at once.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

func WithSaveArticles(on bool) Option {
	return func(p *Pipeline) { p.saveArticles = on }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(profiles []site.Profile, f Fetcher, st store.Store, led ledger.Ledger, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		profiles:    profiles,
		fetcher:     f,
		store:       st,
		ledger:      led,
		extractor:   extract.New(logger),
		filter:      keyword.NewFilter([]string{"war", "conflict", "fight", "fighting", "battle", "hostage", "hostages"}),
		quotes:      quote.NewExtractor(quote.DefaultMinLen, quote.DefaultMaxLen),
		logger:      logger,
		maxPerSite:  20,
		delay:       2 * time.Second,
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes every site and returns the run report. Site and article
// failures are recorded in the report; only a store commit that keeps
// failing stops the run, and whatever was committed before stays.
func (p *Pipeline) Run(ctx context.Context) (*model.RunReport, error) {
	report := model.NewRunReport()
	logger := p.logger.With(zap.String("run_id", report.RunID.String()))
	logger.Info("Ingestion run started", zap.Int("sites", len(p.profiles)))

	sites := make([]model.SiteReport, len(p.profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, prof := range p.profiles {
		i, prof := i, prof
		g.Go(func() error {
			rep, err := p.runSite(gctx, prof, logger)
			sites[i] = rep
			return err
		})
	}
	err := g.Wait()

	report.Sites = sites
	for _, s := range sites {
		for _, o := range s.Outcomes {
			report.QuotesStored += o.Quotes
		}
	}
	report.FinishedAt = time.Now()
	p.metrics.ObserveRun(report.FinishedAt.Sub(report.StartedAt).Seconds())

	if err != nil {
		logger.Error("Ingestion run aborted", zap.Error(err))
		return report, err
	}
	logger.Info("Ingestion run complete",
		zap.Int("quotes_stored", report.QuotesStored),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (p *Pipeline) runSite(ctx context.Context, prof site.Profile, runLogger *zap.Logger) (model.SiteReport, error) {
	rep := model.SiteReport{Site: prof.Name()}
	logger := runLogger.With(zap.String("site", prof.Name()))
	logger.Info("Processing site")

	listing, err := p.fetcher.Fetch(ctx, prof.ListingURL())
	if err != nil {
		logger.Warn("Listing fetch failed", zap.Error(err))
		rep.Error = err.Error()
		return rep, nil
	}
	urls, collected, err := discover(prof, listing)
	if err != nil {
		logger.Warn("Link discovery failed", zap.Error(err))
		rep.Error = err.Error()
		return rep, nil
	}
	rep.Discovered = len(urls)

	var fresh []string
	for _, u := range urls {
		seen, err := p.ledger.Seen(ctx, u)
		if err != nil {
			logger.Warn("Ledger lookup failed", zap.String("url", u), zap.Error(err))
		}
		if seen {
			rep.Outcomes = append(rep.Outcomes, model.Outcome{URL: u, Status: model.OutcomeSkipped, Reason: model.ReasonSeen})
			continue
		}
		fresh = append(fresh, u)
	}
	if p.maxPerSite > 0 && len(fresh) > p.maxPerSite {
		fresh = fresh[:p.maxPerSite]
	}
	logger.Info("Discovered articles", zap.Int("links", len(urls)), zap.Int("new", len(fresh)))

	limit := rate.Inf
	if p.delay > 0 {
		limit = rate.Every(p.delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for _, u := range fresh {
		art, ready := collected[urlutil.Normalize(u)]
		wait := ctx.Err()
		if !ready {
			wait = limiter.Wait(ctx)
		}
		if wait != nil {
			logger.Info("Site stopped early", zap.Error(wait))
			break
		}

		var out model.Outcome
		if ready {
			out, err = p.processCollected(ctx, prof, art, logger)
		} else {
			out, err = p.processArticle(ctx, prof, u, logger)
		}
		rep.Outcomes = append(rep.Outcomes, out)
		p.metrics.IncArticle(prof.Name(), string(out.Status))
		if err != nil {
			return rep, err
		}
	}

	logger.Info("Site complete",
		zap.Int("stored", rep.Count(model.OutcomeStored)),
		zap.Int("skipped", rep.Count(model.OutcomeSkipped)),
		zap.Int("errors", rep.Count(model.OutcomeError)))
	return rep, nil
}

// discover lists the article URLs in a fetched listing. Profiles that
// collect whole articles from an API also return them, keyed by normalized
// URL.
func discover(prof site.Profile, listing string) ([]string, map[string]model.Article, error) {
	c, ok := prof.(site.Collector)
	if !ok {
		urls, err := prof.Discover(listing)
		return urls, nil, err
	}
	arts, err := c.Collect(listing)
	if err != nil {
		return nil, nil, err
	}
	urls := make([]string, 0, len(arts))
	byURL := make(map[string]model.Article, len(arts))
	for _, a := range arts {
		urls = append(urls, a.URL)
		byURL[urlutil.Normalize(a.URL)] = a
	}
	return urls, byURL, nil
}

// processCollected harvests an article that arrived complete from an API
// listing. No fetch or extraction is done.
func (p *Pipeline) processCollected(ctx context.Context, prof site.Profile, art model.Article, siteLogger *zap.Logger) (model.Outcome, error) {
	logger := siteLogger.With(zap.String("url", art.URL))
	art.Site = prof.Name()
	art.DiscoveredAt = p.now()
	return p.harvest(ctx, prof, art, logger)
}

// processArticle takes one URL through fetch, extraction, keyword gate,
// quote extraction and storage. The returned error is non-nil only for a
// failed commit.
func (p *Pipeline) processArticle(ctx context.Context, prof site.Profile, url string, siteLogger *zap.Logger) (model.Outcome, error) {
	logger := siteLogger.With(zap.String("url", url))

	page, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		var fe *fetch.Error
		if errors.As(err, &fe) && fe.Permanent() {
			p.mark(ctx, url, prof.Name(), logger)
			return p.skip(url, model.ReasonFetchRejected, logger), nil
		}
		logger.Warn("Article fetch failed", zap.Error(err))
		return model.Outcome{URL: url, Status: model.OutcomeError, Error: err.Error()}, nil
	}

	art, err := p.extractor.Extract(url, page, extract.Hints{Headlines: prof.Headlines(), Bodies: prof.Bodies()})
	if err != nil {
		var rej *extract.Rejection
		if errors.As(err, &rej) {
			p.mark(ctx, url, prof.Name(), logger)
			return p.skip(url, rej.Reason, logger), nil
		}
		logger.Warn("Extraction failed", zap.Error(err))
		return model.Outcome{URL: url, Status: model.OutcomeError, Error: err.Error()}, nil
	}
	art.Site = prof.Name()
	art.DiscoveredAt = p.now()
	return p.harvest(ctx, prof, art, logger)
}

// harvest runs the keyword gate, quote extraction and storage for an
// article. The returned error is non-nil only for a failed commit.
func (p *Pipeline) harvest(ctx context.Context, prof site.Profile, art model.Article, logger *zap.Logger) (model.Outcome, error) {
	url := art.URL
	art.Keywords = p.filter.Match(art)
	if len(art.Keywords) == 0 {
		p.mark(ctx, url, prof.Name(), logger)
		return p.skip(url, model.ReasonNoKeywords, logger), nil
	}
	if p.saveArticles {
		if err := p.store.SaveArticle(ctx, art); err != nil {
			logger.Warn("Saving raw article failed", zap.Error(err))
		}
	}

	quotes := p.quotes.Extract(art.Body)
	if len(quotes) == 0 {
		p.mark(ctx, url, prof.Name(), logger)
		return p.skip(url, model.ReasonNoQuotes, logger), nil
	}

	n, err := p.store.Save(ctx, quotes, art)
	p.metrics.AddQuotes(prof.Name(), n)
	if err != nil {
		out := model.Outcome{URL: url, Status: model.OutcomeError, Quotes: n, Error: err.Error()}
		var ce *docstore.CommitError
		if errors.As(err, &ce) {
			logger.Error("Quote commit failed", zap.Error(err))
			return out, err
		}
		logger.Warn("Storing quotes failed", zap.Error(err))
		return out, nil
	}

	p.mark(ctx, url, prof.Name(), logger)
	logger.Info("Article processed",
		zap.String("title", art.Title),
		zap.Strings("keywords", art.Keywords),
		zap.Int("quotes", len(quotes)),
		zap.Int("new", n))
	return model.Outcome{URL: url, Status: model.OutcomeStored, Quotes: n}, nil
}

func (p *Pipeline) skip(url, reason string, logger *zap.Logger) model.Outcome {
	logger.Debug("Article skipped", zap.String("reason", reason))
	return model.Outcome{URL: url, Status: model.OutcomeSkipped, Reason: reason}
}

func (p *Pipeline) mark(ctx context.Context, url, siteName string, logger *zap.Logger) {
	if err := p.ledger.Mark(ctx, url, siteName); err != nil {
		logger.Warn("Ledger mark failed", zap.Error(err))
	}
}

// Reprocess runs the keyword gate and quote extraction again over the saved
// raw articles, for when keywords or quote rules change. It returns the
// number of new quotes.
func (p *Pipeline) Reprocess(ctx context.Context) (int, error) {
	articles, err := p.store.Articles(ctx, 0)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		a.Keywords = p.filter.Match(a)
		if len(a.Keywords) == 0 {
			continue
		}
		quotes := p.quotes.Extract(a.Body)
		if len(quotes) == 0 {
			continue
		}
		n, err := p.store.Save(ctx, quotes, a)
		total += n
		if err != nil {
			return total, err
		}
	}
	p.logger.Info("Reprocessed saved articles", zap.Int("articles", len(articles)), zap.Int("new_quotes", total))
	return total, nil
}
