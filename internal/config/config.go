package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv   = "QUOTEWIRE_CONFIG"
	redisAddrEnv    = "QUOTEWIRE_REDIS_ADDR"
	badgerPathEnv   = "QUOTEWIRE_BADGER_PATH"
	mongoURIEnv     = "QUOTEWIRE_MONGO_URI"
	scorerAPIKeyEnv = "QUOTEWIRE_SCORER_API_KEY"
	logLevelEnv     = "QUOTEWIRE_LOG_LEVEL"
	guardianKeyEnv  = "QUOTEWIRE_GUARDIAN_API_KEY"
	nytKeyEnv       = "QUOTEWIRE_NYT_API_KEY"
)

// Site kinds. The API kinds read ready-made articles from a JSON endpoint
// instead of scraping pages.
const (
	KindHTML        = "html"
	KindFeed        = "feed"
	KindGuardianAPI = "guardian-api"
	KindNYTAPI      = "nyt-api"
)

// Config holds every setting the pipeline, queue and server need.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Queue   QueueConfig   `yaml:"queue"`
	Scoring ScoringConfig `yaml:"scoring"`
	Server  ServerConfig  `yaml:"server"`
	Sites   []SiteConfig  `yaml:"sites"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// StoreConfig selects the document store backend: "badger" or "mongo".
type StoreConfig struct {
	Backend    string        `yaml:"backend"`
	BadgerPath string        `yaml:"badgerPath"`
	GCInterval time.Duration `yaml:"gcInterval"`
	MongoURI   string        `yaml:"mongoUri"`
	MongoDB    string        `yaml:"mongoDb"`
}

// LedgerConfig selects where processed URLs are recorded: "store" or "redis".
type LedgerConfig struct {
	Backend    string        `yaml:"backend"`
	Collection string        `yaml:"collection"`
	RedisAddr  string        `yaml:"redisAddr"`
	Retention  time.Duration `yaml:"retention"`
}

type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseDelay   time.Duration `yaml:"baseDelay"`
	UserAgents  []string      `yaml:"userAgents"`
}

type IngestConfig struct {
	QuotesCollection   string        `yaml:"quotesCollection"`
	ArticlesCollection string        `yaml:"articlesCollection"`
	SaveArticles       bool          `yaml:"saveArticles"`
	Keywords           []string      `yaml:"keywords"`
	QuoteMinLen        int           `yaml:"quoteMinLen"`
	QuoteMaxLen        int           `yaml:"quoteMaxLen"`
	MaxArticlesPerSite int           `yaml:"maxArticlesPerSite"`
	ArticleDelay       time.Duration `yaml:"articleDelay"`
	Concurrency        int           `yaml:"concurrency"`
	CleanupWindow      time.Duration `yaml:"cleanupWindow"`
}

type QueueConfig struct {
	Collection string  `yaml:"collection"`
	MinScore   float64 `yaml:"minScore"`
}

// ScoringConfig points at an OpenAI-compatible chat completions endpoint.
type ScoringConfig struct {
	Endpoint  string        `yaml:"endpoint"`
	Model     string        `yaml:"model"`
	APIKey    string        `yaml:"apiKey"`
	Prompt    string        `yaml:"prompt"`
	BatchSize int           `yaml:"batchSize"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SiteConfig describes one news source. Kind is "html" (listing page),
// "feed" (RSS/Atom), "guardian-api" or "nyt-api". Regex, when set, takes
// precedence over Pattern. For the API kinds ListingURL overrides the
// public endpoint and APIKey, Section and PageSize shape the request.
type SiteConfig struct {
	Name              string   `yaml:"name"`
	Kind              string   `yaml:"kind"`
	ListingURL        string   `yaml:"listingUrl"`
	BaseURL           string   `yaml:"baseUrl"`
	Pattern           string   `yaml:"pattern"`
	Regex             string   `yaml:"regex"`
	HeadlineSelectors []string `yaml:"headlineSelectors"`
	BodySelectors     []string `yaml:"bodySelectors"`
	APIKey            string   `yaml:"apiKey"`
	Section           string   `yaml:"section"`
	PageSize          int      `yaml:"pageSize"`
}

func (s SiteConfig) isAPI() bool {
	k := strings.ToLower(s.Kind)
	return k == KindGuardianAPI || k == KindNYTAPI
}

// Load reads the YAML file at path (or $QUOTEWIRE_CONFIG when path is empty)
// over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Ledger.RedisAddr = v
	}
	if v := os.Getenv(badgerPathEnv); v != "" {
		c.Store.BadgerPath = v
	}
	if v := os.Getenv(mongoURIEnv); v != "" {
		c.Store.MongoURI = v
	}
	if v := os.Getenv(scorerAPIKeyEnv); v != "" {
		c.Scoring.APIKey = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Log.Level = v
	}

	keys := map[string]string{
		KindGuardianAPI: os.Getenv(guardianKeyEnv),
		KindNYTAPI:      os.Getenv(nytKeyEnv),
	}
	for i := range c.Sites {
		s := &c.Sites[i]
		if key := keys[strings.ToLower(s.Kind)]; key != "" && s.APIKey == "" {
			s.APIKey = key
		}
	}
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case "badger", "mongo":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	switch c.Ledger.Backend {
	case "store", "redis":
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ingest.QuotesCollection == "" {
		return fmt.Errorf("config: ingest.quotesCollection is required")
	}
	if c.Ingest.QuoteMinLen < 0 || c.Ingest.QuoteMaxLen <= c.Ingest.QuoteMinLen {
		return fmt.Errorf("config: quote length window (%d, %d) is empty", c.Ingest.QuoteMinLen, c.Ingest.QuoteMaxLen)
	}
	if len(c.Ingest.Keywords) == 0 {
		return fmt.Errorf("config: at least one keyword is required")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("config: fetch.maxAttempts must be positive")
	}
	if len(c.Fetch.UserAgents) == 0 {
		return fmt.Errorf("config: fetch.userAgents must not be empty")
	}

	seen := make(map[string]bool, len(c.Sites))
	for _, s := range c.Sites {
		if s.Name == "" || (s.ListingURL == "" && !s.isAPI()) {
			return fmt.Errorf("config: site needs a name and listingUrl")
		}
		if seen[s.Name] {
			return fmt.Errorf("config: duplicate site %q", s.Name)
		}
		seen[s.Name] = true
		switch kind := strings.ToLower(s.Kind); kind {
		case "", KindHTML:
			if s.Pattern == "" && s.Regex == "" {
				return fmt.Errorf("config: site %q needs a pattern or regex", s.Name)
			}
		case KindFeed:
		case KindGuardianAPI, KindNYTAPI:
			if s.APIKey == "" {
				return fmt.Errorf("config: site %q needs an apiKey", s.Name)
			}
		default:
			return fmt.Errorf("config: site %q has unknown kind %q", s.Name, s.Kind)
		}
	}
	return nil
}

// Default returns the built-in configuration with the reference news sites.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Backend:    "badger",
			BadgerPath: "./quotewire-data",
			GCInterval: 5 * time.Minute,
			MongoDB:    "quotewire",
		},
		Ledger: LedgerConfig{
			Backend:    "store",
			Collection: "processed_urls",
			RedisAddr:  "localhost:6379",
			Retention:  30 * 24 * time.Hour,
		},
		Fetch: FetchConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
				"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
			},
		},
		Ingest: IngestConfig{
			QuotesCollection:   "quotes",
			ArticlesCollection: "articles",
			Keywords:           []string{"war", "conflict", "fight", "fighting", "battle", "hostage", "hostages"},
			QuoteMinLen:        8,
			QuoteMaxLen:        300,
			MaxArticlesPerSite: 20,
			ArticleDelay:       2 * time.Second,
			Concurrency:        4,
			CleanupWindow:      time.Hour,
		},
		Queue: QueueConfig{
			Collection: "display_queue",
			MinScore:   0.67,
		},
		Scoring: ScoringConfig{
			Endpoint:  "https://api.openai.com/v1/chat/completions",
			Model:     "gpt-4o-mini",
			Prompt:    "You evaluate quotes based on emotional weight (0-2), interpretative space (0-2), and memorability (0-2). Calculate score as (sum of scores)/6. Return ONLY the final score as a number between 0 and 1, with no explanation.",
			BatchSize: 100,
			Timeout:   20 * time.Second,
		},
		Server: ServerConfig{Addr: ":8080"},
		Sites: []SiteConfig{
			{Name: "BBC", Kind: "html", ListingURL: "https://www.bbc.com/news", BaseURL: "https://www.bbc.com", Pattern: "/news/"},
			{Name: "NPR", Kind: "html", ListingURL: "https://www.npr.org/sections/world/", BaseURL: "https://www.npr.org", Pattern: "/sections/"},
			{Name: "AP News", Kind: "html", ListingURL: "https://apnews.com/hub/world-news", BaseURL: "https://apnews.com", Pattern: "/article/"},
			{
				Name:       "The Guardian",
				Kind:       "html",
				ListingURL: "https://www.theguardian.com/world",
				BaseURL:    "https://www.theguardian.com",
				Pattern:    "/world/",
				Regex:      `/world/\d{4}/[a-z]{3}/\d{2}/`,
			},
		},
	}
}
