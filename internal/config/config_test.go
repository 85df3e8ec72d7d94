package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAreValid(t *testing.T) {
	t.Setenv(configPathEnv, "")
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "badger", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, 0.67, cfg.Queue.MinScore)
	assert.Len(t, cfg.Sites, 4)
}

func TestLoad_FileOverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotewire.yaml")
	raw := `
ingest:
  quotesCollection: quotes_v7
  keywords: [war, ceasefire]
  quoteMinLen: 10
  quoteMaxLen: 300
fetch:
  timeout: 5s
sites:
  - name: Example
    listingUrl: https://example.com/world
    baseUrl: https://example.com
    pattern: /world/
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv(redisAddrEnv, "redis:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "quotes_v7", cfg.Ingest.QuotesCollection)
	assert.Equal(t, []string{"war", "ceasefire"}, cfg.Ingest.Keywords)
	assert.Equal(t, 10, cfg.Ingest.QuoteMinLen)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 3, cfg.Fetch.MaxAttempts, "unset fields keep their defaults")
	assert.Equal(t, "redis:6380", cfg.Ledger.RedisAddr)
	require.Len(t, cfg.Sites, 1)
	assert.Equal(t, "Example", cfg.Sites[0].Name)
}

func TestValidate_RejectsBadSettings(t *testing.T) {
	cfg := Default()
	cfg.Ingest.QuoteMaxLen = cfg.Ingest.QuoteMinLen
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Store.Backend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sites = append(cfg.Sites, cfg.Sites[0])
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sites = []SiteConfig{{Name: "x", ListingURL: "https://x.test"}}
	assert.Error(t, cfg.Validate(), "html sites need a pattern")

	cfg.Sites[0].Kind = "feed"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_APISiteKeysFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotewire.yaml")
	raw := `
sites:
  - name: The Guardian API
    kind: guardian-api
    section: world
  - name: NYT
    kind: nyt-api
    apiKey: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))
	t.Setenv(guardianKeyEnv, "g-key")
	t.Setenv(nytKeyEnv, "n-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sites, 2)
	assert.Equal(t, "g-key", cfg.Sites[0].APIKey)
	assert.Equal(t, "from-file", cfg.Sites[1].APIKey, "a key in the file wins over the environment")
}

func TestValidate_APISiteNeedsKey(t *testing.T) {
	cfg := Default()
	cfg.Sites = []SiteConfig{{Name: "NYT", Kind: KindNYTAPI}}
	assert.Error(t, cfg.Validate())

	cfg.Sites[0].APIKey = "k"
	assert.NoError(t, cfg.Validate())
}
