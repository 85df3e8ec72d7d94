package site

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotewire/internal/config"
)

func mustProfile(t *testing.T, cfg config.SiteConfig) Profile {
	t.Helper()
	p, err := FromConfig(cfg)
	require.NoError(t, err)
	return p
}

func TestHTMLProfile_ResolvesRelativeLinks(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:       "Guardian",
		ListingURL: "https://www.theguardian.com/world",
		BaseURL:    "https://www.theguardian.com",
		Pattern:    "/world/",
	})

	urls, err := p.Discover(`<html><body><a href="/world/2024/jan/01/story">Story</a></body></html>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.theguardian.com/world/2024/jan/01/story"}, urls)
}

func TestHTMLProfile_FiltersAndDedups(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:       "BBC",
		ListingURL: "https://www.bbc.com/news",
		BaseURL:    "https://www.bbc.com",
		Pattern:    "/news/",
	})

	listing := `
<a href="/news/world-1">one</a>
<a href="/sport/football">sport</a>
<a href="https://www.bbc.com/news/world-1?at_medium=rss">dup of one</a>
<a href="/news/world-2#comments">two</a>
<a href="mailto:news@bbc.co.uk">mail</a>
<a>no href</a>
<a href="http://bbc.com/news/world-2/">dup of two</a>`

	urls, err := p.Discover(listing)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.bbc.com/news/world-1",
		"https://www.bbc.com/news/world-2",
	}, urls)
}

func TestHTMLProfile_RegexWinsOverPattern(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:       "Guardian",
		ListingURL: "https://www.theguardian.com/world",
		BaseURL:    "https://www.theguardian.com",
		Pattern:    "/world/",
		Regex:      `/world/\d{4}/[a-z]{3}/\d{2}/`,
	})

	urls, err := p.Discover(`
<a href="/world/europe-news">section</a>
<a href="/world/2024/mar/05/ceasefire-talks">article</a>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.theguardian.com/world/2024/mar/05/ceasefire-talks"}, urls)
}

func TestFeedProfile_Discover(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:       "Wire",
		Kind:       "feed",
		ListingURL: "https://wire.example/rss.xml",
		Pattern:    "/article/",
	})
	_, isFeed := p.(*FeedProfile)
	require.True(t, isFeed)

	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Wire</title>
<item><title>A</title><link>https://wire.example/article/a</link></item>
<item><title>B</title><link>https://wire.example/video/b</link></item>
<item><title>A again</title><link>https://wire.example/article/a?utm=1</link></item>
</channel></rss>`

	urls, err := p.Discover(rss)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://wire.example/article/a"}, urls)

	_, err = p.Discover("not a feed")
	assert.Error(t, err)
}

func TestFromConfig_Errors(t *testing.T) {
	_, err := FromConfig(config.SiteConfig{Name: "x", ListingURL: "https://x.test", Regex: "("})
	assert.Error(t, err)

	_, err = FromConfig(config.SiteConfig{Name: "x", ListingURL: "https://x.test", Kind: "pdf"})
	assert.Error(t, err)
}

func TestFromConfigs_Defaults(t *testing.T) {
	profiles, err := FromConfigs(config.Default().Sites)
	require.NoError(t, err)
	require.Len(t, profiles, 4)
	assert.Equal(t, "BBC", profiles[0].Name())
	assert.Equal(t, "https://www.bbc.com/news", profiles[0].ListingURL())
}
