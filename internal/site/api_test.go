package site

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotewire/internal/config"
)

func TestGuardianAPI_ListingURL(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:    "Guardian API",
		Kind:    config.KindGuardianAPI,
		APIKey:  "secret",
		Section: "world",
	})
	require.Implements(t, (*Collector)(nil), p)

	u, err := url.Parse(p.ListingURL())
	require.NoError(t, err)
	assert.Equal(t, "content.guardianapis.com", u.Host)
	assert.Equal(t, "/search", u.Path)
	q := u.Query()
	assert.Equal(t, "secret", q.Get("api-key"))
	assert.Equal(t, "world", q.Get("section"))
	assert.Equal(t, "bodyText,headline", q.Get("show-fields"))
	assert.Equal(t, "5", q.Get("page-size"))
	assert.Equal(t, "newest", q.Get("order-by"))
}

func TestGuardianAPI_Collect(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:    "Guardian API",
		Kind:    config.KindGuardianAPI,
		APIKey:  "secret",
		Pattern: "/world/",
	})

	payload := `{"response":{"status":"ok","results":[
{"webUrl":"https://www.theguardian.com/world/2024/mar/05/talks","webTitle":"fallback",
 "fields":{"headline":"Ceasefire talks stall","bodyText":"\"We have nothing left,\" she said."}},
{"webUrl":"https://www.theguardian.com/sport/2024/mar/05/match","webTitle":"Match",
 "fields":{"bodyText":"Sport body."}},
{"webUrl":"https://www.theguardian.com/world/2024/mar/05/talks?CMP=share","webTitle":"Dup",
 "fields":{"bodyText":"Same story."}},
{"webUrl":"https://www.theguardian.com/world/2024/mar/05/empty","webTitle":"Empty",
 "fields":{"bodyText":"  "}},
{"webUrl":"https://www.theguardian.com/world/2024/mar/05/untitled","webTitle":"From web title",
 "fields":{"bodyText":"Body."}}
]}}`

	arts, err := p.(Collector).Collect(payload)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "https://www.theguardian.com/world/2024/mar/05/talks", arts[0].URL)
	assert.Equal(t, "Ceasefire talks stall", arts[0].Title)
	assert.Equal(t, `"We have nothing left," she said.`, arts[0].Body)
	assert.Equal(t, "Guardian API", arts[0].Site)
	assert.Equal(t, "From web title", arts[1].Title)

	urls, err := p.Discover(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{arts[0].URL, arts[1].URL}, urls)
}

func TestGuardianAPI_ErrorStatus(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{Name: "Guardian API", Kind: config.KindGuardianAPI, APIKey: "bad"})

	_, err := p.(Collector).Collect(`{"response":{"status":"error","message":"Invalid authentication credentials"}}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid authentication credentials")

	_, err = p.Discover("<html>not json</html>")
	assert.Error(t, err)
}

func TestNYTAPI_ListingURLAndCollect(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:    "NYT API",
		Kind:    config.KindNYTAPI,
		APIKey:  "k",
		Section: "world",
	})
	assert.Equal(t, "https://api.nytimes.com/svc/topstories/v2/world.json?api-key=k", p.ListingURL())

	payload := `{"status":"OK","results":[
{"title":"Hostages freed","url":"https://www.nytimes.com/2024/03/05/world/hostages.html",
 "abstract":"Families waited for hours.",
 "multimedia":[{"caption":"\"I am still alive,\" one said."},{"caption":""}]},
{"title":"No text","url":"https://www.nytimes.com/2024/03/05/world/none.html","abstract":""}
]}`

	arts, err := p.(Collector).Collect(payload)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "Hostages freed", arts[0].Title)
	assert.Equal(t, `Families waited for hours. "I am still alive," one said.`, arts[0].Body)

	_, err = p.(Collector).Collect(`{"fault":{"faultstring":"Invalid ApiKey"}}`)
	assert.Error(t, err)
}

func TestAPIProfile_ListingURLOverride(t *testing.T) {
	p := mustProfile(t, config.SiteConfig{
		Name:       "Guardian API",
		Kind:       config.KindGuardianAPI,
		ListingURL: "http://127.0.0.1:8080/search?lang=en",
		APIKey:     "k",
		PageSize:   20,
	})

	u, err := url.Parse(p.ListingURL())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", u.Host)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, "20", u.Query().Get("page-size"))
	assert.Equal(t, "k", u.Query().Get("api-key"))
}
