package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quotewire/internal/model"
)

const pageURL = "https://www.theguardian.com/world/2024/jan/01/story"

var filler = strings.Repeat("The shelling continued through the night across the eastern districts. ", 6)

func page(head, body string) string {
	return "<html><head></head><body>" + head + body + "</body></html>"
}

func TestExtract_HeadlineAndContainerBody(t *testing.T) {
	html := page(
		`<nav><p>Home</p></nav><h1>War Breaks Out</h1>`,
		`<article><p>`+filler+`</p><p>"I am still alive," she said.</p></article><footer><p>Cookies</p></footer>`,
	)

	art, err := New(nil).Extract(pageURL, html, Hints{})
	require.NoError(t, err)
	assert.Equal(t, "War Breaks Out", art.Title)
	assert.Contains(t, art.Body, `"I am still alive," she said.`)
	assert.NotContains(t, art.Body, "Cookies")
	assert.Equal(t, pageURL, art.URL)
}

func TestExtract_BlocklistedHeadlineFallsThrough(t *testing.T) {
	html := page(
		`<h1>Sport</h1><h2>Ceasefire talks resume in Cairo</h2>`,
		`<article><p>`+filler+`</p></article>`,
	)

	art, err := New(nil).Extract(pageURL, html, Hints{})
	require.NoError(t, err)
	assert.Equal(t, "Ceasefire talks resume in Cairo", art.Title)
}

func TestExtract_SiteHeadlineHint(t *testing.T) {
	html := page(
		`<div class="lede-title">Hostages freed after long negotiation</div>`,
		`<p>`+filler+`</p>`,
	)

	art, err := New(nil).Extract(pageURL, html, Hints{Headlines: []string{".lede-title"}})
	require.NoError(t, err)
	assert.Equal(t, "Hostages freed after long negotiation", art.Title)
}

func TestExtract_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		html   string
		reason string
	}{
		{"blocklisted", page(`<h1>Business</h1>`, `<p>`+filler+`</p>`), model.ReasonBadTitle},
		{"generic", page(`<h1>Page not found today</h1>`, `<p>`+filler+`</p>`), model.ReasonGenericTitle},
		{"too short", page(`<h1>Gaza</h1>`, `<p>`+filler+`</p>`), model.ReasonNoTitle},
		{"missing", page(``, `<p>`+filler+`</p>`), model.ReasonNoTitle},
		{"short body", page(`<h1>War Breaks Out</h1>`, `<p>Too little text.</p>`), model.ReasonShortBody},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil).Extract(pageURL, tc.html, Hints{})
			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tc.reason, rej.Reason)
		})
	}
}

func TestExtract_AllParagraphsFallback(t *testing.T) {
	html := page(
		`<h1>War Breaks Out</h1>`,
		`<article><p>Short lede.</p></article><div class="x"><p>`+filler+`</p></div>`,
	)

	art, err := New(nil).Extract(pageURL, html, Hints{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(art.Body, "Short lede. The shelling"))
}

func TestExtract_PageTextFallbackDropsScripts(t *testing.T) {
	html := page(
		`<h1>War Breaks Out</h1>`,
		`<script>var tracking = "war war war";</script><style>.a{}</style><div>`+filler+`</div>`,
	)

	art, err := New(nil).Extract(pageURL, html, Hints{})
	require.NoError(t, err)
	assert.NotContains(t, art.Body, "tracking")
	assert.Contains(t, art.Body, "The shelling continued through the night")
}
