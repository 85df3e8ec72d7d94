package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"quotewire/internal/model"
)

const (
	DefaultMinTitle = 10
	DefaultMinBody  = 300
)

// Section and navigation labels that show up in place of a headline.
var blockedTitles = map[string]struct{}{
	"Business": {}, "Climate": {}, "Sport": {}, "Technology": {},
	"Entertainment": {}, "NewsNews": {}, "No title": {}, "Analysis": {},
	"Art & Design": {}, "Movies": {}, "Opinion": {}, "Review": {},
	"Menu": {}, "Navigation": {}, "Search": {},
}

var genericTokens = []string{"Section", "Category", "Page"}

var (
	headlineSelectors = []string{
		"[data-testid=headline]",
		"[class*=headline]",
		".article-title",
		".story-title",
		"header h2",
	}
	bodySelectors = []string{
		"article",
		"[itemprop=articleBody]",
		".article-body",
		".story-body",
		"[data-component=text-block]",
	}
)

// Rejection is returned for pages that parsed fine but are not usable
// articles. It is a normal outcome, not a failure.
type Rejection struct {
	Reason string
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("rejected (%s): %s", r.Reason, r.Detail)
}

// Hints carries per-site selectors tried before the generic ones.
type Hints struct {
	Headlines []string
	Bodies    []string
}

type Extractor struct {
	logger   *zap.Logger
	minTitle int
	minBody  int
}

func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger, minTitle: DefaultMinTitle, minBody: DefaultMinBody}
}

// Extract pulls a title and body text out of an article page. Unusable pages
// yield a *Rejection.
func (e *Extractor) Extract(pageURL, page string, hints Hints) (model.Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return model.Article{}, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	var readable *readability.Article
	if u, err := url.Parse(pageURL); err == nil {
		if art, err := readability.FromReader(strings.NewReader(page), u); err == nil {
			readable = &art
		} else {
			e.logger.Debug("Readability failed", zap.String("url", pageURL), zap.Error(err))
		}
	}

	title, rej := e.title(doc, hints, readable)
	if rej != nil {
		return model.Article{}, rej
	}

	body := e.body(doc, hints)
	if n := utf8.RuneCountInString(body); n < e.minBody {
		return model.Article{}, &Rejection{
			Reason: model.ReasonShortBody,
			Detail: fmt.Sprintf("%d characters of body text", n),
		}
	}

	art := model.Article{URL: pageURL, Title: title, Body: body}
	if readable != nil {
		art.Excerpt = clean(readable.Excerpt)
	}
	return art, nil
}

// title walks the strategies in order and keeps the first acceptable
// candidate. When none is acceptable the first rejection is reported.
func (e *Extractor) title(doc *goquery.Document, hints Hints, readable *readability.Article) (string, *Rejection) {
	var candidates []string

	candidates = append(candidates, clean(doc.Find("h1").First().Text()))
	doc.Find("h2, h3").Each(func(_ int, s *goquery.Selection) {
		if t := clean(s.Text()); utf8.RuneCountInString(t) >= e.minTitle {
			candidates = append(candidates, t)
		}
	})
	for _, sel := range append(append([]string(nil), hints.Headlines...), headlineSelectors...) {
		candidates = append(candidates, clean(doc.Find(sel).First().Text()))
	}
	if readable != nil {
		candidates = append(candidates, clean(readable.Title))
	}

	var first *Rejection
	for _, c := range candidates {
		if c == "" {
			continue
		}
		rej := e.checkTitle(c)
		if rej == nil {
			return c, nil
		}
		if first == nil {
			first = rej
		}
	}
	if first == nil {
		first = &Rejection{Reason: model.ReasonNoTitle, Detail: "no headline found"}
	}
	return "", first
}

func (e *Extractor) checkTitle(t string) *Rejection {
	if _, blocked := blockedTitles[t]; blocked {
		return &Rejection{Reason: model.ReasonBadTitle, Detail: t}
	}
	for _, tok := range genericTokens {
		if strings.Contains(t, tok) {
			return &Rejection{Reason: model.ReasonGenericTitle, Detail: t}
		}
	}
	if utf8.RuneCountInString(t) < e.minTitle {
		return &Rejection{Reason: model.ReasonNoTitle, Detail: fmt.Sprintf("title too short: %q", t)}
	}
	return nil
}

// body tries container paragraphs, then every paragraph, then the whole
// page text, stopping at the first long enough result.
func (e *Extractor) body(doc *goquery.Document, hints Hints) string {
	selectors := append(append([]string(nil), hints.Bodies...), bodySelectors...)
	strategies := []func() string{
		func() string { return paragraphs(doc.Find(strings.Join(selectors, ", ")).Find("p")) },
		func() string { return paragraphs(doc.Find("p")) },
		func() string {
			doc.Find("script, style, noscript").Remove()
			return clean(doc.Find("body").Text())
		},
	}

	var best string
	for _, s := range strategies {
		text := s()
		if utf8.RuneCountInString(text) >= e.minBody {
			return text
		}
		if len(text) > len(best) {
			best = text
		}
	}
	return best
}

// paragraphs joins the text of each paragraph with single spaces.
func paragraphs(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if t := clean(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, " ")
}

// clean trims and collapses runs of whitespace.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
