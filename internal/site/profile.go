package site

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"quotewire/internal/config"
	"quotewire/internal/urlutil"
)

// Profile knows where a site lists its articles and which links on that
// listing are articles.
type Profile interface {
	Name() string
	ListingURL() string
	// Discover returns absolute article URLs found in a fetched listing,
	// deduplicated by normalized form, in discovery order.
	Discover(listing string) ([]string, error)
	// Headlines and Bodies are extra CSS selectors tried by the extractor
	// before the generic ones.
	Headlines() []string
	Bodies() []string
}

// rule is the inclusion test applied to every candidate link. A regex, when
// configured, replaces the substring test.
type rule struct {
	pattern string
	re      *regexp.Regexp
}

func (r rule) match(u string) bool {
	if r.re != nil {
		return r.re.MatchString(u)
	}
	return r.pattern == "" || strings.Contains(u, r.pattern)
}

type base struct {
	name       string
	listingURL string
	baseURL    *url.URL
	rule       rule
	headlines  []string
	bodies     []string
}

func (b *base) Name() string        { return b.name }
func (b *base) ListingURL() string  { return b.listingURL }
func (b *base) Headlines() []string { return b.headlines }
func (b *base) Bodies() []string    { return b.bodies }

// collect resolves, filters and dedups hrefs.
func (b *base) collect(hrefs []string) []string {
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		abs, ok := urlutil.Absolute(b.baseURL, href)
		if !ok || !b.rule.match(abs) {
			continue
		}
		key := urlutil.Normalize(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, abs)
	}
	return out
}

// HTMLProfile discovers articles from the anchors of an HTML listing page.
type HTMLProfile struct {
	base
}

func (p *HTMLProfile) Discover(listing string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(listing))
	if err != nil {
		return nil, fmt.Errorf("parse listing for %s: %w", p.name, err)
	}

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return p.collect(hrefs), nil
}

// FeedProfile discovers articles from the item links of an RSS or Atom feed.
type FeedProfile struct {
	base
	parser *gofeed.Parser
}

func (p *FeedProfile) Discover(listing string) ([]string, error) {
	feed, err := p.parser.ParseString(listing)
	if err != nil {
		return nil, fmt.Errorf("parse feed for %s: %w", p.name, err)
	}

	hrefs := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		link := item.Link
		if link == "" && len(item.Links) > 0 {
			link = item.Links[0]
		}
		hrefs = append(hrefs, link)
	}
	return p.collect(hrefs), nil
}

// FromConfig builds the profile described by cfg.
func FromConfig(cfg config.SiteConfig) (Profile, error) {
	kind := strings.ToLower(cfg.Kind)
	listing := cfg.ListingURL
	if kind == config.KindGuardianAPI || kind == config.KindNYTAPI {
		var err error
		if listing, err = apiListingURL(cfg); err != nil {
			return nil, fmt.Errorf("site %s: bad api endpoint: %w", cfg.Name, err)
		}
	}

	rawBase := cfg.BaseURL
	if rawBase == "" {
		rawBase = listing
	}
	baseURL, err := url.Parse(rawBase)
	if err != nil {
		return nil, fmt.Errorf("site %s: bad base url: %w", cfg.Name, err)
	}

	r := rule{pattern: cfg.Pattern}
	if cfg.Regex != "" {
		r.re, err = regexp.Compile(cfg.Regex)
		if err != nil {
			return nil, fmt.Errorf("site %s: bad regex: %w", cfg.Name, err)
		}
	}

	b := base{
		name:       cfg.Name,
		listingURL: listing,
		baseURL:    baseURL,
		rule:       r,
		headlines:  cfg.HeadlineSelectors,
		bodies:     cfg.BodySelectors,
	}

	switch kind {
	case "", config.KindHTML:
		return &HTMLProfile{base: b}, nil
	case config.KindFeed:
		return &FeedProfile{base: b, parser: gofeed.NewParser()}, nil
	case config.KindGuardianAPI:
		return &APIProfile{base: b, decode: decodeGuardian}, nil
	case config.KindNYTAPI:
		return &APIProfile{base: b, decode: decodeNYT}, nil
	}
	return nil, fmt.Errorf("site %s: unknown kind %q", cfg.Name, cfg.Kind)
}

// FromConfigs builds every configured profile, failing on the first bad one.
func FromConfigs(cfgs []config.SiteConfig) ([]Profile, error) {
	out := make([]Profile, 0, len(cfgs))
	for _, c := range cfgs {
		p, err := FromConfig(c)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
