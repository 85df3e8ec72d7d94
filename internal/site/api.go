package site

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"quotewire/internal/config"
	"quotewire/internal/model"
	"quotewire/internal/urlutil"
)

// Collector is implemented by profiles whose listing response already
// carries every article's headline and text, so articles need no fetch or
// extraction of their own.
type Collector interface {
	Collect(listing string) ([]model.Article, error)
}

const (
	guardianEndpoint = "https://content.guardianapis.com/search"
	nytEndpoint      = "https://api.nytimes.com/svc/topstories/v2/%s.json"

	defaultSection  = "world"
	defaultPageSize = 5
)

// APIProfile reads ready articles from a publisher's JSON content API.
type APIProfile struct {
	base
	decode func(payload []byte) ([]model.Article, error)
}

// Collect decodes an API response into articles. Items without a usable
// URL or body are dropped, and the rest are deduplicated by normalized URL.
func (p *APIProfile) Collect(listing string) ([]model.Article, error) {
	arts, err := p.decode([]byte(listing))
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", p.name, err)
	}

	seen := make(map[string]struct{}, len(arts))
	out := make([]model.Article, 0, len(arts))
	for _, a := range arts {
		abs, ok := urlutil.Absolute(p.baseURL, a.URL)
		if !ok || !p.rule.match(abs) || strings.TrimSpace(a.Body) == "" {
			continue
		}
		key := urlutil.Normalize(abs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		a.URL = abs
		a.Site = p.name
		out = append(out, a)
	}
	return out, nil
}

func (p *APIProfile) Discover(listing string) ([]string, error) {
	arts, err := p.Collect(listing)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(arts))
	for _, a := range arts {
		urls = append(urls, a.URL)
	}
	return urls, nil
}

type guardianResponse struct {
	Response struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Results []struct {
			WebURL   string `json:"webUrl"`
			WebTitle string `json:"webTitle"`
			Fields   struct {
				Headline string `json:"headline"`
				BodyText string `json:"bodyText"`
			} `json:"fields"`
		} `json:"results"`
	} `json:"response"`
}

func decodeGuardian(payload []byte) ([]model.Article, error) {
	var res guardianResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	if st := res.Response.Status; st != "" && st != "ok" {
		return nil, fmt.Errorf("api status %q: %s", st, res.Response.Message)
	}

	out := make([]model.Article, 0, len(res.Response.Results))
	for _, r := range res.Response.Results {
		title := r.Fields.Headline
		if title == "" {
			title = r.WebTitle
		}
		out = append(out, model.Article{URL: r.WebURL, Title: title, Body: r.Fields.BodyText})
	}
	return out, nil
}

type nytResponse struct {
	Status  string `json:"status"`
	Fault   *struct {
		FaultString string `json:"faultstring"`
	} `json:"fault"`
	Results []struct {
		Title      string `json:"title"`
		URL        string `json:"url"`
		Abstract   string `json:"abstract"`
		Multimedia []struct {
			Caption string `json:"caption"`
		} `json:"multimedia"`
	} `json:"results"`
}

// decodeNYT builds the body from the abstract and the media captions, which
// is all the top stories feed exposes.
func decodeNYT(payload []byte) ([]model.Article, error) {
	var res nytResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, err
	}
	if res.Fault != nil {
		return nil, fmt.Errorf("api fault: %s", res.Fault.FaultString)
	}
	if res.Status != "" && res.Status != "OK" {
		return nil, fmt.Errorf("api status %q", res.Status)
	}

	out := make([]model.Article, 0, len(res.Results))
	for _, r := range res.Results {
		parts := []string{r.Abstract}
		for _, m := range r.Multimedia {
			if m.Caption != "" {
				parts = append(parts, m.Caption)
			}
		}
		out = append(out, model.Article{URL: r.URL, Title: r.Title, Body: strings.TrimSpace(strings.Join(parts, " "))})
	}
	return out, nil
}

// apiListingURL builds the request URL for an API site. ListingURL, when
// set, replaces the public endpoint.
func apiListingURL(cfg config.SiteConfig) (string, error) {
	section := cfg.Section
	if section == "" {
		section = defaultSection
	}

	endpoint := cfg.ListingURL
	params := url.Values{}
	switch strings.ToLower(cfg.Kind) {
	case config.KindGuardianAPI:
		if endpoint == "" {
			endpoint = guardianEndpoint
		}
		size := cfg.PageSize
		if size <= 0 {
			size = defaultPageSize
		}
		params.Set("section", section)
		params.Set("show-fields", "bodyText,headline")
		params.Set("page-size", strconv.Itoa(size))
		params.Set("order-by", "newest")
	case config.KindNYTAPI:
		if endpoint == "" {
			endpoint = fmt.Sprintf(nytEndpoint, url.PathEscape(section))
		}
	}
	params.Set("api-key", cfg.APIKey)

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
