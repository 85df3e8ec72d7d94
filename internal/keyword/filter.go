package keyword

import (
	"strings"

	"quotewire/internal/model"
)

// Filter is the topical relevance gate applied to extracted articles.
type Filter struct {
	keywords []string
	lowered  []string
}

func NewFilter(keywords []string) *Filter {
	f := &Filter{}
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		l := strings.ToLower(strings.TrimSpace(k))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		f.keywords = append(f.keywords, k)
		f.lowered = append(f.lowered, l)
	}
	return f
}

// Match returns the keywords found in the article title or body, in
// configured order, or nil when none match.
func (f *Filter) Match(a model.Article) []string {
	if a.Empty() {
		return nil
	}
	text := strings.ToLower(a.Title + "\n" + a.Body)

	var matched []string
	for i, l := range f.lowered {
		if strings.Contains(text, l) {
			matched = append(matched, f.keywords[i])
		}
	}
	return matched
}
