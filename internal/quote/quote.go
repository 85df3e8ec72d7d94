package quote

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// Default length window. Candidates must be strictly inside it.
const (
	DefaultMinLen = 8
	DefaultMaxLen = 300
)

type pair struct {
	open, close string
}

// Straight double, curly double, curly single. Order is significant for
// the output sequence.
var pairs = []pair{
	{`"`, `"`},
	{"“", "”"},
	{"‘", "’"},
}

var urlPrefixes = []string{"http", "www"}

// Extractor pulls quoted spans out of article text.
type Extractor struct {
	Min int
	Max int
}

func NewExtractor(min, max int) *Extractor {
	return &Extractor{Min: min, Max: max}
}

// Extract returns every accepted span, pair by pair, in match order. Spans
// are matched one level deep: an opening mark pairs with the next closing
// mark of the same kind.
func (e *Extractor) Extract(text string) []string {
	var out []string
	for _, p := range pairs {
		rest := text
		for {
			i := strings.Index(rest, p.open)
			if i < 0 {
				break
			}
			rest = rest[i+len(p.open):]
			j := strings.Index(rest, p.close)
			if j < 0 {
				break
			}
			span := rest[:j]
			rest = rest[j+len(p.close):]

			if q := strings.TrimSpace(span); e.accept(q) {
				out = append(out, q)
			}
		}
	}
	return out
}

func (e *Extractor) accept(q string) bool {
	n := utf8.RuneCountInString(q)
	if n <= e.Min || n >= e.Max {
		return false
	}
	lower := strings.ToLower(q)
	for _, p := range urlPrefixes {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

// Normalize lowercases, trims and collapses internal whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// ID is the content address of a quote: the hex SHA-256 of its normalized text.
func ID(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}
