package docstore

import (
	"sort"
	"strings"
	"time"
)

// Doc is a schemaless document. Values are strings, bools, numbers, times or nil.
type Doc map[string]any

// Record pairs a document with its id.
type Record struct {
	ID  string
	Doc Doc
}

func (d Doc) String(field string) string {
	s, _ := d[field].(string)
	return s
}

func (d Doc) Bool(field string) bool {
	b, _ := d[field].(bool)
	return b
}

func (d Doc) Int(field string) int64 {
	f, ok := toFloat(d[field])
	if !ok {
		return 0
	}
	return int64(f)
}

// Float returns nil when the field is absent or null.
func (d Doc) Float(field string) *float64 {
	f, ok := toFloat(d[field])
	if !ok {
		return nil
	}
	return &f
}

// Time parses the field as a timestamp. Backends may hand it back either as
// time.Time or as an RFC 3339 string.
func (d Doc) Time(field string) (time.Time, bool) {
	return toTime(d[field])
}

// StringPtr returns nil for absent or null fields.
func (d Doc) StringPtr(field string) *string {
	s, ok := d[field].(string)
	if !ok {
		return nil
	}
	return &s
}

// TimePtr returns nil for absent or null fields.
func (d Doc) TimePtr(field string) *time.Time {
	t, ok := d.Time(field)
	if !ok {
		return nil
	}
	return &t
}

// merge returns a copy of d with fields applied on top.
func (d Doc) merge(fields Doc) Doc {
	out := make(Doc, len(d)+len(fields))
	for k, v := range d {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type Op string

const (
	Eq  Op = "=="
	Gt  Op = ">"
	Gte Op = ">="
	Lt  Op = "<"
	Lte Op = "<="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents by equality and range filters. Results are ordered by
// OrderBy (when set) and then by id, so equal keys come back in a stable order.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) Order(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Matches evaluates the filters against a document.
func (q Query) Matches(doc Doc) bool {
	for _, f := range q.Filters {
		v, present := doc[f.Field]
		if !present {
			v = nil
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case Eq:
			if c != 0 {
				return false
			}
		case Gt:
			if c <= 0 {
				return false
			}
		case Gte:
			if c < 0 {
				return false
			}
		case Lt:
			if c >= 0 {
				return false
			}
		case Lte:
			if c > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Apply filters, orders and limits an in-memory record set.
func (q Query) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if q.Matches(r.Doc) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c, ok := compare(out[i].Doc[q.OrderBy], out[j].Doc[q.OrderBy])
			if ok && c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// compare orders two document values. ok is false when the values are not
// comparable (different kinds).
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		if a == nil && b == nil {
			return 0, true
		}
		return 0, false
	}

	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if aIsTime || bIsTime {
		ta, okA := toTime(a)
		tb, okB := toTime(b)
		if !okA || !okB {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}
