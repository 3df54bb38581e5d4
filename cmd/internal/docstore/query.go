package docstore

import (
	"slices"
	"strings"
	"time"
)

// Paging defaults shared by every Store implementation.
const (
	DefaultLimit = 25
	MaxLimit     = 1000
)

// Op is a filter operator.
type Op uint8

const (
	OpEqual Op = iota + 1
	OpNotEqual
	OpIsNull
)

// Filter is one predicate on a field. OpEqual matches any of Values.
type Filter struct {
	Field  string
	Op     Op
	Values []any
}

// Equal matches documents whose field equals any of values. No values matches nothing.
func Equal(field string, values ...any) Filter {
	return Filter{Field: field, Op: OpEqual, Values: values}
}

// EqualStrings is Equal for a string list.
func EqualStrings(field string, values []string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Field: field, Op: OpEqual, Values: vs}
}

// NotEqual matches documents whose field differs from value (absent fields differ).
func NotEqual(field string, value any) Filter {
	return Filter{Field: field, Op: OpNotEqual, Values: []any{value}}
}

// IsNull matches documents where field is absent or null.
func IsNull(field string) Filter {
	return Filter{Field: field, Op: OpIsNull}
}

// Query is an immutable list request. Build with NewQuery and the chained helpers.
type Query struct {
	Filters   []Filter
	OrderBy   string
	OrderDesc bool
	Limit     int
	Offset    int
}

// NewQuery returns a query with the given filters and default paging.
func NewQuery(filters ...Filter) Query {
	return Query{Filters: filters}
}

// Desc orders by field, newest/largest first.
func (q Query) Desc(field string) Query {
	q.OrderBy = field
	q.OrderDesc = true
	return q
}

// Asc orders by field, oldest/smallest first.
func (q Query) Asc(field string) Query {
	q.OrderBy = field
	q.OrderDesc = false
	return q
}

// Page sets limit and offset.
func (q Query) Page(limit, offset int) Query {
	q.Limit = limit
	q.Offset = offset
	return q
}

func (q Query) normalized() (Query, error) {
	if q.Offset < 0 {
		return q, invalid("negative offset")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	for _, f := range q.Filters {
		if strings.TrimSpace(f.Field) == "" {
			return q, invalid("empty filter field")
		}
		switch f.Op {
		case OpEqual, OpIsNull:
		case OpNotEqual:
			if len(f.Values) != 1 {
				return q, invalid("not-equal takes exactly one value")
			}
		default:
			return q, invalid("unknown filter operator")
		}
	}
	return q, nil
}

// Match reports whether d satisfies every filter.
func (q Query) Match(d Document) bool {
	for _, f := range q.Filters {
		if !f.match(d) {
			return false
		}
	}
	return true
}

func (f Filter) match(d Document) bool {
	got, present := scalarKey(d.field(f.Field))
	switch f.Op {
	case OpEqual:
		if !present {
			return false
		}
		return slices.ContainsFunc(f.Values, func(v any) bool {
			want, ok := scalarKey(v)
			return ok && want == got
		})
	case OpNotEqual:
		want, ok := scalarKey(f.Values[0])
		if !present || !ok {
			return present != ok
		}
		return got != want
	case OpIsNull:
		return !present
	default:
		return false
	}
}

// sortDocuments orders docs by q.OrderBy with the id as tie-breaker in the same direction.
func sortDocuments(docs []Document, q Query) {
	field := q.OrderBy
	if field == "" {
		field = FieldID
	}
	slices.SortStableFunc(docs, func(a, b Document) int {
		c := compareField(a.field(field), b.field(field))
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if q.OrderDesc {
			return -c
		}
		return c
	})
}

func compareField(a, b any) int {
	ta, aok := a.(time.Time)
	tb, bok := b.(time.Time)
	if aok && bok {
		return ta.Compare(tb)
	}
	ka, aPresent := scalarKey(a)
	kb, bPresent := scalarKey(b)
	switch {
	case !aPresent && !bPresent:
		return 0
	case !aPresent:
		return -1
	case !bPresent:
		return 1
	}
	return strings.Compare(ka, kb)
}
