package queryrange

import (
	"sort"
	"strings"

	"github.com/shardset/shardset/pkg/errs"
)

// Predicate is the declarative query document: a tree of field-to-matcher
// associations. Each value is either a scalar (implicit $eq), or a
// map[string]any of recognized $-operators, or — for "$or" — a slice of
// Predicate.
type Predicate map[string]any

// recognizedOperators is used to validate operator documents; an
// unrecognized key under a field's operator map is a BadQuery.
var recognizedOperators = map[string]bool{
	"$eq": true, "$lt": true, "$lte": true, "$gt": true, "$gte": true,
	"$in": true, "$ne": true, "$nin": true, "$regex": true,
	"$all": true, "$elemMatch": true, "$not": true, "$exists": true,
	"$type": true, "$mod": true, "$near": true,
}

// Parse converts a predicate document into a Field Range Or-Set (spec
// §4.B algorithm step 1, and "OR handling"). Malformed predicates return
// a BadInput error.
func Parse(pred Predicate) (*FieldRangeOrSet, error) {
	base := NewFieldRangeSet()
	var orDisjuncts []any

	for field, matcher := range pred {
		if field == "$or" {
			disj, ok := matcher.([]any)
			if !ok {
				return nil, errs.New(errs.BadInput, "queryrange.Parse", nil, map[string]any{"reason": "$or must be an array"})
			}
			orDisjuncts = disj
			continue
		}
		r, err := fieldRangeFromMatcher(matcher)
		if err != nil {
			return nil, err
		}
		base.IntersectField(field, r)
	}

	out := &FieldRangeOrSet{Base: base}
	for _, d := range orDisjuncts {
		sub, ok := d.(Predicate)
		if !ok {
			if m, ok2 := d.(map[string]any); ok2 {
				sub = Predicate(m)
			} else {
				return nil, errs.New(errs.BadInput, "queryrange.Parse", nil, map[string]any{"reason": "$or element must be a document"})
			}
		}
		clauseOrSet, err := Parse(sub)
		if err != nil {
			return nil, err
		}
		if len(clauseOrSet.Clauses) > 0 {
			return nil, errs.New(errs.BadInput, "queryrange.Parse", nil, map[string]any{"reason": "nested $or is not supported"})
		}
		out.Clauses = append(out.Clauses, clauseOrSet.Base)
	}

	return out, nil
}

// fieldRangeFromMatcher builds the FieldRange for one field's matcher
// value: a bare scalar (implicit equality) or a document of operators.
func fieldRangeFromMatcher(matcher any) (FieldRange, error) {
	ops, isDoc := matcher.(map[string]any)
	if !isDoc {
		return FieldRange{Intervals: []Interval{PointInterval(Of(matcher))}}, nil
	}

	result := FullRange()
	sawOperator := false
	for op, arg := range ops {
		if !recognizedOperators[op] {
			return FieldRange{}, errs.New(errs.BadInput, "queryrange.fieldRangeFromMatcher", nil, map[string]any{"operator": op})
		}
		sawOperator = true
		r, err := rangeForOperator(op, arg, ops)
		if err != nil {
			return FieldRange{}, err
		}
		result = Intersect(result, r)
	}
	if !sawOperator {
		// Empty operator document: treat as exists-anything (full range).
		return FullRange(), nil
	}
	return result, nil
}

func rangeForOperator(op string, arg any, siblings map[string]any) (FieldRange, error) {
	switch op {
	case "$eq":
		return FieldRange{Intervals: []Interval{PointInterval(Of(arg))}}, nil

	case "$lt", "$lte":
		v := Of(arg)
		return FieldRange{Intervals: []Interval{{
			Lower: MinKey, Upper: v,
			LowerInclusive: true, UpperInclusive: op == "$lte",
		}}}, nil

	case "$gt", "$gte":
		v := Of(arg)
		return FieldRange{Intervals: []Interval{{
			Lower: v, Upper: MaxKey,
			LowerInclusive: op == "$gte", UpperInclusive: true,
		}}}, nil

	case "$in":
		items, ok := arg.([]any)
		if !ok {
			return FieldRange{}, errs.New(errs.BadInput, "queryrange.$in", nil, nil)
		}
		r := EmptyRange()
		for _, it := range items {
			r = Union(r, FieldRange{Intervals: []Interval{PointInterval(Of(it))}})
		}
		return r, nil

	case "$ne":
		return complementRange(FieldRange{Intervals: []Interval{PointInterval(Of(arg))}}), nil

	case "$nin":
		items, ok := arg.([]any)
		if !ok {
			return FieldRange{}, errs.New(errs.BadInput, "queryrange.$nin", nil, nil)
		}
		r := EmptyRange()
		for _, it := range items {
			r = Union(r, FieldRange{Intervals: []Interval{PointInterval(Of(it))}})
		}
		return complementRange(r), nil

	case "$regex":
		pattern, ok := arg.(string)
		if !ok {
			return FieldRange{}, errs.New(errs.BadInput, "queryrange.$regex", nil, nil)
		}
		return regexRange(pattern), nil

	case "$mod":
		// §4.B restores the original's treatment (queryutil.h): $mod
		// never narrows the scanned range. The modulus and residue are
		// not recorded in the FieldRange.
		return FullRange(), nil

	case "$all", "$elemMatch", "$not", "$exists", "$type", "$near":
		// Conservative: none of these narrow a scalar range on their own.
		return FullRange(), nil

	default:
		return FieldRange{}, errs.New(errs.BadInput, "queryrange.rangeForOperator", nil, map[string]any{"operator": op})
	}
}

// complementRange implements $ne/$nin per spec §4.B.1: represented
// exactly only when the existing range is a single point or the full
// range; otherwise reduced to a conservative superset (full range).
func complementRange(r FieldRange) FieldRange {
	if r.IsEmpty() {
		return FullRange()
	}
	if !r.IsPoint() {
		return FullRange()
	}
	v := r.Intervals[0].Lower
	lower := Interval{Lower: MinKey, Upper: v, LowerInclusive: true, UpperInclusive: false}
	upper := Interval{Lower: v, Upper: MaxKey, LowerInclusive: false, UpperInclusive: true}
	return FieldRange{Intervals: normalize([]Interval{lower, upper})}
}

// regexRange implements spec §4.B.1: if the pattern begins with an
// anchored literal prefix (possibly followed by arbitrary pattern),
// produce [prefix, prefix++1); otherwise the full string range. When the
// literal run is the entire pattern (with or without a trailing "$"),
// the range is fully captured and PurePrefix is set.
func regexRange(pattern string) FieldRange {
	prefix, exact, anchored := anchoredLiteralPrefix(pattern)
	if !anchored {
		return FieldRange{Intervals: []Interval{FullInterval()}}
	}
	if exact {
		return FieldRange{Intervals: []Interval{PointInterval(Str(prefix))}, PurePrefix: true}
	}

	successor, ok := incrementedString(prefix)
	if !ok {
		return FieldRange{Intervals: []Interval{FullInterval()}}
	}
	return FieldRange{
		Intervals:  []Interval{{Lower: Str(prefix), Upper: Str(successor), LowerInclusive: true, UpperInclusive: false}},
		PurePrefix: prefix != "" && prefix == pattern[1:],
	}
}

// anchoredLiteralPrefix extracts the literal run at the start of an
// anchored ("^...") regex. anchored is false if the pattern doesn't
// start with "^". exact is true when the literal run is immediately
// followed by a trailing "$" — i.e. the regex matches exactly that
// literal and nothing else ("^abc$" or "^$"). A literal run that ends
// the pattern ("^abc") is a prefix match, with exact false.
func anchoredLiteralPrefix(pattern string) (prefix string, exact bool, anchored bool) {
	if !strings.HasPrefix(pattern, "^") {
		return "", false, false
	}
	body := pattern[1:]
	if body == "$" {
		return "", true, true // "^$" — matches only the empty string
	}

	var lit strings.Builder
	i := 0
	for i < len(body) {
		c := body[i]
		if isRegexMeta(c) {
			break
		}
		lit.WriteByte(c)
		i++
	}
	remaining := body[i:]
	switch remaining {
	case "":
		return lit.String(), false, true // "^abc" — prefix match, not exact
	case "$":
		return lit.String(), true, true // "^abc$" — exact match
	default:
		return lit.String(), false, true // more pattern follows
	}
}

func isRegexMeta(c byte) bool {
	switch c {
	case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '|', '\\', '^', '$':
		return true
	default:
		return false
	}
}

// sortedFields is a small helper used by callers that want a stable
// iteration order over a FieldRangeSet for logging/debugging.
func sortedFields(s *FieldRangeSet) []string {
	f := s.Fields()
	sort.Strings(f)
	return f
}
