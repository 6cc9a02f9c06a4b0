package queryrange

// FieldPatternKind classifies how a single field's range constrains an
// index scan, for use as a plan-memoization key (spec §3 Query Pattern,
// §4.B step 5).
type FieldPatternKind int

const (
	// PatternNone is an unconstrained (full-range) field.
	PatternNone FieldPatternKind = iota
	PatternEquality
	PatternLowerBound
	PatternUpperBound
	PatternUpperAndLowerBound
	// PatternMultiBound is a union of more than one interval (e.g. an
	// $in over several distinct values) — not named explicitly in the
	// source classification, but needed so patterns from $in queries are
	// still distinguishable from a single equality.
	PatternMultiBound
)

// DeriveFieldPattern classifies r per spec §4.B step 5.
func DeriveFieldPattern(r FieldRange) FieldPatternKind {
	if r.IsFull() {
		return PatternNone
	}
	if len(r.Intervals) != 1 {
		return PatternMultiBound
	}
	if r.IsPoint() {
		return PatternEquality
	}

	iv := r.Intervals[0]
	lowerOpen := iv.Lower.Equal(MinKey)
	upperOpen := iv.Upper.Equal(MaxKey)
	switch {
	case lowerOpen && !upperOpen:
		return PatternUpperBound
	case upperOpen && !lowerOpen:
		return PatternLowerBound
	case !lowerOpen && !upperOpen:
		return PatternUpperAndLowerBound
	default:
		return PatternNone
	}
}

// QueryPattern is the abstract shape used as a plan-memoization key: each
// field's range classification, plus the normalized sort direction
// sequence.
type QueryPattern struct {
	Fields map[string]FieldPatternKind
	Sort   []int
}

// DerivePattern builds the Query Pattern for set's fields plus the given
// sort specification (already normalized via NormalizeSort).
func DerivePattern(set *FieldRangeSet, sort []int) QueryPattern {
	fields := make(map[string]FieldPatternKind, len(set.Fields()))
	for _, f := range set.Fields() {
		fields[f] = DeriveFieldPattern(set.Range(f))
	}
	return QueryPattern{Fields: fields, Sort: NormalizeSort(sort)}
}

// Equal reports whether two patterns are eligible for the same index
// plan: same field classifications and same normalized sort.
func (p QueryPattern) Equal(o QueryPattern) bool {
	if len(p.Fields) != len(o.Fields) {
		return false
	}
	for f, k := range p.Fields {
		if ok, has := o.Fields[f]; !has || ok != k {
			return false
		}
	}
	if len(p.Sort) != len(o.Sort) {
		return false
	}
	for i := range p.Sort {
		if p.Sort[i] != o.Sort[i] {
			return false
		}
	}
	return true
}

// NormalizeSort implements spec §4.B step 5's sort normalization: the
// sign of the first component is factored out, so sort specs that are
// exact opposites ({a:1,b:-1} vs {a:-1,b:1}) — which scan the same
// index in opposite directions — normalize to the same ±1 sequence.
func NormalizeSort(spec []int) []int {
	if len(spec) == 0 {
		return nil
	}
	sign := 1
	if spec[0] < 0 {
		sign = -1
	}
	out := make([]int, len(spec))
	for i, c := range spec {
		v := c * sign
		switch {
		case v > 0:
			out[i] = 1
		case v < 0:
			out[i] = -1
		default:
			out[i] = 0
		}
	}
	return out
}
