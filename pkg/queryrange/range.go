package queryrange

import "sort"

// Interval is a closed/open bound pair over Value. An interval is only
// ever constructed non-empty by the helpers in this file; FieldRange may
// still end up with zero intervals, which means "no value matches".
type Interval struct {
	Lower, Upper                   Value
	LowerInclusive, UpperInclusive bool
}

// PointInterval returns the single-point [v, v] interval.
func PointInterval(v Value) Interval {
	return Interval{Lower: v, Upper: v, LowerInclusive: true, UpperInclusive: true}
}

// FullInterval spans MinKey to MaxKey inclusive — "matches anything".
func FullInterval() Interval {
	return Interval{Lower: MinKey, Upper: MaxKey, LowerInclusive: true, UpperInclusive: true}
}

// empty reports whether the interval denotes no values at all: an empty
// interval is never stored in a FieldRange — a FieldRange with zero
// intervals is how "no match" is represented (spec §3 Field Range).
func (iv Interval) empty() bool {
	c := iv.Lower.Compare(iv.Upper)
	if c > 0 {
		return true
	}
	if c == 0 {
		return !(iv.LowerInclusive && iv.UpperInclusive)
	}
	return false
}

// overlapsOrTouches reports whether a and b can be coalesced into one
// interval under union: they overlap, or their boundaries meet and at
// least one side is inclusive.
func overlapsOrTouches(a, b Interval) bool {
	if a.Lower.Compare(b.Lower) > 0 {
		a, b = b, a
	}
	c := a.Upper.Compare(b.Lower)
	if c > 0 {
		return true
	}
	if c < 0 {
		return false
	}
	return a.UpperInclusive || b.LowerInclusive
}

func coalesce(a, b Interval) Interval {
	lo, loInc := a.Lower, a.LowerInclusive
	if c := b.Lower.Compare(a.Lower); c < 0 || (c == 0 && b.LowerInclusive) {
		lo, loInc = b.Lower, b.LowerInclusive
	}
	hi, hiInc := a.Upper, a.UpperInclusive
	if c := b.Upper.Compare(a.Upper); c > 0 || (c == 0 && b.UpperInclusive) {
		hi, hiInc = b.Upper, b.UpperInclusive
	}
	return Interval{Lower: lo, Upper: hi, LowerInclusive: loInc, UpperInclusive: hiInc}
}

func clip(a, b Interval) (Interval, bool) {
	lo, loInc := a.Lower, a.LowerInclusive
	if c := b.Lower.Compare(a.Lower); c > 0 || (c == 0 && !b.LowerInclusive) {
		lo, loInc = b.Lower, b.LowerInclusive
	}
	hi, hiInc := a.Upper, a.UpperInclusive
	if c := b.Upper.Compare(a.Upper); c < 0 || (c == 0 && !b.UpperInclusive) {
		hi, hiInc = b.Upper, b.UpperInclusive
	}
	out := Interval{Lower: lo, Upper: hi, LowerInclusive: loInc, UpperInclusive: hiInc}
	return out, !out.empty()
}

// FieldRange is an ordered list of non-empty, non-overlapping intervals
// over one field's values, plus an optional "special" index marker (e.g.
// "2d" for a geo index). An empty Intervals slice means "no value
// matches" (spec §3).
type FieldRange struct {
	Intervals []Interval
	Special   string

	// PurePrefix is set by regex construction when the whole pattern
	// was captured by the anchored-literal-prefix range, so the caller
	// can skip the post-filter (spec §4.B.1).
	PurePrefix bool
}

// EmptyRange returns a FieldRange matching nothing.
func EmptyRange() FieldRange { return FieldRange{} }

// FullRange returns a FieldRange matching everything.
func FullRange() FieldRange { return FieldRange{Intervals: []Interval{FullInterval()}} }

// IsEmpty reports whether r matches nothing.
func (r FieldRange) IsEmpty() bool { return len(r.Intervals) == 0 }

// IsPoint reports whether r is exactly one single-value point.
func (r FieldRange) IsPoint() bool {
	if len(r.Intervals) != 1 {
		return false
	}
	iv := r.Intervals[0]
	return iv.LowerInclusive && iv.UpperInclusive && iv.Lower.Equal(iv.Upper)
}

// IsFull reports whether r spans the entire key space.
func (r FieldRange) IsFull() bool {
	if len(r.Intervals) != 1 {
		return false
	}
	iv := r.Intervals[0]
	return iv.LowerInclusive && iv.UpperInclusive && iv.Lower.Equal(MinKey) && iv.Upper.Equal(MaxKey)
}

func normalize(ivs []Interval) []Interval {
	filtered := ivs[:0:0]
	for _, iv := range ivs {
		if !iv.empty() {
			filtered = append(filtered, iv)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	sort.Slice(filtered, func(i, j int) bool {
		if c := filtered[i].Lower.Compare(filtered[j].Lower); c != 0 {
			return c < 0
		}
		return filtered[i].LowerInclusive && !filtered[j].LowerInclusive
	})
	out := []Interval{filtered[0]}
	for _, iv := range filtered[1:] {
		last := out[len(out)-1]
		if overlapsOrTouches(last, iv) {
			out[len(out)-1] = coalesce(last, iv)
		} else {
			out = append(out, iv)
		}
	}
	return out
}

// Union returns a ∨ b: the interval-wise merge with coalescing of
// touching/overlapping intervals.
func Union(a, b FieldRange) FieldRange {
	merged := append(append([]Interval{}, a.Intervals...), b.Intervals...)
	special := a.Special
	if special == "" {
		special = b.Special
	}
	return FieldRange{Intervals: normalize(merged), Special: special}
}

// Intersect returns a ∧ b: interval-wise clip. An empty result is
// permitted and propagates.
func Intersect(a, b FieldRange) FieldRange {
	var out []Interval
	for _, x := range a.Intervals {
		for _, y := range b.Intervals {
			if iv, ok := clip(x, y); ok {
				out = append(out, iv)
			}
		}
	}
	special := a.Special
	if special == "" {
		special = b.Special
	}
	return FieldRange{Intervals: normalize(out), Special: special}
}

// Subtract returns a - b, used for $or-clause peeling (spec §4.B.4).
// An interval of a that lies entirely within an interval of b is
// removed, and an edge of a that an interval of b overlaps is
// contracted; an interval of b lying strictly inside an interval of a
// leaves that interval unchanged, since subtraction never splits an
// interval. This keeps subtraction cheap and conservative — see spec §9
// Open Questions.
func Subtract(a, b FieldRange) FieldRange {
	out := append([]Interval{}, a.Intervals...)
	for i, x := range out {
		for _, y := range b.Intervals {
			if !overlapsOrTouches(x, y) {
				continue
			}
			// y covering x removes it; y strictly inside x leaves x untouched.
			lc, uc := y.Lower.Compare(x.Lower), y.Upper.Compare(x.Upper)
			lowerCovered := lc < 0 || (lc == 0 && (y.LowerInclusive || !x.LowerInclusive))
			upperCovered := uc > 0 || (uc == 0 && (y.UpperInclusive || !x.UpperInclusive))
			if lowerCovered && upperCovered {
				out[i] = Interval{Lower: x.Lower, Upper: x.Lower} // empty; dropped by normalize
				break
			}
			if upperCovered {
				// y clips x's upper edge.
				x.Upper = y.Lower
				x.UpperInclusive = !y.LowerInclusive
			}
			if lowerCovered {
				// y clips x's lower edge.
				x.Lower = y.Upper
				x.LowerInclusive = !y.UpperInclusive
			}
			out[i] = x
		}
	}
	return FieldRange{Intervals: normalize(out), Special: a.Special}
}

// makeExclusive returns a copy of r with every interval's bounds made
// exclusive, used when a popped or-clause's primary bounds must reflect
// that the interior was already scanned via a secondary key (spec §4.B
// "OR handling", the `secondary`-present case).
func (r FieldRange) makeExclusive() FieldRange {
	out := make([]Interval, len(r.Intervals))
	for i, iv := range r.Intervals {
		iv.LowerInclusive = false
		iv.UpperInclusive = false
		out[i] = iv
	}
	return FieldRange{Intervals: normalize(out), Special: r.Special}
}
