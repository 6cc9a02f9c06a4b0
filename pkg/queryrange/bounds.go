package queryrange

// IndexKeyComponent is one field of a compound index key.
type IndexKeyComponent struct {
	Field      string
	Descending bool
}

// Bound is one (lowerKey, upperKey) pair to scan. An edge is inclusive
// only when every component's interval is inclusive at that edge.
type Bound struct {
	LowerKey       []Value
	UpperKey       []Value
	LowerInclusive bool
	UpperInclusive bool
}

// GenerateBoundList walks the index's key components in order, crossing
// the running partial bounds with each component's intervals, and emits
// the resulting key-prefix pairs in traversal order (spec §4.B step 6).
// dir is the overall traversal direction, +1 or -1.
func GenerateBoundList(set *FieldRangeSet, key []IndexKeyComponent, dir int) []Bound {
	partials := []Bound{{LowerInclusive: true, UpperInclusive: true}}

	for _, comp := range key {
		r := set.Range(comp.Field)
		ivs := r.Intervals
		if len(ivs) == 0 {
			// An empty field range means no document can match; the
			// whole bound list collapses to nothing.
			return nil
		}
		if reversed(comp.Descending, dir) {
			ivs = reverseIntervals(ivs)
		}

		next := make([]Bound, 0, len(partials)*len(ivs))
		for _, p := range partials {
			for _, iv := range ivs {
				lowerKey := append(append([]Value{}, p.LowerKey...), iv.Lower)
				upperKey := append(append([]Value{}, p.UpperKey...), iv.Upper)
				next = append(next, Bound{
					LowerKey:       lowerKey,
					UpperKey:       upperKey,
					LowerInclusive: p.LowerInclusive && iv.LowerInclusive,
					UpperInclusive: p.UpperInclusive && iv.UpperInclusive,
				})
			}
		}
		partials = next
	}

	return partials
}

// reversed reports whether a component's interval order should be
// reversed: true when exactly one of "index component descends" and
// "traversal direction is reverse" holds.
func reversed(descending bool, dir int) bool {
	return descending != (dir < 0)
}

func reverseIntervals(ivs []Interval) []Interval {
	out := make([]Interval, len(ivs))
	for i, iv := range ivs {
		out[len(ivs)-1-i] = iv
	}
	return out
}
