package queryrange

// FieldRangeSet maps a field name to its FieldRange for one conjunction
// of predicates (spec §3 Field Range Set).
type FieldRangeSet struct {
	ranges map[string]FieldRange
}

// NewFieldRangeSet builds an empty set — every unmentioned field is
// implicitly FullRange.
func NewFieldRangeSet() *FieldRangeSet {
	return &FieldRangeSet{ranges: make(map[string]FieldRange)}
}

// Range returns the FieldRange recorded for field, or FullRange if the
// predicate never constrained it.
func (s *FieldRangeSet) Range(field string) FieldRange {
	if r, ok := s.ranges[field]; ok {
		return r
	}
	return FullRange()
}

// Fields returns the set of field names this set has an explicit range
// for (excluding implicit full ranges).
func (s *FieldRangeSet) Fields() []string {
	out := make([]string, 0, len(s.ranges))
	for f := range s.ranges {
		out = append(out, f)
	}
	return out
}

// IntersectField narrows field's range by intersecting it with r —
// this is how multiple predicates on the same field combine (e.g.
// {$gt: 1, $lt: 10}).
func (s *FieldRangeSet) IntersectField(field string, r FieldRange) {
	s.ranges[field] = Intersect(s.Range(field), r)
}

// SetField replaces field's range outright.
func (s *FieldRangeSet) SetField(field string, r FieldRange) {
	s.ranges[field] = r
}

// IsEmpty reports whether any field's range is empty, meaning the whole
// conjunction matches nothing.
func (s *FieldRangeSet) IsEmpty() bool {
	for _, r := range s.ranges {
		if r.IsEmpty() {
			return true
		}
	}
	return false
}

// Clone deep-copies the set.
func (s *FieldRangeSet) Clone() *FieldRangeSet {
	out := NewFieldRangeSet()
	for f, r := range s.ranges {
		ivs := append([]Interval{}, r.Intervals...)
		out.ranges[f] = FieldRange{Intervals: ivs, Special: r.Special, PurePrefix: r.PurePrefix}
	}
	return out
}

// FieldRangeOrSet is a base conjunction plus an ordered list of
// alternative conjunctions — the disjuncts of a top-level $or (spec §3
// Field Range Or-Set).
type FieldRangeOrSet struct {
	Base    *FieldRangeSet
	Clauses []*FieldRangeSet
}

// IsEmpty reports whether the or-set as a whole matches nothing: the
// base is empty, or every clause (intersected with the base) is empty.
func (o *FieldRangeOrSet) IsEmpty() bool {
	if o.Base.IsEmpty() {
		return true
	}
	if len(o.Clauses) == 0 {
		return false
	}
	for _, c := range o.Clauses {
		if !mergeWithBase(o.Base, c).IsEmpty() {
			return false
		}
	}
	return true
}

func mergeWithBase(base, clause *FieldRangeSet) *FieldRangeSet {
	out := base.Clone()
	for _, f := range clause.Fields() {
		out.IntersectField(f, clause.Range(f))
	}
	return out
}

// PopOrClause pops the front disjunct and, for each remaining disjunct
// that constrains the primary field, subtracts the popped clause's
// primary range from it, dropping any disjunct that becomes empty on
// that field (spec §4.B "OR handling", popOrClause). When secondary is
// non-empty, the popped clause's primary bounds are first made
// exclusive, reflecting that the interior was already scanned by a
// previous pop using the same primary/secondary key pair.
//
// Returns the merged (base ∧ popped) set to scan, and true if a clause
// was popped. If there are no clauses left, it returns (base, false).
func (o *FieldRangeOrSet) PopOrClause(primary string, secondary ...string) (*FieldRangeSet, bool) {
	if len(o.Clauses) == 0 {
		return o.Base, false
	}

	popped := o.Clauses[0]
	o.Clauses = o.Clauses[1:]

	poppedPrimary := popped.Range(primary)
	if len(secondary) > 0 {
		// The interior was already scanned via the secondary key on a
		// previous pop; exclude the boundary points so the next
		// subtraction doesn't re-claim them.
		poppedPrimary = poppedPrimary.makeExclusive()
	}

	kept := o.Clauses[:0]
	for _, clause := range o.Clauses {
		if !hasField(clause, primary) {
			kept = append(kept, clause)
			continue
		}
		remaining := Subtract(clause.Range(primary), poppedPrimary)
		if remaining.IsEmpty() {
			continue // this disjunct can no longer produce anything new
		}
		clause.SetField(primary, remaining)
		kept = append(kept, clause)
	}
	o.Clauses = kept

	return mergeWithBase(o.Base, popped), true
}

func hasField(s *FieldRangeSet, field string) bool {
	_, ok := s.ranges[field]
	return ok
}
