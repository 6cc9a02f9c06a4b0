package queryrange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionIdempotent(t *testing.T) {
	a := FieldRange{Intervals: []Interval{
		{Lower: Num(1), Upper: Num(5), LowerInclusive: true, UpperInclusive: true},
	}}
	got := Union(a, a)
	assert.Equal(t, a.Intervals, got.Intervals)
}

func TestIntersectIdempotent(t *testing.T) {
	a := FieldRange{Intervals: []Interval{
		{Lower: Num(1), Upper: Num(5), LowerInclusive: true, UpperInclusive: true},
	}}
	got := Intersect(a, a)
	assert.Equal(t, a.Intervals, got.Intervals)
}

func TestIntersectAssociative(t *testing.T) {
	a := FieldRange{Intervals: []Interval{{Lower: Num(0), Upper: Num(10), LowerInclusive: true, UpperInclusive: true}}}
	b := FieldRange{Intervals: []Interval{{Lower: Num(2), Upper: Num(8), LowerInclusive: true, UpperInclusive: true}}}
	c := FieldRange{Intervals: []Interval{{Lower: Num(4), Upper: Num(6), LowerInclusive: true, UpperInclusive: true}}}

	left := Intersect(Intersect(a, b), c)
	right := Intersect(a, Intersect(b, c))
	assert.Equal(t, left.Intervals, right.Intervals)
}

func TestUnionCoalescesTouchingIntervals(t *testing.T) {
	a := FieldRange{Intervals: []Interval{{Lower: Num(1), Upper: Num(5), LowerInclusive: true, UpperInclusive: true}}}
	b := FieldRange{Intervals: []Interval{{Lower: Num(5), Upper: Num(10), LowerInclusive: false, UpperInclusive: true}}}
	got := Union(a, b)
	assert.Len(t, got.Intervals, 1)
	assert.True(t, got.Intervals[0].Lower.Equal(Num(1)))
	assert.True(t, got.Intervals[0].Upper.Equal(Num(10)))
}

func TestSubtractDoesNotRemoveFullyContainedInterval(t *testing.T) {
	// Spec §9: [1,3] - [2,2] = [1,3] unchanged — subtraction only
	// contracts overlapping edges, it never splits an interval.
	a := FieldRange{Intervals: []Interval{{Lower: Num(1), Upper: Num(3), LowerInclusive: true, UpperInclusive: true}}}
	b := FieldRange{Intervals: []Interval{{Lower: Num(2), Upper: Num(2), LowerInclusive: true, UpperInclusive: true}}}
	got := Subtract(a, b)
	assert.Equal(t, a.Intervals, got.Intervals)
}

func TestSubtractContractsOverlappingEdge(t *testing.T) {
	a := FieldRange{Intervals: []Interval{{Lower: Num(1), Upper: Num(10), LowerInclusive: true, UpperInclusive: true}}}
	b := FieldRange{Intervals: []Interval{{Lower: Num(5), Upper: Num(15), LowerInclusive: true, UpperInclusive: true}}}
	got := Subtract(a, b)
	assert.Len(t, got.Intervals, 1)
	assert.True(t, got.Intervals[0].Lower.Equal(Num(1)))
	assert.True(t, got.Intervals[0].Upper.Equal(Num(5)))
	assert.False(t, got.Intervals[0].UpperInclusive)
}

func TestEmptyAndFullRange(t *testing.T) {
	assert.True(t, EmptyRange().IsEmpty())
	assert.True(t, FullRange().IsFull())
	assert.False(t, FullRange().IsEmpty())
}
