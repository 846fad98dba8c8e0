package versions

import (
	"sort"
	"strings"
)

// Range is a set of versions: a single interval, a union of disjoint
// intervals, or nothing at all.
type Range interface {
	// Includes reports whether v lies inside the range.
	Includes(v Version) bool
	// IsEmpty reports whether no version can satisfy the range.
	IsEmpty() bool
	// IsExact reports whether exactly one version satisfies the range.
	IsExact() bool
	// Min returns the lower bound; ok is false when unbounded below.
	Min() (v Version, ok bool)
	// Max returns the upper bound; ok is false when unbounded above.
	Max() (v Version, ok bool)
	MinInclusive() bool
	MaxInclusive() bool
	String() string

	intervals() []Interval
}

// Interval is a contiguous range of versions. Construct with NewInterval,
// Exact or Any.
type Interval struct {
	min, max       Version
	hasMin, hasMax bool
	minInc, maxInc bool
}

// NewInterval builds an interval. A nil bound is unbounded; inclusive flags
// on an unbounded side are ignored.
func NewInterval(min *Version, minInclusive bool, max *Version, maxInclusive bool) (Interval, error) {
	iv := Interval{}
	if min != nil && !min.IsEmpty() {
		iv.min, iv.hasMin, iv.minInc = *min, true, minInclusive
	}
	if max != nil && !max.IsEmpty() {
		iv.max, iv.hasMax, iv.maxInc = *max, true, maxInclusive
	}
	if iv.hasMin && iv.hasMax {
		switch c := iv.min.compareValue(iv.max); {
		case c > 0:
			return Interval{}, rangeError(iv.String(), "lower bound %s is greater than upper bound %s", iv.min, iv.max)
		case c == 0 && !(iv.minInc && iv.maxInc):
			return Interval{}, rangeError(iv.String(), "identical bounds require an inclusive range")
		}
	}
	return iv, nil
}

// Exact returns the range containing only v.
func Exact(v Version) Interval {
	return Interval{min: v, max: v, hasMin: true, hasMax: true, minInc: true, maxInc: true}
}

// Any returns the unbounded range.
func Any() Interval {
	return Interval{}
}

func (iv Interval) Min() (Version, bool) { return iv.min, iv.hasMin }
func (iv Interval) Max() (Version, bool) { return iv.max, iv.hasMax }
func (iv Interval) MinInclusive() bool   { return iv.minInc }
func (iv Interval) MaxInclusive() bool   { return iv.maxInc }
func (iv Interval) IsEmpty() bool        { return false }

func (iv Interval) IsExact() bool {
	return iv.hasMin && iv.hasMax && iv.minInc && iv.maxInc && iv.min.compareValue(iv.max) == 0
}

func (iv Interval) Includes(v Version) bool {
	if iv.hasMin {
		c := v.compareValue(iv.min)
		if c < 0 || (c == 0 && !iv.minInc) {
			return false
		}
	}
	if iv.hasMax {
		c := v.compareValue(iv.max)
		if c > 0 || (c == 0 && !iv.maxInc) {
			return false
		}
	}
	return true
}

func (iv Interval) String() string {
	if iv.IsExact() {
		return "[" + iv.min.String() + "]"
	}
	var b strings.Builder
	if iv.hasMin && iv.minInc {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if iv.hasMin {
		b.WriteString(iv.min.String())
	}
	b.WriteByte(',')
	if iv.hasMax {
		b.WriteString(iv.max.String())
	}
	if iv.hasMax && iv.maxInc {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}

func (iv Interval) intervals() []Interval { return []Interval{iv} }

// MultipleRange is a union of disjoint intervals, ordered by lower bound.
type MultipleRange struct {
	ranges []Interval
}

// NewMultipleRange builds a union. Intervals must not overlap.
func NewMultipleRange(ranges ...Interval) (*MultipleRange, error) {
	sorted := append([]Interval(nil), ranges...)
	sort.SliceStable(sorted, func(i, j int) bool { return lowerLess(sorted[i], sorted[j]) })
	for i := 1; i < len(sorted); i++ {
		if _, ok := overlap(sorted[i-1], sorted[i]); ok {
			return nil, rangeError(joinIntervals(sorted), "ranges %s and %s overlap", sorted[i-1], sorted[i])
		}
	}
	return &MultipleRange{ranges: sorted}, nil
}

// Intervals returns the member intervals in ascending order.
func (m *MultipleRange) Intervals() []Interval {
	return append([]Interval(nil), m.ranges...)
}

func (m *MultipleRange) Includes(v Version) bool {
	for _, iv := range m.ranges {
		if iv.Includes(v) {
			return true
		}
	}
	return false
}

func (m *MultipleRange) IsEmpty() bool { return len(m.ranges) == 0 }

func (m *MultipleRange) IsExact() bool {
	return len(m.ranges) == 1 && m.ranges[0].IsExact()
}

func (m *MultipleRange) Min() (Version, bool) {
	if len(m.ranges) == 0 {
		return Empty, false
	}
	return m.ranges[0].Min()
}

func (m *MultipleRange) Max() (Version, bool) {
	if len(m.ranges) == 0 {
		return Empty, false
	}
	return m.ranges[len(m.ranges)-1].Max()
}

func (m *MultipleRange) MinInclusive() bool {
	return len(m.ranges) > 0 && m.ranges[0].MinInclusive()
}

func (m *MultipleRange) MaxInclusive() bool {
	return len(m.ranges) > 0 && m.ranges[len(m.ranges)-1].MaxInclusive()
}

func (m *MultipleRange) String() string { return joinIntervals(m.ranges) }

func (m *MultipleRange) intervals() []Interval { return m.ranges }

// Intersect is Intersection that treats an empty result as a conflict.
func (m *MultipleRange) Intersect(other Range) (Range, error) {
	r := Intersection(m, other)
	if r.IsEmpty() {
		return nil, &VersionError{Reason: "ranges " + m.String() + " and " + other.String() + " have no version in common"}
	}
	return r, nil
}

type emptyRange struct{}

// EmptyRange returns the range no version satisfies.
func EmptyRange() Range { return emptyRange{} }

func (emptyRange) Includes(Version) bool { return false }
func (emptyRange) IsEmpty() bool         { return true }
func (emptyRange) IsExact() bool         { return false }
func (emptyRange) Min() (Version, bool)  { return Empty, false }
func (emptyRange) Max() (Version, bool)  { return Empty, false }
func (emptyRange) MinInclusive() bool    { return false }
func (emptyRange) MaxInclusive() bool    { return false }
func (emptyRange) String() string        { return "[]" }
func (emptyRange) intervals() []Interval { return nil }

// Intersection returns the versions included by every range. With no
// arguments it returns Any. An empty result is returned as EmptyRange, not
// as an error.
func Intersection(ranges ...Range) Range {
	if len(ranges) == 0 {
		return Any()
	}
	acc := ranges[0].intervals()
	for _, r := range ranges[1:] {
		acc = intersectIntervals(acc, r.intervals())
		if len(acc) == 0 {
			break
		}
	}
	return fromIntervals(acc)
}

func fromIntervals(ivs []Interval) Range {
	switch len(ivs) {
	case 0:
		return EmptyRange()
	case 1:
		return ivs[0]
	}
	return &MultipleRange{ranges: ivs}
}

// intersectIntervals sweeps two ascending interval lists, advancing the one
// whose current interval ends first.
func intersectIntervals(a, b []Interval) []Interval {
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if iv, ok := overlap(a[i], b[j]); ok {
			out = append(out, iv)
		}
		if upperLessOrEqual(a[i], b[j]) {
			i++
		} else {
			j++
		}
	}
	return out
}

// overlap returns the common part of x and y. A single shared point is kept
// only when both sides include it.
func overlap(x, y Interval) (Interval, bool) {
	var iv Interval

	switch {
	case !x.hasMin:
		iv.min, iv.hasMin, iv.minInc = y.min, y.hasMin, y.minInc
	case !y.hasMin:
		iv.min, iv.hasMin, iv.minInc = x.min, x.hasMin, x.minInc
	default:
		switch c := x.min.compareValue(y.min); {
		case c > 0:
			iv.min, iv.minInc = x.min, x.minInc
		case c < 0:
			iv.min, iv.minInc = y.min, y.minInc
		default:
			iv.min, iv.minInc = x.min, x.minInc && y.minInc
		}
		iv.hasMin = true
	}

	switch {
	case !x.hasMax:
		iv.max, iv.hasMax, iv.maxInc = y.max, y.hasMax, y.maxInc
	case !y.hasMax:
		iv.max, iv.hasMax, iv.maxInc = x.max, x.hasMax, x.maxInc
	default:
		switch c := x.max.compareValue(y.max); {
		case c < 0:
			iv.max, iv.maxInc = x.max, x.maxInc
		case c > 0:
			iv.max, iv.maxInc = y.max, y.maxInc
		default:
			iv.max, iv.maxInc = x.max, x.maxInc && y.maxInc
		}
		iv.hasMax = true
	}

	if iv.hasMin && iv.hasMax {
		c := iv.min.compareValue(iv.max)
		if c > 0 || (c == 0 && !(iv.minInc && iv.maxInc)) {
			return Interval{}, false
		}
	}
	return iv, true
}

// lowerLess orders intervals by lower bound; unbounded first, inclusive
// before exclusive at the same point.
func lowerLess(x, y Interval) bool {
	switch {
	case !x.hasMin:
		return y.hasMin
	case !y.hasMin:
		return false
	}
	if c := x.min.compareValue(y.min); c != 0 {
		return c < 0
	}
	return x.minInc && !y.minInc
}

// upperLessOrEqual reports whether x ends no later than y.
func upperLessOrEqual(x, y Interval) bool {
	switch {
	case !x.hasMax:
		return !y.hasMax
	case !y.hasMax:
		return true
	}
	if c := x.max.compareValue(y.max); c != 0 {
		return c < 0
	}
	return !x.maxInc || y.maxInc
}

func joinIntervals(ivs []Interval) string {
	parts := make([]string, len(ivs))
	for i, iv := range ivs {
		parts[i] = iv.String()
	}
	return strings.Join(parts, ",")
}

// MaxIncluded returns the highest candidate included by r.
func MaxIncluded(r Range, candidates []Version) (Version, bool) {
	var best Version
	found := false
	for _, c := range candidates {
		if !r.Includes(c) {
			continue
		}
		if !found || c.Compare(best) > 0 {
			best, found = c, true
		}
	}
	return best, found
}
