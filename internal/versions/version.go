// Package versions implements addon version values and version-range
// arithmetic.
//
// A version string has the form major.minor.incremental[.qualifier][-build],
// for example "2.0.1.Final" or "1.3.0-SNAPSHOT". Parsing never fails: a string
// without a numeric prefix becomes the zero version while keeping its text.
package versions

import (
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Version is an immutable, totally ordered version value.
// The zero value is the empty version, meaning "unspecified".
type Version struct {
	raw       string
	core      *goversion.Version
	qualifier string
	build     int
}

// Empty is the unspecified version. It sorts before every other version.
var Empty = Version{}

var zeroCore = goversion.Must(goversion.NewVersion("0"))

// Parse converts s into a Version.
func Parse(s string) Version {
	s = strings.TrimSpace(s)
	if s == "" {
		return Empty
	}

	main, rest, hasRest := strings.Cut(s, "-")
	tokens := strings.Split(main, ".")
	numeric := 0
	for numeric < len(tokens) && isDigits(tokens[numeric]) {
		numeric++
	}
	if numeric == 0 {
		return malformed(s)
	}

	core, err := goversion.NewVersion(strings.Join(tokens[:numeric], "."))
	if err != nil {
		return malformed(s)
	}

	v := Version{raw: s, core: core, qualifier: strings.Join(tokens[numeric:], ".")}
	if hasRest {
		switch {
		case isDigits(rest):
			v.build, _ = strconv.Atoi(rest)
		case v.qualifier == "":
			v.qualifier = rest
			if q, b, ok := cutBuild(rest); ok {
				v.qualifier, v.build = q, b
			}
		default:
			v.qualifier += "-" + rest
		}
	}
	return v
}

func malformed(s string) Version {
	return Version{raw: s, core: zeroCore}
}

func cutBuild(s string) (string, int, bool) {
	i := strings.LastIndexByte(s, '-')
	if i <= 0 || !isDigits(s[i+1:]) {
		return "", 0, false
	}
	n, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, false
	}
	return s[:i], n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsEmpty reports whether v is the unspecified version.
func (v Version) IsEmpty() bool {
	return v.raw == ""
}

// String returns the text v was parsed from.
func (v Version) String() string {
	return v.raw
}

func (v Version) segment(i int) int {
	if v.core == nil {
		return 0
	}
	segs := v.core.Segments()
	if i >= len(segs) {
		return 0
	}
	return segs[i]
}

// Major returns the first numeric segment.
func (v Version) Major() int { return v.segment(0) }

// Minor returns the second numeric segment.
func (v Version) Minor() int { return v.segment(1) }

// Incremental returns the third numeric segment.
func (v Version) Incremental() int { return v.segment(2) }

// Qualifier returns the textual qualifier, such as "Final" or "SNAPSHOT".
func (v Version) Qualifier() string { return v.qualifier }

// Build returns the trailing build number, or 0.
func (v Version) Build() int { return v.build }

// Equal reports whether v and o were parsed from the same text.
func (v Version) Equal(o Version) bool {
	return v.raw == o.raw
}

// Compare returns -1, 0 or 1. It orders by numeric segments, qualifier and
// build number, and finally by text, so Compare is zero exactly when Equal
// is true.
func (v Version) Compare(o Version) int {
	if c := v.compareValue(o); c != 0 {
		return c
	}
	return strings.Compare(v.raw, o.raw)
}

// compareValue orders versions by meaning only: "1.0" and "1.0.0" are the
// same value. Range bounds are checked with it.
func (v Version) compareValue(o Version) int {
	switch {
	case v.IsEmpty() && o.IsEmpty():
		return 0
	case v.IsEmpty():
		return -1
	case o.IsEmpty():
		return 1
	}
	if c := v.core.Compare(o.core); c != 0 {
		return c
	}
	if c := compareQualifiers(v.qualifier, o.qualifier); c != 0 {
		return c
	}
	switch {
	case v.build < o.build:
		return -1
	case v.build > o.build:
		return 1
	}
	return 0
}

// compareCore compares only the numeric segments.
func (v Version) compareCore(o Version) int {
	a, b := v.core, o.core
	if a == nil {
		a = zeroCore
	}
	if b == nil {
		b = zeroCore
	}
	return a.Compare(b)
}

// Well-known qualifiers in ascending order. A release (no qualifier) sorts
// after its pre-releases and before service packs.
var qualifierRanks = map[string]int{
	"alpha":     1,
	"a":         1,
	"beta":      2,
	"b":         2,
	"milestone": 3,
	"m":         3,
	"rc":        4,
	"cr":        4,
	"snapshot":  5,
	"":          6,
	"ga":        6,
	"final":     6,
	"release":   6,
	"sp":        7,
}

const unknownQualifierRank = 8

func qualifierKey(q string) (rank, number int, text string) {
	text = strings.ToLower(q)
	word := strings.TrimRightFunc(text, func(r rune) bool { return r >= '0' && r <= '9' })
	word = strings.TrimRight(word, ".-_")
	if digits := strings.TrimLeft(text[len(word):], ".-_"); digits != "" {
		number, _ = strconv.Atoi(digits)
	}
	rank, ok := qualifierRanks[word]
	if !ok {
		rank = unknownQualifierRank
	}
	return rank, number, text
}

func compareQualifiers(a, b string) int {
	ra, na, ta := qualifierKey(a)
	rb, nb, tb := qualifierKey(b)
	switch {
	case ra != rb:
		return cmpInt(ra, rb)
	case na != nb:
		return cmpInt(na, nb)
	case ra != unknownQualifierRank:
		// "Final", "GA" and no qualifier denote the same release
		return 0
	}
	return strings.Compare(ta, tb)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
