package versions

import "strings"

// ParseRange parses a range expression:
//
//	[1.0,2.0)       1.0 <= v < 2.0
//	(,1.0]          v <= 1.0
//	[1.0]           exactly 1.0
//	1.0             exactly 1.0
//	[1.0,2.0),[3.0,) union of disjoint intervals
//
// The empty string is the unbounded range.
func ParseRange(spec string) (Range, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return Any(), nil
	}
	if s[0] != '[' && s[0] != '(' {
		if strings.ContainsAny(s, "[](),") {
			return nil, rangeError(spec, "unbalanced brackets")
		}
		return Exact(Parse(s)), nil
	}

	var ivs []Interval
	for s != "" {
		if s[0] != '[' && s[0] != '(' {
			return nil, rangeError(spec, "expected '[' or '(' at %q", s)
		}
		end := strings.IndexAny(s, "])")
		if end < 0 {
			return nil, rangeError(spec, "unbalanced brackets")
		}
		token := s[:end+1]
		if strings.ContainsAny(token[1:end], "[(") {
			return nil, rangeError(spec, "unbalanced brackets")
		}
		iv, err := parseInterval(spec, token)
		if err != nil {
			return nil, err
		}
		ivs = append(ivs, iv)

		s = strings.TrimSpace(s[end+1:])
		if s == "" {
			break
		}
		if s[0] != ',' {
			return nil, rangeError(spec, "expected ',' between ranges")
		}
		s = strings.TrimSpace(s[1:])
		if s == "" {
			return nil, rangeError(spec, "trailing ','")
		}
	}

	if len(ivs) == 1 {
		return ivs[0], nil
	}
	m, err := NewMultipleRange(ivs...)
	if err != nil {
		return nil, &VersionError{Input: spec, Reason: err.(*VersionError).Reason}
	}
	return m, nil
}

func parseInterval(spec, token string) (Interval, error) {
	minInc := token[0] == '['
	maxInc := token[len(token)-1] == ']'
	inner := strings.TrimSpace(token[1 : len(token)-1])

	lo, hi, isPair := strings.Cut(inner, ",")
	if !isPair {
		if !minInc || !maxInc {
			return Interval{}, rangeError(spec, "single version %q must be enclosed in []", inner)
		}
		v := Parse(inner)
		if v.IsEmpty() {
			return Interval{}, rangeError(spec, "empty version")
		}
		return Exact(v), nil
	}
	if strings.Contains(hi, ",") {
		return Interval{}, rangeError(spec, "interval %s has more than two bounds", token)
	}

	var minV, maxV *Version
	if lo = strings.TrimSpace(lo); lo != "" {
		v := Parse(lo)
		minV = &v
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		v := Parse(hi)
		maxV = &v
	}
	iv, err := NewInterval(minV, minInc, maxV, maxInc)
	if err != nil {
		return Interval{}, &VersionError{Input: spec, Reason: err.(*VersionError).Reason}
	}
	return iv, nil
}
