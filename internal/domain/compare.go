package domain

import (
	"strconv"
	"strings"
)

// IsNewer reports whether version a is strictly newer than version b.
// Versions are compared as dot-separated integer segments, right-padded
// with zeros to equal length ("1.2" == "1.2.0"). If any segment of either
// version fails to parse as an integer, the comparison falls back to a
// plain lexical string comparison.
func IsNewer(a, b string) bool {
	as, aok := versionSegments(a)
	bs, bok := versionSegments(b)
	if !aok || !bok {
		return a > b
	}

	for len(as) < len(bs) {
		as = append(as, 0)
	}
	for len(bs) < len(as) {
		bs = append(bs, 0)
	}

	for i := range as {
		if as[i] != bs[i] {
			return as[i] > bs[i]
		}
	}
	return false
}

func versionSegments(v string) ([]int, bool) {
	parts := strings.Split(v, ".")
	segs := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}
		segs = append(segs, n)
	}
	return segs, true
}
