// Package version implements alphanumeric version comparison.
//
// Versions are split on maximal digit runs into alternating string and
// numeric tokens. Comparing token sequences element-wise orders digit runs
// numerically, so "1.0.10" sorts after "1.0.2" where a plain string
// comparison would not. The scheme handles semantic versions, timestamp
// versions, and anything in between.
package version

import (
	"regexp"
	"sort"
	"strings"
)

var digitRun = regexp.MustCompile(`[0-9]+`)

// Token is one element of an alphanumeric key: either a digit run
// (compared numerically) or a string segment (compared lexically,
// lowercased).
type Token struct {
	text    string
	numeric bool
}

// String returns the token text. Digit runs keep their original form.
func (t Token) String() string { return t.text }

// Numeric reports whether the token is a digit run.
func (t Token) Numeric() bool { return t.numeric }

// Key splits a version string into its alphanumeric key.
// The sequence always starts with a (possibly empty) string segment and
// alternates string / number from there, so two keys never present a
// number against a string at the same position. An empty input yields an
// empty key.
func Key(s string) []Token {
	if s == "" {
		return nil
	}
	var key []Token
	last := 0
	for _, loc := range digitRun.FindAllStringIndex(s, -1) {
		key = append(key, Token{text: strings.ToLower(s[last:loc[0]])})
		key = append(key, Token{text: s[loc[0]:loc[1]], numeric: true})
		last = loc[1]
	}
	key = append(key, Token{text: strings.ToLower(s[last:])})
	return key
}

// Compare orders two keys element-wise. Digit runs compare numerically,
// string segments lexically. When one key is a prefix of the other, the
// shorter key orders first. Returns -1, 0, or +1.
func Compare(a, b []Token) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var c int
		switch {
		case a[i].numeric && b[i].numeric:
			c = compareDigits(a[i].text, b[i].text)
		case a[i].numeric != b[i].numeric:
			// Unreachable for keys produced by Key, but defined:
			// numbers order before strings.
			if a[i].numeric {
				return -1
			}
			return 1
		default:
			c = strings.Compare(a[i].text, b[i].text)
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Less reports whether version a orders before version b.
func Less(a, b string) bool {
	return Compare(Key(a), Key(b)) < 0
}

// SortedAlphanumeric returns a copy of names sorted by alphanumeric key.
func SortedAlphanumeric(names []string) []string {
	out := make([]string, len(names))
	copy(out, names)
	keys := make(map[string][]Token, len(out))
	for _, n := range out {
		keys[n] = Key(n)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(keys[out[i]], keys[out[j]]) < 0
	})
	return out
}

// Max returns the highest version in versions by alphanumeric key.
// Empty strings are ignored; if nothing remains, returns "".
func Max(versions []string) string {
	best := ""
	var bestKey []Token
	for _, v := range versions {
		if v == "" {
			continue
		}
		k := Key(v)
		if best == "" || Compare(k, bestKey) > 0 {
			best, bestKey = v, k
		}
	}
	return best
}

// compareDigits compares two digit runs numerically without converting,
// so arbitrarily long runs (timestamps and beyond) never overflow.
func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
