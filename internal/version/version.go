// Package version compares release strings such as "4.6.5", "2019.3" or
// "2021-beta1" the way GNU/dpkg version sorting does: digit runs compare
// numerically, everything else compares character by character.
package version

import (
	"strings"
)

// Compare returns -1, 0 or +1 depending on whether a sorts before, equal
// to or after b.
func Compare(a, b string) int {
	for a != "" || b != "" {
		var i int
		for (i < len(a) && !isDigit(a[i])) || (i < len(b) && !isDigit(b[i])) {
			if d := order(at(a, i)) - order(at(b, i)); d != 0 {
				return sign(d)
			}
			i++
		}
		a, b = a[min(i, len(a)):], b[min(i, len(b)):]

		var na, nb string
		na, a = leadingDigits(a)
		nb, b = leadingDigits(b)
		na = strings.TrimLeft(na, "0")
		nb = strings.TrimLeft(nb, "0")
		if len(na) != len(nb) {
			return sign(len(na) - len(nb))
		}
		if c := strings.Compare(na, nb); c != 0 {
			return c
		}
	}
	return 0
}

// AtLeast reports whether v >= min.
func AtLeast(v, min string) bool {
	return Compare(v, min) >= 0
}

// Less reports whether v < max.
func Less(v, max string) bool {
	return Compare(v, max) < 0
}

// Range is the half-open interval [Since, Before). An empty bound is open.
type Range struct {
	Since  string
	Before string
}

// Contains reports whether v lies in r.
func (r Range) Contains(v string) bool {
	if r.Since != "" && !AtLeast(v, r.Since) {
		return false
	}
	if r.Before != "" && !Less(v, r.Before) {
		return false
	}
	return true
}

func (r Range) String() string {
	switch {
	case r.Since == "" && r.Before == "":
		return "any"
	case r.Before == "":
		return ">= " + r.Since
	case r.Since == "":
		return "< " + r.Before
	}
	return ">= " + r.Since + ", < " + r.Before
}

func leadingDigits(s string) (digits, rest string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func at(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// order ranks a byte: '~' sorts before the end of the string, letters
// before other punctuation.
func order(c byte) int {
	switch {
	case c == 0, isDigit(c):
		return 0
	case isAlpha(c):
		return int(c)
	case c == '~':
		return -1
	}
	return int(c) + 256
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
