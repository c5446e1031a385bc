// Package normalize implements the field-level normalization and
// equality rules shared by every entity reconciler (C1). Every string
// field comparison made anywhere in this module goes through
// StringsEqual; it is the only string equality this codebase uses for
// change detection.
package normalize

import "strings"

// ParseGrade converts an upstream grade string into its canonical
// integer form. Integer literals map to themselves; "K"/"Kindergarten"
// maps to 0; "PK"/"Pre-K"/"PreK"/"TK" maps to -1; blank input maps to
// nil; anything else that doesn't parse maps to nil. Comparison is
// case- and whitespace-insensitive.
func ParseGrade(s string) *int {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return nil
	}

	switch trimmed {
	case "k", "kindergarten":
		return intPtr(0)
	case "pk", "pre-k", "prek", "tk":
		return intPtr(-1)
	}

	n, err := parseStrictInt(trimmed)
	if err != nil {
		return nil
	}
	return intPtr(n)
}

func intPtr(n int) *int { return &n }

// parseStrictInt parses a (possibly signed) integer literal, rejecting
// anything with extra characters (e.g. "12th").
func parseStrictInt(s string) (int, error) {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, errNotANumber
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotANumber
		}
		n = n*10 + int(r-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

var errNotANumber = notANumberError{}

type notANumberError struct{}

func (notANumberError) Error() string { return "normalize: not a number" }

// IsBlank reports whether s is empty or composed entirely of whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// StringsEqual reports whether a and b should be treated as the same
// value for change-detection purposes: true if both are blank (covers
// null vs. empty-string vs. whitespace-only, since upstream APIs
// alternately emit any of those three for "no value"), or if their
// trimmed forms are equal case-insensitively.
func StringsEqual(a, b string) bool {
	aBlank, bBlank := IsBlank(a), IsBlank(b)
	if aBlank && bBlank {
		return true
	}
	if aBlank != bBlank {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
