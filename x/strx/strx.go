// Package strx holds small string helpers.
package strx

import "strings"

// Coalesce returns the first non-empty string, or "" if all are empty.
func Coalesce(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}

// TrimNUL drops the trailing NUL terminators device tree strings carry.
func TrimNUL(s string) string { return strings.TrimRight(s, "\x00") }
