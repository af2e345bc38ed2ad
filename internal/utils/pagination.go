// Package utils provides small, generic helpers for parsing query-string
// values. They never fail: malformed input falls back to the caller's default,
// and range checks are left to the service layer.
package utils

import "strconv"

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
//
// Example:
//
//	skip := utils.AtoiDefault(c.Query("skip"), 0)
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// BoolDefault parses the forms accepted by strconv.ParseBool ("1", "true",
// "F", ...) and returns def for anything else.
func BoolDefault(s string, def bool) bool {
	if s == "" {
		return def
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return def
}
