// Package util holds small helpers for host string arguments.
package util

import "strings"

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}

// FixEscapeQuotes replaces escaped double quotes ("") with single double quotes (").
func FixEscapeQuotes(s string) string {
	return strings.ReplaceAll(s, `""`, `"`)
}

// CleanArgs applies TrimQuotes and FixEscapeQuotes to every arg in place and
// returns the slice.
func CleanArgs(args []string) []string {
	for i, v := range args {
		args[i] = FixEscapeQuotes(TrimQuotes(v))
	}
	return args
}

// IsNullArg reports whether a host argument stands for "no value".
func IsNullArg(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nil", "null", "<null>", "objnull":
		return true
	}
	return false
}
