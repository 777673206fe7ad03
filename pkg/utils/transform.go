package utils

import (
	"strings"
)

// Dedup removes duplicated entries keeping the first occurrence. Trailing slashes are trimmed so
// endpoint lists like "http://a/" and "http://a" collapse into one.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimRight(strings.TrimSpace(e), "/")
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out
}

// SplitCSV splits a comma separated list and drops empty items.
func SplitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
