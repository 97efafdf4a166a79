// Package strings holds the small text helpers shared by query matching and
// configuration parsing.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims and lowercases each element, then drops empties and
// duplicates. Order is preserved.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  FOO ", "bar", "Foo"})
//	// Returns: []string{"foo", "bar"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// SplitList splits a separated configuration value such as "remote, guides"
// into distinct lower-case items.
func SplitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return DedupeAndTrimLower(strings.Split(s, sep))
}

// Words returns the distinct lower-case words of s.
func Words(s string) []string {
	return DedupeAndTrimLower(strings.Fields(s))
}
