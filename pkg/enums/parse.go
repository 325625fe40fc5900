// Package enums holds the closed string sets stored in text columns and
// carried on the wire. Each type exposes IsValid and a Parse constructor.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

// parse accepts value when it matches a member of valid after trimming
// surrounding whitespace. Matching is case-sensitive.
func parse[T ~string](kind string, valid []T, value string) (T, error) {
	candidate := T(strings.TrimSpace(value))
	if slices.Contains(valid, candidate) {
		return candidate, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, value)
}
