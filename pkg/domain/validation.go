package domain

import (
	"fmt"
	"sort"
	"strings"
)

// FieldErrors maps a form field to the message shown next to it. Validators
// fill in every failing field, not just the first.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e[k]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}
