package record

import (
	"strings"
)

// Record represents the master CV: the single source of truth for every rendered variant.
type Record struct {
	Source string
	Data   map[string]any
}

// SplitPath breaks a dotted field path into its segments.
func SplitPath(path string) (segments []string) {
	trimmed := strings.Trim(strings.TrimSpace(path), ".")
	if trimmed == "" {
		return segments
	}

	segments = strings.Split(trimmed, ".")
	return segments
}

// Lookup returns the value stored under a dotted path. Lists are not traversed.
func (r Record) Lookup(path string) (value any, found bool) {
	var node any = r.Data
	for _, segment := range SplitPath(path) {
		object, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}

		node, ok = object[segment]
		if !ok {
			return nil, false
		}
	}

	value = node
	found = true
	return value, found
}

// Has reports whether any value exists under path, descending into every list element on the way.
func (r Record) Has(path string) (found bool) {
	found = present(r.Data, SplitPath(path))
	return found
}

func present(node any, segments []string) (found bool) {
	if len(segments) == 0 {
		found = true
		return found
	}

	switch typed := node.(type) {
	case map[string]any:
		child, ok := typed[segments[0]]
		if !ok {
			return found
		}
		found = present(child, segments[1:])
	case []any:
		for _, element := range typed {
			if present(element, segments) {
				found = true
				return found
			}
		}
	}

	return found
}
