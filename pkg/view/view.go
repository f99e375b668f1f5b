// Package view holds the projection of a master record that one rendering profile exposes,
// together with the formatting directives the binder applies later.
package view

import (
	"sort"
	"strings"
)

// Origin records where a projected field came from.
type Origin string

const (
	// OriginRecord marks values copied from the master record.
	OriginRecord Origin = "record"
	// OriginDefault marks values supplied by a profile default.
	OriginDefault Origin = "default"
	// OriginGenerated marks values the profile asked to be generated at render time.
	OriginGenerated Origin = "generated"
)

// View is the filtered, read-only projection bound into a template.
// Root holds maps, lists, scalars and Formatted leaves.
type View struct {
	Profile string
	Root    map[string]any
	Origins map[string]Origin
}

// Formatted is a value carrying a directive that the binder resolves for its target format.
type Formatted struct {
	Value     any
	Directive Directive
}

// Lookup walks a dotted path through maps. Lists are not traversed.
func (v View) Lookup(path string) (value any, found bool) {
	var node any = v.Root
	for _, segment := range strings.Split(path, ".") {
		if formatted, ok := node.(Formatted); ok {
			node = formatted.Value
		}

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

// Paths lists every leaf path in the view, sorted. List elements share their list's path.
func (v View) Paths() (paths []string) {
	seen := make(map[string]bool)
	collectPaths(v.Root, "", seen)

	paths = make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

func collectPaths(node any, prefix string, seen map[string]bool) {
	switch typed := node.(type) {
	case map[string]any:
		if len(typed) == 0 && prefix != "" {
			seen[prefix] = true
		}
		for key, child := range typed {
			collectPaths(child, joinPath(prefix, key), seen)
		}
	case []any:
		if len(typed) == 0 {
			seen[prefix] = true
		}
		for _, element := range typed {
			collectPaths(element, prefix, seen)
		}
	case Formatted:
		seen[prefix] = true
	default:
		if prefix != "" {
			seen[prefix] = true
		}
	}
}

func joinPath(prefix, key string) (path string) {
	if prefix == "" {
		path = key
		return path
	}
	path = prefix + "." + key
	return path
}
