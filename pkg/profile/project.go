package profile

import (
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Serendipathy/cv-generation-system/pkg/record"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

const defaultTimestampLayout = "2006-01-02"

// hole keeps list elements aligned by index while several rules are merged.
type hole struct{}

// Project applies a profile to a record and returns the filtered view.
func Project(rec record.Record, schema *record.Schema, p Profile) (v view.View, err error) {
	v, err = ProjectAt(rec, schema, p, time.Now())
	return v, err
}

// ProjectAt is Project with an explicit clock for profiles that inject a generation timestamp.
// The record is never modified; the view shares no containers with it.
func ProjectAt(rec record.Record, schema *record.Schema, p Profile, now time.Time) (v view.View, err error) {
	var rules []rule
	rules, err = p.compile()
	if err != nil {
		return v, err
	}

	err = checkSchemaVersion(schema, p)
	if err != nil {
		return v, err
	}

	for _, r := range rules {
		known := rec.Has(r.Path)
		if schema != nil && !known {
			known = schema.HasPath(r.Path)
		}
		if !known {
			err = &InvalidProfileFieldError{Profile: p.ID, Path: r.Path, Reason: "not declared by the record schema"}
			return v, err
		}
	}

	var working any = rec.Data
	for _, r := range rules {
		if r.where == nil && r.Limit == 0 {
			continue
		}
		var applied bool
		working, applied, err = filterAt(working, r.segments, func(list []any) (any, error) {
			return filterList(p.ID, r, list, rec.Data)
		})
		if err != nil {
			return v, err
		}
		if value, found := rec.Lookup(r.Path); !applied && found && value != nil {
			err = &InvalidProfileFieldError{Profile: p.ID, Path: r.Path, Reason: fmt.Sprintf("where/limit need a list on the path, found %T", value)}
			return v, err
		}
	}

	v = view.View{
		Profile: p.ID,
		Root:    make(map[string]any),
		Origins: make(map[string]view.Origin),
	}

	var root any = v.Root
	for _, r := range rules {
		if r.Exclude {
			continue
		}

		if r.when != nil {
			var ok bool
			ok, err = runCondition(r.when, rec.Data)
			if err != nil {
				err = &InvalidProfileFieldError{Profile: p.ID, Path: r.Path, Reason: "when: " + err.Error()}
				return v, err
			}
			if !ok {
				continue
			}
		}

		value, found, defaulted := extract(working, r.segments, r)
		if !found {
			continue
		}

		root = merge(root, value)
		origin := view.OriginRecord
		if defaulted {
			origin = view.OriginDefault
		}
		v.Origins[r.Path] = origin
	}

	for _, r := range rules {
		if r.Exclude || r.Format == nil {
			continue
		}
		wrap(root, r.segments, *r.Format)
	}

	for _, r := range rules {
		if !r.Exclude {
			continue
		}
		remove(root, r.segments)
		delete(v.Origins, r.Path)
	}

	compact(root)

	if p.Timestamp != nil {
		layout := p.Timestamp.Layout
		if layout == "" {
			layout = defaultTimestampLayout
		}
		err = setPath(v.Root, record.SplitPath(p.Timestamp.Path), now.Format(layout))
		if err != nil {
			err = &InvalidProfileFieldError{Profile: p.ID, Path: p.Timestamp.Path, Reason: err.Error()}
			return v, err
		}
		v.Origins[p.Timestamp.Path] = view.OriginGenerated
	}

	return v, err
}

func checkSchemaVersion(schema *record.Schema, p Profile) (err error) {
	if p.SchemaVersion == "" {
		return err
	}

	constraint, err := semver.NewConstraint(p.SchemaVersion)
	if err != nil {
		err = &InvalidProfileFieldError{Profile: p.ID, Path: "schemaVersion", Reason: err.Error()}
		return err
	}

	version := ""
	if schema != nil {
		version = schema.Version()
	}

	incompatible := &IncompatibleSchemaError{Profile: p.ID, Constraint: p.SchemaVersion, Version: version}
	if version == "" {
		err = incompatible
		return err
	}

	parsed, parseErr := semver.NewVersion(version)
	if parseErr != nil || !constraint.Check(parsed) {
		err = incompatible
		return err
	}

	return err
}

// filterList applies where and limit to a list.
func filterList(profileID string, r rule, list []any, root map[string]any) (filtered any, err error) {
	kept := make([]any, 0, len(list))
	for _, element := range list {
		if r.where != nil {
			var keep bool
			keep, err = runCondition(r.where, elementEnv(element, root))
			if err != nil {
				err = &InvalidProfileFieldError{Profile: profileID, Path: r.Path, Reason: "where: " + err.Error()}
				return filtered, err
			}
			if !keep {
				continue
			}
		}

		kept = append(kept, element)
		if r.Limit > 0 && len(kept) == r.Limit {
			break
		}
	}

	filtered = kept
	return filtered, err
}

// elementEnv exposes a list element's fields, the element itself as "it", and the whole record as "record".
func elementEnv(element any, root map[string]any) (env map[string]any) {
	env = make(map[string]any)
	if object, ok := element.(map[string]any); ok {
		for key, value := range object {
			env[key] = value
		}
	}
	env["it"] = element
	env["record"] = root
	return env
}

// filterAt returns a copy of node with fn applied to the list a rule targets: the value at the path
// when it is a list, otherwise the innermost list along the path. Containers on the path are copied,
// others are shared. applied is false when the path crosses no list.
func filterAt(node any, segments []string, fn func([]any) (any, error)) (out any, applied bool, err error) {
	switch typed := node.(type) {
	case map[string]any:
		if len(segments) == 0 {
			return node, false, err
		}
		child, ok := typed[segments[0]]
		if !ok {
			return node, false, err
		}

		var updated any
		updated, applied, err = filterAt(child, segments[1:], fn)
		if err != nil || !applied {
			return node, applied, err
		}

		copied := make(map[string]any, len(typed))
		for key, value := range typed {
			copied[key] = value
		}
		copied[segments[0]] = updated
		out = copied
		return out, applied, err
	case []any:
		if len(segments) > 0 {
			copied := make([]any, len(typed))
			nested := false
			for i, element := range typed {
				var elementApplied bool
				copied[i], elementApplied, err = filterAt(element, segments, fn)
				if err != nil {
					return node, false, err
				}
				nested = nested || elementApplied
			}
			if nested {
				return copied, true, err
			}
		}

		out, err = fn(typed)
		return out, true, err
	}

	return node, false, err
}

// extract copies the value at the path into a fresh subtree rooted like node.
// Lists are projected per element; elements lacking the path become holes.
func extract(node any, segments []string, r rule) (out any, found bool, defaulted bool) {
	if len(segments) == 0 {
		if node == nil && r.hasDefault {
			return clone(r.defaultVal), true, true
		}
		return clone(node), true, false
	}

	switch typed := node.(type) {
	case map[string]any:
		child, ok := typed[segments[0]]
		if !ok {
			if r.hasDefault {
				return nest(segments, clone(r.defaultVal)), true, true
			}
			return nil, false, false
		}

		sub, subFound, subDefaulted := extract(child, segments[1:], r)
		if !subFound {
			return nil, false, false
		}
		return map[string]any{segments[0]: sub}, true, subDefaulted
	case []any:
		items := make([]any, len(typed))
		for i, element := range typed {
			sub, subFound, subDefaulted := extract(element, segments, r)
			if !subFound {
				items[i] = hole{}
				continue
			}
			items[i] = sub
			found = true
			defaulted = defaulted || subDefaulted
		}
		if !found {
			return nil, false, false
		}
		return items, true, defaulted
	case nil:
		if r.hasDefault {
			return nest(segments, clone(r.defaultVal)), true, true
		}
	}

	return nil, false, false
}

func nest(segments []string, leaf any) (out any) {
	out = leaf
	for i := len(segments) - 1; i >= 0; i-- {
		out = map[string]any{segments[i]: out}
	}
	return out
}

func merge(dst, src any) (out any) {
	switch typed := src.(type) {
	case map[string]any:
		existing, ok := dst.(map[string]any)
		if !ok {
			return typed
		}
		for key, value := range typed {
			if current, present := existing[key]; present {
				existing[key] = merge(current, value)
				continue
			}
			existing[key] = value
		}
		return existing
	case []any:
		existing, ok := dst.([]any)
		if !ok || len(existing) != len(typed) {
			return typed
		}
		for i := range typed {
			existing[i] = merge(existing[i], typed[i])
		}
		return existing
	case hole:
		if dst == nil {
			return typed
		}
		return dst
	}

	return src
}

func wrap(node any, segments []string, directive view.Directive) (out any) {
	if len(segments) == 0 {
		if _, isHole := node.(hole); isHole {
			return node
		}
		return view.Formatted{Value: node, Directive: directive}
	}

	switch typed := node.(type) {
	case map[string]any:
		if child, ok := typed[segments[0]]; ok {
			typed[segments[0]] = wrap(child, segments[1:], directive)
		}
	case []any:
		for i := range typed {
			typed[i] = wrap(typed[i], segments, directive)
		}
	}

	return node
}

func remove(node any, segments []string) {
	switch typed := node.(type) {
	case map[string]any:
		if len(segments) == 1 {
			delete(typed, segments[0])
			return
		}
		if child, ok := typed[segments[0]]; ok {
			remove(child, segments[1:])
		}
	case []any:
		for _, element := range typed {
			remove(element, segments)
		}
	case view.Formatted:
		remove(typed.Value, segments)
	}
}

func compact(node any) (out any) {
	switch typed := node.(type) {
	case map[string]any:
		for key, value := range typed {
			typed[key] = compact(value)
		}
	case []any:
		kept := make([]any, 0, len(typed))
		for _, element := range typed {
			if _, isHole := element.(hole); isHole {
				continue
			}
			kept = append(kept, compact(element))
		}
		return kept
	case view.Formatted:
		typed.Value = compact(typed.Value)
		return typed
	}

	return node
}

func setPath(root map[string]any, segments []string, value any) (err error) {
	node := root
	for i, segment := range segments {
		if i == len(segments)-1 {
			node[segment] = value
			return err
		}

		child, ok := node[segment]
		if !ok {
			created := make(map[string]any)
			node[segment] = created
			node = created
			continue
		}

		next, isMap := child.(map[string]any)
		if !isMap {
			err = fmt.Errorf("%s is not an object", segment)
			return err
		}
		node = next
	}

	return err
}

func clone(node any) (out any) {
	switch typed := node.(type) {
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, value := range typed {
			copied[key] = clone(value)
		}
		return copied
	case []any:
		copied := make([]any, len(typed))
		for i, element := range typed {
			copied[i] = clone(element)
		}
		return copied
	}

	return node
}
