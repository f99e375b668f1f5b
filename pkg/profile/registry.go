package profile

import (
	"embed"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/Serendipathy/cv-generation-system/pkg/record"
)

// SourceBuiltin marks profiles compiled into the binary.
const SourceBuiltin = "builtin"

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Summary is the listing view of a registered profile.
type Summary struct {
	ID          string
	Name        string
	Description string
	Template    string
	Source      string
}

// Registry resolves profile names to fully inherited profiles. It is read-only after construction.
type Registry struct {
	raw      map[string]Profile
	profiles map[string]Profile
	problems map[string]error
}

// Builtins returns the profiles shipped with the binary.
func Builtins() (profiles []Profile, err error) {
	var entries []os.DirEntry
	entries, err = builtinFS.ReadDir("builtin")
	if err != nil {
		err = errors.Wrap(err, "failed to list builtin profiles")
		return profiles, err
	}

	for _, entry := range entries {
		var data []byte
		data, err = builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			err = errors.Wrapf(err, "failed to read builtin profile %s", entry.Name())
			return profiles, err
		}

		var p Profile
		p, err = ParseProfile(entry.Name(), data)
		if err != nil {
			return profiles, err
		}
		p.Source = SourceBuiltin
		profiles = append(profiles, p)
	}

	return profiles, err
}

// NewRegistry builds a registry from the given profiles. Later profiles replace earlier ones with the same id.
func NewRegistry(profiles ...Profile) (registry *Registry) {
	registry = &Registry{
		raw:      make(map[string]Profile),
		profiles: make(map[string]Profile),
		problems: make(map[string]error),
	}

	for _, p := range profiles {
		registry.raw[p.ID] = p
	}

	registry.link()
	return registry
}

// LoadRegistry builds a registry from the builtin profiles plus every .json/.yaml/.yml file in dir.
// Files in dir override builtins with the same id. A missing dir yields the builtins only.
// Files that fail to load are recorded and reported when resolved.
func LoadRegistry(dir string) (registry *Registry, err error) {
	var profiles []Profile
	profiles, err = Builtins()
	if err != nil {
		return registry, err
	}

	problems := make(map[string]error)
	if dir != "" {
		var loaded []Profile
		loaded, err = loadDir(dir, problems)
		if err != nil {
			return registry, err
		}
		profiles = append(profiles, loaded...)
	}

	// Ids with a load problem stay unregistered so a broken override never resolves to the builtin.
	usable := profiles[:0]
	for _, p := range profiles {
		if _, broken := problems[p.ID]; !broken {
			usable = append(usable, p)
		}
	}

	registry = NewRegistry(usable...)
	for id, problem := range problems {
		registry.problems[id] = problem
	}

	return registry, err
}

func loadDir(dir string, problems map[string]error) (profiles []Profile, err error) {
	var entries []os.DirEntry
	entries, err = os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			err = nil
			return profiles, err
		}
		err = errors.Wrapf(err, "failed to read profiles directory: %s", dir)
		return profiles, err
	}

	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isProfileFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		p, loadErr := LoadFile(path)
		if loadErr != nil {
			problems[stem(entry.Name())] = loadErr
			continue
		}

		if previous, ok := seen[p.ID]; ok {
			problems[p.ID] = errors.Errorf("profile id %q is defined by both %s and %s", p.ID, previous, path)
			continue
		}
		seen[p.ID] = path

		profiles = append(profiles, p)
	}

	return profiles, err
}

// LoadFile reads one profile file. The id falls back to the file name without extension.
func LoadFile(path string) (p Profile, err error) {
	var data []byte
	data, err = os.ReadFile(path)
	if err != nil {
		err = errors.Wrapf(err, "failed to read profile file: %s", path)
		return p, err
	}

	p, err = ParseProfile(path, data)
	if err != nil {
		return p, err
	}
	p.Source = path

	return p, err
}

// ParseProfile decodes a JSON or YAML profile document. Unknown keys are rejected.
func ParseProfile(name string, data []byte) (p Profile, err error) {
	err = yaml.UnmarshalWithOptions(data, &p, yaml.DisallowUnknownField())
	if err != nil {
		err = errors.Wrapf(err, "failed to parse profile %s", name)
		return p, err
	}

	if p.ID == "" {
		p.ID = stem(name)
	}

	err = p.Validate()
	return p, err
}

// link resolves extends for every raw profile.
func (r *Registry) link() {
	for id := range r.raw {
		p, err := r.inherit(r.raw[id], nil)
		if err != nil {
			r.problems[id] = err
			continue
		}
		r.profiles[id] = p
	}
}

// inherit merges p's parents into p. chain holds the ids being resolved, for cycle detection.
func (r *Registry) inherit(p Profile, chain []string) (merged Profile, err error) {
	for _, id := range chain {
		if id == p.ID {
			err = errors.Errorf("profile %q: extends cycle %s", p.ID, strings.Join(append(chain, p.ID), " -> "))
			return merged, err
		}
	}
	chain = append(chain, p.ID)

	if len(p.Extends) == 0 {
		merged = p
		return merged, err
	}

	base := Profile{}
	for _, parentID := range p.Extends {
		parent, ok := r.raw[parentID]
		if !ok {
			err = errors.Errorf("profile %q extends unknown profile %q", p.ID, parentID)
			return merged, err
		}

		parent, err = r.inherit(parent, chain)
		if err != nil {
			return merged, err
		}
		base = overlay(base, parent)
	}

	merged = overlay(base, p)
	merged.ID = p.ID
	merged.Extends = p.Extends
	merged.Source = p.Source

	err = merged.Validate()
	return merged, err
}

// overlay applies child on top of base: set scalars win, rules with the same path replace the base rule in place.
func overlay(base, child Profile) (out Profile) {
	out = base
	out.ID = child.ID
	if child.Name != "" {
		out.Name = child.Name
	}
	if child.Description != "" {
		out.Description = child.Description
	}
	if child.Template != "" {
		out.Template = child.Template
	}
	if child.Format != "" {
		out.Format = child.Format
	}
	if child.SchemaVersion != "" {
		out.SchemaVersion = child.SchemaVersion
	}
	if child.Timestamp != nil {
		out.Timestamp = child.Timestamp
	}

	fields := make([]FieldRule, len(base.Fields))
	copy(fields, base.Fields)

	index := make(map[string]int, len(fields))
	for i, field := range fields {
		index[normalizePath(field.Path)] = i
	}

	for _, field := range child.Fields {
		if i, ok := index[normalizePath(field.Path)]; ok {
			fields[i] = field
			continue
		}
		index[normalizePath(field.Path)] = len(fields)
		fields = append(fields, field)
	}
	out.Fields = fields

	return out
}

// Resolve returns the profile registered under name. A name ending in .json, .yaml or .yml that is not
// registered is loaded from that path and may extend registered profiles.
func (r *Registry) Resolve(name string) (p Profile, err error) {
	if problem, ok := r.problems[name]; ok {
		err = errors.Wrapf(problem, "profile %q failed to load", name)
		return p, err
	}

	if found, ok := r.profiles[name]; ok {
		p = found
		return p, err
	}

	if isProfileFile(name) {
		if _, statErr := os.Stat(name); statErr == nil {
			p, err = LoadFile(name)
			if err != nil {
				return p, err
			}
			p, err = r.inherit(p, nil)
			return p, err
		}
	}

	err = &UnknownProfileError{Name: name, Available: r.IDs()}
	return p, err
}

// IDs returns the ids of every loadable profile, sorted.
func (r *Registry) IDs() (ids []string) {
	ids = make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// List summarizes every loadable profile, sorted by id. Profiles that failed to load are skipped.
func (r *Registry) List() (summaries []Summary) {
	for _, id := range r.IDs() {
		p := r.profiles[id]
		summaries = append(summaries, Summary{
			ID:          p.ID,
			Name:        p.DisplayName(),
			Description: p.Description,
			Template:    p.Template,
			Source:      p.Source,
		})
	}
	return summaries
}

// Problems returns the load error for every profile that could not be registered.
func (r *Registry) Problems() (problems map[string]error) {
	problems = make(map[string]error, len(r.problems))
	for id, problem := range r.problems {
		problems[id] = problem
	}
	return problems
}

func isProfileFile(name string) (ok bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		ok = true
	}
	return ok
}

func stem(name string) (s string) {
	base := filepath.Base(name)
	s = strings.TrimSuffix(base, filepath.Ext(base))
	return s
}

func normalizePath(path string) (normalized string) {
	normalized = strings.Join(record.SplitPath(path), ".")
	return normalized
}
