package binder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Store loads templates by reference, picks the binder from the file extension, and caches parsed templates.
// It is safe for concurrent use.
type Store struct {
	dir     string
	binders map[string]Binder
	formats map[Format]Binder

	mu     sync.RWMutex
	cache  map[string]Template
	flight singleflight.Group
}

// NewStore creates a store resolving relative references against dir.
func NewStore(dir string, binders ...Binder) (store *Store) {
	store = &Store{
		dir:     dir,
		binders: make(map[string]Binder),
		formats: make(map[Format]Binder),
		cache:   make(map[string]Template),
	}

	for _, b := range binders {
		store.formats[b.Format()] = b
		for _, ext := range b.Extensions() {
			store.binders[strings.ToLower(ext)] = b
		}
	}

	return store
}

// Dir is the templates directory.
func (s *Store) Dir() (dir string) {
	dir = s.dir
	return dir
}

// Binder returns the binder registered for a format.
func (s *Store) Binder(format Format) (b Binder, ok bool) {
	b, ok = s.formats[format]
	return b, ok
}

// Extensions lists every template extension a binder is registered for, sorted.
func (s *Store) Extensions() (exts []string) {
	for ext := range s.binders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Path resolves a reference: absolute paths are used as is, relative ones are looked up in the
// templates directory first and then relative to the working directory.
func (s *Store) Path(ref string) (path string) {
	if filepath.IsAbs(ref) || s.dir == "" {
		path = ref
		return path
	}

	path = filepath.Join(s.dir, ref)
	if _, err := os.Stat(path); err != nil {
		if _, localErr := os.Stat(ref); localErr == nil {
			path = ref
		}
	}

	return path
}

// Load returns the parsed template for ref and the binder that parsed it.
func (s *Store) Load(ref string) (tpl Template, b Binder, err error) {
	if strings.TrimSpace(ref) == "" {
		err = &TemplateNotFoundError{Template: ref, Err: errors.New("no template reference given")}
		return tpl, b, err
	}

	path := s.Path(ref)

	b, ok := s.binders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		err = &TemplateNotFoundError{
			Template: ref,
			Err:      errors.Errorf("no binder for %q templates (supported: %s)", filepath.Ext(path), strings.Join(s.Extensions(), ", ")),
		}
		return tpl, b, err
	}

	s.mu.RLock()
	tpl, ok = s.cache[path]
	s.mu.RUnlock()
	if ok {
		return tpl, b, err
	}

	var loaded any
	loaded, err, _ = s.flight.Do(path, func() (any, error) {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, &TemplateNotFoundError{Template: ref, Err: readErr}
		}

		parsed, parseErr := b.Parse(ref, data)
		if parseErr != nil {
			return nil, parseErr
		}

		s.mu.Lock()
		s.cache[path] = parsed
		s.mu.Unlock()

		return parsed, nil
	})
	if err != nil {
		return tpl, b, err
	}

	tpl = loaded.(Template)
	return tpl, b, err
}
