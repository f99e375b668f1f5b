// Package engine runs the render pipeline: load the master record, resolve the profile,
// project the view, load the template and bind it. The engine never writes output.
package engine

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/logging"
	"github.com/Serendipathy/cv-generation-system/pkg/profile"
	"github.com/Serendipathy/cv-generation-system/pkg/record"
	"github.com/Serendipathy/cv-generation-system/pkg/view"
)

// DefaultConcurrency bounds RenderAll when no limit is configured.
const DefaultConcurrency = 4

// Engine is safe for concurrent use once built.
type Engine struct {
	registry    *profile.Registry
	schema      *record.Schema
	store       *binder.Store
	logger      *log.Logger
	template    string
	now         func() time.Time
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTemplate binds every profile into ref instead of the template the profile names.
func WithTemplate(ref string) (opt Option) {
	opt = func(e *Engine) {
		e.template = ref
	}
	return opt
}

// WithClock replaces time.Now for generated timestamps.
func WithClock(now func() time.Time) (opt Option) {
	opt = func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
	return opt
}

// WithLogger sets the logger. Render steps log at debug level.
func WithLogger(logger *log.Logger) (opt Option) {
	opt = func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
	return opt
}

// WithConcurrency bounds how many profiles RenderAll binds at once.
func WithConcurrency(n int) (opt Option) {
	opt = func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
	return opt
}

// New builds an engine. schema may be nil, in which case records are only checked for shape
// and every rule path must exist in the record itself.
func New(registry *profile.Registry, schema *record.Schema, store *binder.Store, opts ...Option) (e *Engine) {
	e = &Engine{
		registry:    registry,
		schema:      schema,
		store:       store,
		logger:      logging.Discard(),
		now:         time.Now,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Registry returns the profile registry.
func (e *Engine) Registry() (registry *profile.Registry) {
	registry = e.registry
	return registry
}

// Schema returns the record schema, possibly nil.
func (e *Engine) Schema() (schema *record.Schema) {
	schema = e.schema
	return schema
}

// Store returns the template store.
func (e *Engine) Store() (store *binder.Store) {
	store = e.store
	return store
}

// Load reads and validates a master record.
func (e *Engine) Load(ctx context.Context, source string) (rec record.Record, err error) {
	err = ctx.Err()
	if err != nil {
		return rec, err
	}

	rec, err = record.Load(ctx, source, e.schema)
	if err != nil {
		return rec, err
	}

	e.logger.Debug("loaded master record", "source", source, "fields", len(rec.Data))
	return rec, err
}

// Render produces one document from the record at source.
func (e *Engine) Render(ctx context.Context, source, profileName string) (doc binder.Document, err error) {
	rec, err := e.Load(ctx, source)
	if err != nil {
		return doc, err
	}

	doc, err = e.RenderRecord(ctx, rec, profileName)
	return doc, err
}

// RenderRecord produces one document from an already loaded record.
func (e *Engine) RenderRecord(ctx context.Context, rec record.Record, profileName string) (doc binder.Document, err error) {
	logger := e.logger.With("request", uuid.NewString(), "profile", profileName)
	started := e.now()

	p, v, err := e.project(ctx, rec, profileName, logger)
	if err != nil {
		return doc, err
	}

	ref := e.template
	if ref == "" {
		ref = p.Template
	}
	if ref == "" {
		err = &binder.TemplateNotFoundError{Template: ref, Err: errors.Errorf("profile %s names no template", p.ID)}
		return doc, err
	}

	tpl, b, err := e.store.Load(ref)
	if err != nil {
		return doc, err
	}
	if e.template == "" && p.Format != "" && binder.Format(p.Format) != b.Format() {
		logger.Warn("template format differs from profile format", "template", ref, "want", p.Format, "got", b.Format())
	}

	err = ctx.Err()
	if err != nil {
		return doc, err
	}

	doc, err = b.Bind(v, tpl)
	if err != nil {
		return doc, err
	}

	logger.Debug("bound template",
		"template", tpl.Name(),
		"format", doc.Format,
		"size", humanize.Bytes(uint64(doc.Size())), //nolint:gosec // G115: sizes are never negative
		"took", e.now().Sub(started),
	)
	return doc, err
}

// Preview returns the view a profile would bind, without touching templates.
func (e *Engine) Preview(ctx context.Context, source, profileName string) (v view.View, err error) {
	rec, err := e.Load(ctx, source)
	if err != nil {
		return v, err
	}

	logger := e.logger.With("request", uuid.NewString(), "profile", profileName)
	_, v, err = e.project(ctx, rec, profileName, logger)
	return v, err
}

func (e *Engine) project(ctx context.Context, rec record.Record, profileName string, logger *log.Logger) (p profile.Profile, v view.View, err error) {
	err = ctx.Err()
	if err != nil {
		return p, v, err
	}

	p, err = e.registry.Resolve(profileName)
	if err != nil {
		return p, v, err
	}

	v, err = profile.ProjectAt(rec, e.schema, p, e.now())
	if err != nil {
		return p, v, err
	}

	logger.Debug("projected view", "profileId", p.ID, "paths", len(v.Paths()))
	return p, v, err
}

// RenderAll loads the record once and renders every named profile with bounded concurrency.
// Documents come back in the order of names. The first failure cancels the remaining renders.
func (e *Engine) RenderAll(ctx context.Context, source string, names []string) (docs []binder.Document, err error) {
	rec, err := e.Load(ctx, source)
	if err != nil {
		return docs, err
	}

	results := make([]binder.Document, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i, name := range names {
		g.Go(func() (renderErr error) {
			results[i], renderErr = e.RenderRecord(gctx, rec, name)
			if renderErr != nil {
				renderErr = errors.Wrapf(renderErr, "profile %s", name)
			}
			return renderErr
		})
	}

	err = g.Wait()
	if err != nil {
		return docs, err
	}

	docs = results
	return docs, err
}
