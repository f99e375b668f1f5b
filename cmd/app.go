package cmd

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"github.com/Serendipathy/cv-generation-system/pkg/binder"
	"github.com/Serendipathy/cv-generation-system/pkg/config"
	"github.com/Serendipathy/cv-generation-system/pkg/docx"
	"github.com/Serendipathy/cv-generation-system/pkg/engine"
	"github.com/Serendipathy/cv-generation-system/pkg/logging"
	"github.com/Serendipathy/cv-generation-system/pkg/markdown"
	"github.com/Serendipathy/cv-generation-system/pkg/profile"
	"github.com/Serendipathy/cv-generation-system/pkg/record"
)

// app bundles what every rendering command needs.
type app struct {
	cfg    config.Config
	logger *log.Logger
	engine *engine.Engine
}

// newApp loads config and builds the engine. templateRef, when set, overrides every profile's template.
func newApp(templateRef string) (a app, err error) {
	a.cfg, err = config.Load(getConfigFile())
	if err != nil {
		err = errors.Wrap(err, "failed to load config")
		return a, err
	}

	a.logger, err = newLogger(a.cfg)
	if err != nil {
		return a, err
	}

	var schema *record.Schema
	schema, err = record.LoadSchema(a.cfg.SchemaLocation)
	if err != nil {
		err = errors.Wrap(err, "failed to load record schema")
		return a, err
	}

	var registry *profile.Registry
	registry, err = profile.LoadRegistry(a.cfg.ProfilesDir)
	if err != nil {
		return a, err
	}
	logProblems(a.logger, registry)

	var md *markdown.Binder
	md, err = markdown.New(a.cfg.TemplatesDir)
	if err != nil {
		return a, err
	}

	store := binder.NewStore(a.cfg.TemplatesDir, docx.New(), md)

	a.engine = engine.New(registry, schema, store,
		engine.WithLogger(a.logger),
		engine.WithConcurrency(a.cfg.Render.Concurrency),
		engine.WithTemplate(templateRef),
	)

	a.logger.Debug("engine ready",
		"schema", schema.Location(),
		"schemaVersion", schema.Version(),
		"profiles", len(registry.IDs()),
		"templates", store.Dir(),
	)
	return a, err
}

func newLogger(cfg config.Config) (logger *log.Logger, err error) {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	if getVerbose() {
		level = string(logging.LevelDebug)
	}

	format := cfg.Log.Format
	if logFormat != "" {
		format = logFormat
	}

	logger, err = logging.New(os.Stderr, level, format)
	if err != nil {
		err = errors.Wrap(err, "invalid logging settings")
		return logger, err
	}
	return logger, err
}

func logProblems(logger *log.Logger, registry *profile.Registry) {
	problems := registry.Problems()

	names := make([]string, 0, len(problems))
	for name := range problems {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		logger.Warn("skipping profile", "profile", name, "err", problems[name])
	}
}

// masterLocation picks the positional argument over the configured master record.
func masterLocation(args []string, cfg config.Config) (location string, err error) {
	if len(args) > 0 && args[0] != "" {
		location = args[0]
		return location, err
	}

	location = cfg.MasterLocation
	if location == "" {
		err = errors.New("no master record given (pass a path or URL, or set master_location in config)")
		return location, err
	}
	return location, err
}

// outputPath returns explicit when set, otherwise <dir>/<name>-<profile><ext>.
func outputPath(explicit, dir, name string, doc binder.Document) (path string) {
	if explicit != "" {
		path = explicit
		return path
	}

	path = filepath.Join(dir, fileName(name, doc))
	return path
}

func getOutputDir(flagValue, configValue string) (outDir string) {
	outDir = flagValue
	if outDir == "" {
		outDir = configValue
	}
	return outDir
}
