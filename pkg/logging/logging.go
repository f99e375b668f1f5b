// Package logging builds the charmbracelet/log logger shared by the engine and the CLI.
package logging

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Format selects the log line encoding.
type Format string

// Level is a log level name.
type Level string

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
	FormatText   Format = "text"

	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

//nolint:gochecknoglobals // Flag help text
var (
	AllFormats = []string{string(FormatJSON), string(FormatLogfmt), string(FormatText)}
	AllLevels  = []string{string(LevelError), string(LevelWarn), string(LevelInfo), string(LevelDebug)}
)

// GetLevel parses a level name. "warning" is accepted for warn.
func GetLevel(level string) (lvl log.Level, err error) {
	switch Level(strings.ToLower(strings.TrimSpace(level))) {
	case LevelError:
		lvl = log.ErrorLevel
	case LevelWarn, "warning":
		lvl = log.WarnLevel
	case LevelInfo, "":
		lvl = log.InfoLevel
	case LevelDebug:
		lvl = log.DebugLevel
	default:
		err = errors.Errorf("unknown log level %q (want one of %s)", level, strings.Join(AllLevels, ", "))
	}
	return lvl, err
}

// GetFormat parses a format name. Empty means text.
func GetFormat(format string) (logFmt Format, err error) {
	logFmt = Format(strings.ToLower(strings.TrimSpace(format)))
	if logFmt == "" {
		logFmt = FormatText
		return logFmt, err
	}
	if !slices.Contains([]Format{FormatJSON, FormatLogfmt, FormatText}, logFmt) {
		err = errors.Errorf("unknown log format %q (want one of %s)", format, strings.Join(AllFormats, ", "))
	}
	return logFmt, err
}

// New returns a logger writing to w.
func New(w io.Writer, level, format string) (logger *log.Logger, err error) {
	lvl, err := GetLevel(level)
	if err != nil {
		return logger, err
	}

	logFmt, err := GetFormat(format)
	if err != nil {
		return logger, err
	}

	formatter := log.TextFormatter
	switch logFmt {
	case FormatJSON:
		formatter = log.JSONFormatter
	case FormatLogfmt:
		formatter = log.LogfmtFormatter
	case FormatText:
	}

	logger = log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
	})
	return logger, err
}

// Discard returns a logger that drops everything.
func Discard() (logger *log.Logger) {
	logger = log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
	return logger
}
