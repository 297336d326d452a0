// Package logging is a thin structured-logging layer over zerolog.
//
// The zero Logger value is safe to use and writes nothing, so components
// can take a Logger without nil checks.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event. Fields are applied in order; if the same
// key is set twice, the later one wins.
type Field func(e *zerolog.Event)

func String(k, v string) Field      { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field     { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Bool(k string, v bool) Field   { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a small immutable wrapper; With() derives a logger with fixed
// fields attached to every event.
type Logger struct {
	base    zerolog.Logger
	hasBase bool
	fields  []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{base: zerolog.Nop(), hasBase: true}
}

// New builds the process logger from config. The file sink gets JSON, the
// console sink gets the human-readable writer. Returns a close func for the
// file sink (no-op when the file sink is disabled).
func New(cfg Config) (Logger, func() error, error) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	var sinks []io.Writer
	closeFn := func() error { return nil }

	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat})
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return Logger{}, nil, err
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return Logger{}, nil, err
		}
		sinks = append(sinks, f)
		closeFn = f.Close
	}
	if len(sinks) == 0 {
		return Nop(), closeFn, nil
	}

	// The level is managed globally so a config reload can re-apply it
	// without rebuilding every derived logger.
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level, zerolog.InfoLevel))
	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}, closeFn, nil
}

// SetLevel re-applies the global minimum level (live config reload).
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level, zerolog.InfoLevel))
}

// NewConsole creates a standalone console logger, used for bootstrap before
// the configured logger exists.
func NewConsole(level string) Logger {
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}
	zl := zerolog.New(cw).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: zl, hasBase: true}
}

func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "", "info":
		if s == "" {
			return def
		}
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

func (l Logger) IsZero() bool { return !l.hasBase && len(l.fields) == 0 }

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	zl := l.base
	if !l.hasBase {
		zl = zerolog.Nop()
	}
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}
