// File: internal/logger/logger.go
// Package logger
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-subsystem structured logging on top of log/slog.
//
// Levels and format come from the environment:
//
//	HIOLOAD_LOG_LEVEL=session=debug,concurrency=warn,info
//	HIOLOAD_LOG_FORMAT=json
//
// Usage:
//
//	var log = logger.Logger("session")
//	log.Warn("remove failed", "id", id)
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	loggers sync.Map // subsystem -> *slog.Logger
	levels  sync.Map // subsystem -> *slog.LevelVar

	outputMu sync.RWMutex
	output   io.Writer = os.Stderr

	envOnce sync.Once
	envCfg  config
)

type config struct {
	defaultLevel slog.Level
	subsystems   map[string]slog.Level
	json         bool
}

// dynamicWriter resolves the current output on every write so SetOutput
// affects loggers created earlier.
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	outputMu.RLock()
	w := output
	outputMu.RUnlock()
	return w.Write(p)
}

// Logger returns the cached logger of subsystem.
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}
	cfg := fromEnv()
	lv := new(slog.LevelVar)
	lv.Set(cfg.levelFor(subsystem))

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if cfg.json {
		h = slog.NewJSONHandler(dynamicWriter{}, opts)
	} else {
		h = slog.NewTextHandler(dynamicWriter{}, opts)
	}
	l := slog.New(h.WithAttrs([]slog.Attr{slog.String("subsystem", subsystem)}))

	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		levels.Store(subsystem, lv)
	}
	return actual.(*slog.Logger)
}

// SetLevel changes the level of an already created subsystem logger.
func SetLevel(subsystem string, level slog.Level) {
	if lv, ok := levels.Load(subsystem); ok {
		lv.(*slog.LevelVar).Set(level)
	}
}

// SetGlobalLevel changes the level of every created logger.
func SetGlobalLevel(level slog.Level) {
	levels.Range(func(_, v any) bool {
		v.(*slog.LevelVar).Set(level)
		return true
	})
}

// SetOutput redirects all loggers to w.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	output = w
	outputMu.Unlock()
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func fromEnv() config {
	envOnce.Do(func() {
		envCfg = parseConfig(os.Getenv("HIOLOAD_LOG_LEVEL"), os.Getenv("HIOLOAD_LOG_FORMAT"))
	})
	return envCfg
}

func (c config) levelFor(subsystem string) slog.Level {
	if lv, ok := c.subsystems[subsystem]; ok {
		return lv
	}
	return c.defaultLevel
}

// parseConfig reads "subsystem=level,...,default" and a format name.
func parseConfig(levelSpec, format string) config {
	cfg := config{
		defaultLevel: slog.LevelInfo,
		subsystems:   make(map[string]slog.Level),
		json:         strings.EqualFold(strings.TrimSpace(format), "json"),
	}
	for _, part := range strings.Split(levelSpec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if name, lvl, ok := strings.Cut(part, "="); ok {
			if l, ok := parseLevel(lvl); ok {
				cfg.subsystems[strings.TrimSpace(name)] = l
			}
			continue
		}
		if l, ok := parseLevel(part); ok {
			cfg.defaultLevel = l
		}
	}
	return cfg
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "fatal":
		return slog.LevelError, true
	}
	return 0, false
}
