// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide logger of authguard.
//
// It is a thin shim over toolhive-core/logging. Library packages take an
// injected *slog.Logger; use [Get] or [Named] to obtain one.
package logger

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

const (
	// FormatEnv selects the output format: "text" (default) or "json".
	FormatEnv = "AUTHGUARD_LOG_FORMAT"
	// LevelEnv sets the minimum level: debug, info, warn or error.
	LevelEnv = "AUTHGUARD_LOG_LEVEL"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

func get() *slog.Logger {
	return singleton.Load()
}

// Get returns the process-wide logger.
func Get() *slog.Logger {
	return get()
}

// Set replaces the process-wide logger. Tests use it to capture output.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

// Named returns the process-wide logger tagged with a component attribute.
func Named(component string) *slog.Logger {
	return get().With("component", component)
}

// Debug logs msg at debug level.
func Debug(msg string) { get().Debug(msg) }

// Debugf formats and logs at debug level.
func Debugf(msg string, args ...any) { get().Debug(fmt.Sprintf(msg, args...)) }

// Debugw logs msg at debug level with key-value pairs.
func Debugw(msg string, keysAndValues ...any) { get().Debug(msg, keysAndValues...) }

// Info logs msg at info level.
func Info(msg string) { get().Info(msg) }

// Infof formats and logs at info level.
func Infof(msg string, args ...any) { get().Info(fmt.Sprintf(msg, args...)) }

// Infow logs msg at info level with key-value pairs.
func Infow(msg string, keysAndValues ...any) { get().Info(msg, keysAndValues...) }

// Warn logs msg at warning level.
func Warn(msg string) { get().Warn(msg) }

// Warnf formats and logs at warning level.
func Warnf(msg string, args ...any) { get().Warn(fmt.Sprintf(msg, args...)) }

// Warnw logs msg at warning level with key-value pairs.
func Warnw(msg string, keysAndValues ...any) { get().Warn(msg, keysAndValues...) }

// Error logs msg at error level.
func Error(msg string) { get().Error(msg) }

// Errorf formats and logs at error level.
func Errorf(msg string, args ...any) { get().Error(fmt.Sprintf(msg, args...)) }

// Errorw logs msg at error level with key-value pairs.
func Errorw(msg string, keysAndValues ...any) { get().Error(msg, keysAndValues...) }

// Initialize configures the process-wide logger from the environment and
// the --debug flag.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv is Initialize with an injectable environment.
func InitializeWithEnv(envReader env.Reader) {
	singleton.Store(logging.New(optionsFromEnv(envReader, viper.GetBool("debug"))...))
}

// optionsFromEnv maps the environment onto logging options. The debug flag
// wins over LevelEnv; unknown values fall back to the defaults.
func optionsFromEnv(envReader env.Reader, debug bool) []logging.Option {
	var opts []logging.Option

	if !strings.EqualFold(strings.TrimSpace(envReader.Getenv(FormatEnv)), "json") {
		opts = append(opts, logging.WithFormat(logging.FormatText))
	}

	if debug {
		return append(opts, logging.WithLevel(slog.LevelDebug))
	}
	if level, ok := parseLevel(envReader.Getenv(LevelEnv)); ok {
		opts = append(opts, logging.WithLevel(level))
	}
	return opts
}

func parseLevel(s string) (slog.Level, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, false
	}
	return level, true
}
