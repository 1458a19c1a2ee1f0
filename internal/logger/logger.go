// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// level is shared by every logger built by New so SetLevel applies to all of them
var level slog.LevelVar

// New returns a logger writing to w. Unknown formats fall back to text and
// unknown levels to info; config validation rejects both before this point.
func New(lvl, format string, w io.Writer) *slog.Logger {
	level.Set(ParseLevel(lvl))
	return slog.New(handlerForFormat(format, w))
}

// Level returns the current log level
func Level() slog.Level {
	return level.Level()
}

// SetLevel changes the level of every logger built by New
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

func handlerForFormat(format string, w io.Writer) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     &level,
			AddSource: true,
		})
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       &level,
		AddSource:   true,
		ReplaceAttr: shortSource,
	})
}

// shortSource keeps the last two directories of the source file
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.SourceKey {
		return a
	}
	src, ok := a.Value.Any().(*slog.Source)
	if !ok {
		return a
	}

	parts := strings.Split(filepath.ToSlash(src.File), "/")
	if n := len(parts); n > 3 {
		parts = parts[n-3:]
	}
	src.File = filepath.Join(parts...)
	return a
}

// ParseLevel maps debug, info, warn and error to slog levels
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
