// SPDX-FileCopyrightText: 2026 The pacct-energy Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger builds the slog.Logger used across pacctd.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

var currentLevel slog.Level

// New builds a logger for the given level ("debug"|"info"|"warn"|"error")
// and format ("text"|"json").
func New(level, format string, w io.Writer) *slog.Logger {
	currentLevel = parseLevel(level)
	return slog.New(handlerFor(format, currentLevel, w))
}

// Level returns the level the last logger built with New is running at.
func Level() slog.Level {
	return currentLevel
}

func handlerFor(format string, level slog.Level, w io.Writer) slog.Handler {
	switch format {
	case "json":
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case "text", "":
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.SourceKey {
					if src, ok := a.Value.Any().(*slog.Source); ok {
						parts := strings.Split(filepath.ToSlash(src.File), "/")
						if len(parts) > 2 {
							src.File = filepath.Join(parts[len(parts)-2:]...)
						}
					}
				}
				return a
			},
		})
	default:
		panic(fmt.Sprintf("invalid log format: %s", format))
	}
}

func parseLevel(level string) slog.Level {
	switch level {
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
