// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level with its oops code and context expanded
// into separate attributes. Extra attrs are appended as-is.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(ctx, logger, slog.LevelError, msg, err, attrs)
}

// LogWarn is LogError at warn level, for failures the caller caused.
func LogWarn(ctx context.Context, logger *slog.Logger, msg string, err error, attrs ...any) {
	logAt(ctx, logger, slog.LevelWarn, msg, err, attrs)
}

func logAt(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, attrs []any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Log(ctx, level, msg, append(attrs, Attrs(err)...)...)
}

// Attrs describes err as slog key/value pairs. Non-oops errors produce a
// single "error" attribute.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil && code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}
