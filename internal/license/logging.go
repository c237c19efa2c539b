package license

import (
	"context"
	"log/slog"
)

// logAction logs an engine action with structured action/result attributes
func (e *Engine) logAction(ctx context.Context, level slog.Level, action, result string, attrs ...slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("action", action),
		slog.String("result", result),
		slog.String("capability", string(e.capability)),
	)
	all = append(all, attrs...)

	e.logger.LogAttrs(ctx, level, result, all...)
}

func (e *Engine) logDebug(ctx context.Context, action, result string, attrs ...slog.Attr) {
	e.logAction(ctx, slog.LevelDebug, action, result, attrs...)
}

func (e *Engine) logInfo(ctx context.Context, action, result string, attrs ...slog.Attr) {
	e.logAction(ctx, slog.LevelInfo, action, result, attrs...)
}

func (e *Engine) logWarn(ctx context.Context, action, result string, attrs ...slog.Attr) {
	e.logAction(ctx, slog.LevelWarn, action, result, attrs...)
}

func (e *Engine) logError(ctx context.Context, action, result string, attrs ...slog.Attr) {
	e.logAction(ctx, slog.LevelError, action, result, attrs...)
}

// maskLicenseKey keeps the first and last group of a code
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "-****-****-" + key[len(key)-4:]
}
