// Package logger builds the application's slog.Logger: JSON output in prod,
// human-readable text elsewhere.
package logger
