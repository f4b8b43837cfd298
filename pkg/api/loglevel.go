package api

import "log/slog"

// setLogLevel maps the request level name onto the slog level var.
// Returns false for unknown names.
func setLogLevel(level *slog.LevelVar, name string) bool {
	switch name {
	case "DEBUG":
		level.Set(slog.LevelDebug)
	case "INFO":
		level.Set(slog.LevelInfo)
	case "WARNING":
		level.Set(slog.LevelWarn)
	case "ERROR":
		level.Set(slog.LevelError)
	default:
		return false
	}
	return true
}
