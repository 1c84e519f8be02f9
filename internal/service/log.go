package service

import "log/slog"

// logOrDefault lets services be constructed without an explicit logger.
func logOrDefault(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
