package logging

import "log/slog"

// EnableTrace turns on per-sample debug output. Set from log.trace in the config.
var EnableTrace = false

// Trace logs a message at DEBUG level, but only if EnableTrace is true.
// Used on the sensor hot paths where even a disabled Debug call adds up.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
