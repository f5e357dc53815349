package logging

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// LogLevel is the level type used throughout the configuration surface.
type LogLevel = zapcore.Level

// Log level constants for convenience
const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
	FatalLevel = zapcore.FatalLevel
)

// ParseLevel parses a log level string (from LIBAI_LOG_LEVEL or the config
// file). Parsing is case-insensitive; empty or unrecognized strings return
// the default level.
//
// Valid levels: debug, info, warn, warning, error, fatal
func ParseLevel(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return defaultLevel
	}
}
