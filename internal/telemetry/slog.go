package telemetry

import (
	"log/slog"
	"os"
	"strings"
)

// logLevel backs the installed handler so a config reload can retune
// verbosity on a running server without rebuilding the logger.
var logLevel slog.LevelVar

// SetupLogger configures the global slog default logger from the logging
// section of the application configuration.
//
// format: "json"  → JSONHandler (machine readable; recommended for production)
//
//	anything else → TextHandler (human readable; suitable for local development)
//
// level: "debug", "info", "warn", "error" (case-insensitive); defaults to "info".
//
// The configured logger is installed as the default so slog.Info/Warn/Error
// calls elsewhere in the application use it without carrying a *slog.Logger
// around. The level can be changed later with SetLevel.
func SetupLogger(format, level string) {
	logLevel.Set(parseLevel(level))

	opts := &slog.HandlerOptions{
		Level:     &logLevel,
		AddSource: logLevel.Level() == slog.LevelDebug, // include file:line only when debugging
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialised", "format", format, "level", logLevel.Level().String())
}

// SetLevel retunes the active logger's level. Called from the config
// hot-reload path; a no-op before SetupLogger has run.
func SetLevel(level string) {
	lvl := parseLevel(level)
	if lvl == logLevel.Level() {
		return
	}
	logLevel.Set(lvl)
	slog.Info("log level changed", "level", lvl.String())
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
