package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/rs/zerolog"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// zerologLogger implements the ILogger interface on top of a zerolog logger
// tagged with the package name as component
type zerologLogger struct {
	level  logger.LogLevel
	logger zerolog.Logger
}

func (l *zerologLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *zerologLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.logger.Debug().Msgf(format, args...)
	}
}

func (l *zerologLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.logger.Info().Msgf(format, args...)
	}
}

func (l *zerologLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.logger.Warn().Msgf(format, args...)
	}
}

func (l *zerologLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.logger.Error().Msgf(format, args...)
	}
}

func (l *zerologLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		l.logger.Error().Msgf(format, args...)
		panic(fmt.Sprintf(format, args...))
	}
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// root is the logger all package loggers derive from
var root = zerolog.New(newConsoleWriter(os.Stdout)).With().Timestamp().Logger()

// CreateLogger implements dragonboats logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &zerologLogger{
		level:  logger.INFO,
		logger: root.With().Str("component", pkgName).Logger(),
	}
}

func newConsoleWriter(out io.Writer) zerolog.ConsoleWriter {
	cw := zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: time.RFC3339}

	cw.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-5s |", i))
	}

	return cw
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// loggedPackages are the package loggers of this module
var loggedPackages = []string{
	"db",
	"repository",
	"transport/rpc",
	"rpc/server",
	"rpc/client",
	"rpc/monitor",
	"cli",
}

// InitLoggers routes all package loggers through zerolog.
// format is "console" (default) or "json".
func InitLoggers(level, format string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	switch strings.ToLower(format) {
	case "", "console":
		root = zerolog.New(newConsoleWriter(os.Stdout)).With().Timestamp().Logger()
	case "json":
		root = zerolog.New(os.Stdout).With().Timestamp().Logger()
	default:
		return fmt.Errorf("invalid log format: %s. must be one of console, json", format)
	}

	// Set as the global logger factory
	logger.SetLoggerFactory(CreateLogger)

	for _, pkg := range loggedPackages {
		logger.GetLogger(pkg).SetLevel(lvl)
	}
	return nil
}
