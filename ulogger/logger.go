// Package ulogger wraps zerolog the way the teacher's util/logger.go
// wraps it: a small leveled-printf Logger interface so the rest of the
// repo never imports zerolog directly.
package ulogger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the leveled-printf contract every component takes instead
// of a concrete zerolog.Logger, so tests can swap in a no-op.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	With(fields ...string) Logger
}

type ZLogger struct {
	zerolog.Logger
	service string
}

// New returns a service-scoped logger. prettyLogs picks a console
// writer over raw JSON; an empty service name becomes "bridge".
func New(service string, logLevel string, prettyLogs bool) *ZLogger {
	if service == "" {
		service = "bridge"
	}

	var base zerolog.Logger
	if prettyLogs {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", service).Logger()
	} else {
		base = zerolog.New(os.Stdout).With().Timestamp().Str("service", service).Logger()
	}

	z := &ZLogger{Logger: base.Level(levelFromString(logLevel)), service: service}

	return z
}

func levelFromString(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	case "PANIC":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZLogger) Debugf(format string, args ...interface{}) { z.Logger.Debug().Msgf(format, args...) }
func (z *ZLogger) Infof(format string, args ...interface{})  { z.Logger.Info().Msgf(format, args...) }
func (z *ZLogger) Warnf(format string, args ...interface{})  { z.Logger.Warn().Msgf(format, args...) }
func (z *ZLogger) Errorf(format string, args ...interface{}) { z.Logger.Error().Msgf(format, args...) }
func (z *ZLogger) Fatalf(format string, args ...interface{}) { z.Logger.Fatal().Msgf(format, args...) }

func (z *ZLogger) With(fields ...string) Logger {
	ctx := z.Logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		ctx = ctx.Str(fields[i], fields[i+1])
	}
	return &ZLogger{Logger: ctx.Logger(), service: z.service}
}

// Nop returns a logger that discards everything, for unit tests that
// don't want to assert on log output.
func Nop() Logger {
	return &ZLogger{Logger: zerolog.Nop(), service: "nop"}
}
