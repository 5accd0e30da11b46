// Package logger provides a lightweight, centralized logging facility
// with configurable verbosity levels.
//
// Design goals:
//   - Simple API (Errorf, Infof, Debugf, Tracef)
//   - Centralized verbosity control
//   - Structured fields via With(), for call sites that carry identifying
//     context (symbol, bar, group_id)
//   - Backed by zerolog rather than hand-rolled formatting
//
// Verbosity levels (in increasing order):
//
//	Error < Info < Debug < Trace
//
// Example usage:
//
//	logger.SetVerbosity(2) // Debug
//	logger.Infof("starting engine")
//	logger.With("symbol", "BTCUSDT").Debugf("spot=%f vol=%f", spot, vol)
package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Level represents a logging verbosity level.
// Higher values mean more verbose logging.
type Level int

const (
	Error Level = iota // Error logs only critical failures.
	Info               // Info logs high-level application progress.
	Debug              // Debug logs detailed diagnostic information.
	Trace              // Trace logs very fine-grained execution details.
)

var base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02T15:04:05Z07:00"}).
	With().Timestamp().Logger()

func init() {
	SetVerbosity(int(Info))
}

// SetVerbosity sets the global logging verbosity.
// Typically called once during application startup
// (e.g. after parsing CLI flags).
func SetVerbosity(v int) {
	switch Level(v) {
	case Error:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case Debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case Trace:
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Errorf logs an error-level message.
// Use this for failures that require attention.
func Errorf(format string, args ...any) { base.Error().Msgf(format, args...) }

// Infof logs an informational message.
// Use this for major lifecycle events.
func Infof(format string, args ...any) { base.Info().Msgf(format, args...) }

// Debugf logs debugging information.
// Use this for diagnostic output useful during development.
func Debugf(format string, args ...any) { base.Debug().Msgf(format, args...) }

// Tracef logs very detailed execution traces.
// Use this sparingly due to high volume.
func Tracef(format string, args ...any) { base.Trace().Msgf(format, args...) }

// Fields is a scoped logger carrying structured context (symbol, bar,
// group_id, ...) across a sequence of log calls.
type Fields struct {
	ctx zerolog.Context
}

// With starts a structured logging scope, e.g.:
//
//	logger.With("symbol", "BTCUSDT", "bar", 42).Infof("entry filled")
func With(kv ...any) Fields {
	ctx := base.With()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		switch v := kv[i+1].(type) {
		case string:
			ctx = ctx.Str(key, v)
		case int:
			ctx = ctx.Int(key, v)
		case int64:
			ctx = ctx.Int64(key, v)
		case float64:
			ctx = ctx.Float64(key, v)
		case bool:
			ctx = ctx.Bool(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return Fields{ctx: ctx}
}

func (f Fields) logger() zerolog.Logger { return f.ctx.Logger() }

func (f Fields) Errorf(format string, args ...any) { f.logger().Error().Msgf(format, args...) }
func (f Fields) Infof(format string, args ...any)  { f.logger().Info().Msgf(format, args...) }
func (f Fields) Debugf(format string, args ...any) { f.logger().Debug().Msgf(format, args...) }
func (f Fields) Tracef(format string, args ...any) { f.logger().Trace().Msgf(format, args...) }
