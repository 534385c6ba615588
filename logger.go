package scaffold

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Logger defines the interface for framework logging.
// The framework uses structured logging with key-value pairs to provide
// consistent, parseable log output across all packages.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// This approach is compatible with popular structured logging libraries
// like zerolog, slog, and zap.
type Logger interface {
	// Debug logs detailed diagnostic information, typically disabled in production.
	Debug(msg string, args ...any)

	// Info logs normal application events like controller mounting or job runs.
	Info(msg string, args ...any)

	// Warn logs unusual conditions that don't prevent normal operation,
	// such as route conflicts or skipped job fires.
	Warn(msg string, args ...any)

	// Error logs errors that should be noted but don't necessarily abort startup.
	Error(msg string, args ...any)
}

// DebugChecker is an optional capability a Logger may implement so callers
// can avoid building expensive debug payloads when debug output is disabled.
type DebugChecker interface {
	DebugEnabled() bool
}

// DebugEnabled reports whether the logger has debug output enabled.
// Loggers that don't implement DebugChecker are assumed to discard debug output.
func DebugEnabled(logger Logger) bool {
	if c, ok := logger.(DebugChecker); ok {
		return c.DebugEnabled()
	}
	return false
}

// ZerologLogger adapts a zerolog.Logger to the framework Logger interface.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a Logger writing zerolog output to w at the given level.
func NewZerologLogger(w io.Writer, level zerolog.Level) *ZerologLogger {
	return &ZerologLogger{
		logger: zerolog.New(w).Level(level).With().Timestamp().Logger(),
	}
}

// WrapZerolog adapts an existing zerolog.Logger.
func WrapZerolog(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

func (l *ZerologLogger) Debug(msg string, args ...any) {
	l.emit(l.logger.Debug(), msg, args)
}

func (l *ZerologLogger) Info(msg string, args ...any) {
	l.emit(l.logger.Info(), msg, args)
}

func (l *ZerologLogger) Warn(msg string, args ...any) {
	l.emit(l.logger.Warn(), msg, args)
}

func (l *ZerologLogger) Error(msg string, args ...any) {
	l.emit(l.logger.Error(), msg, args)
}

// DebugEnabled implements DebugChecker.
func (l *ZerologLogger) DebugEnabled() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}

// emit converts key-value argument pairs into zerolog fields.
// A trailing unpaired argument is logged under the "arg" key rather than dropped.
func (l *ZerologLogger) emit(ev *zerolog.Event, msg string, args []any) {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	if len(args)%2 == 1 {
		ev = ev.Interface("arg", args[len(args)-1])
	}
	ev.Msg(msg)
}
