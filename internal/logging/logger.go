package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger provides structured JSON logging with persistent context.
// It is safe for concurrent use; child loggers share the parent's writer.
type Logger struct {
	logger *slog.Logger
	out    *RotatingWriter
	attrs  []slog.Attr
}

// NewLogger creates a Logger that writes JSON lines to path, rotating the
// file according to rot. If path is empty, logs go to stderr.
//
// The level parameter controls which messages are logged:
//   - DEBUG: All messages
//   - INFO: Info, Warn, and Error messages
//   - WARN: Warn and Error messages
//   - ERROR: Only Error messages
func NewLogger(path, level string, rot RotationConfig) (*Logger, error) {
	var (
		w   io.Writer = os.Stderr
		out *RotatingWriter
	)
	if path != "" {
		var err error
		out, err = NewRotatingWriter(path, rot)
		if err != nil {
			return nil, err
		}
		w = out
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{
		logger: slog.New(handler),
		out:    out,
	}, nil
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRun tags every entry with the orchestration run id.
func (l *Logger) WithRun(runID string) *Logger {
	return l.withAttr(slog.String("run_id", runID))
}

// WithWorker tags every entry with a worker index.
func (l *Logger) WithWorker(id int) *Logger {
	return l.withAttr(slog.Int("worker", id))
}

// WithPhase tags every entry with a loop phase such as "workers" or
// "verify".
func (l *Logger) WithPhase(phase string) *Logger {
	return l.withAttr(slog.String("phase", phase))
}

// With returns a child Logger with arbitrary key-value attributes.
// Non-string keys are skipped.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	attrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	attrs = append(attrs, l.attrs...)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	return &Logger{logger: l.logger, out: l.out, attrs: attrs}
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	attrs := make([]slog.Attr, len(l.attrs)+1)
	copy(attrs, l.attrs)
	attrs[len(l.attrs)] = attr
	return &Logger{logger: l.logger, out: l.out, attrs: attrs}
}

// Debug logs at DEBUG level with alternating key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs at INFO level with alternating key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs at WARN level with alternating key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs at ERROR level with alternating key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

func (l *Logger) log(level slog.Level, msg string, args ...any) {
	all := make([]any, 0, len(l.attrs)+len(args))
	for _, attr := range l.attrs {
		all = append(all, attr)
	}
	all = append(all, args...)
	l.logger.Log(context.Background(), level, msg, all...)
}

// Close syncs and closes the log file. It is a no-op for stderr and
// discard loggers, and safe to call more than once.
func (l *Logger) Close() error {
	if l.out == nil {
		return nil
	}
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	return nil
}

// NopLogger returns a Logger that discards all output.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.DiscardHandler)}
}

// ParseLevel normalizes a level name, returning LevelInfo for anything
// unrecognized.
func ParseLevel(level string) string {
	switch up := strings.ToUpper(level); up {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return up
	default:
		return LevelInfo
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}
