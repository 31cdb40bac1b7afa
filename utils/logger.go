package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logPreviewLength is how much of a prompt or reply ends up in the logs
const logPreviewLength = 200

// Logger provides logging functionality
type Logger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger writing to stderr and, when cfg.FilePath is set, to that file
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
			return nil, fmt.Errorf("failed to parse log level %q: %w", cfg.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.Sampling = nil
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.Encoding = "console"
	if cfg.Format == "json" {
		zcfg.Encoding = "json"
	}
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		zcfg.OutputPaths = append(zcfg.OutputPaths, cfg.FilePath)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return &Logger{sugar: logger.Sugar()}, nil
}

// NewLoggerFromZap wraps an existing zap logger
func NewLoggerFromZap(logger *zap.Logger) *Logger {
	return &Logger{sugar: logger.Sugar()}
}

// NewNopLogger returns a logger that discards everything
func NewNopLogger() *Logger {
	return NewLoggerFromZap(zap.NewNop())
}

// Close flushes buffered entries
func (l *Logger) Close() error {
	// Syncing stderr fails on some platforms; nothing useful to report there.
	_ = l.sugar.Sync()
	return nil
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.sugar.Infof(format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.sugar.Errorf(format, v...)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.sugar.Debugf(format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.sugar.Warnf(format, v...)
}

// LLMInteraction records one request or response exchanged with the model server.
// Content is cut to logPreviewLength characters.
func (l *Logger) LLMInteraction(direction, content string, keysAndValues ...interface{}) {
	l.sugar.Infow("LLM "+strings.ToUpper(direction)+": "+Truncate(content, logPreviewLength), keysAndValues...)
}

// DatabaseOperation records the outcome of a store-level operation
func (l *Logger) DatabaseOperation(operation, table string, err error) {
	if err != nil {
		l.sugar.Errorw("database operation failed", "operation", operation, "table", table, "error", err)
		return
	}
	l.sugar.Debugw("database operation", "operation", operation, "table", table)
}

// ToolExecution records a tool lifecycle transition
func (l *Logger) ToolExecution(toolName, status string, duration time.Duration, result string, err error) {
	fields := []interface{}{"tool", toolName, "status", status}
	if duration > 0 {
		fields = append(fields, "duration_ms", duration.Milliseconds())
	}
	switch {
	case err != nil:
		l.sugar.Errorw("tool failed", append(fields, "error", err)...)
	case status == "started":
		l.sugar.Infow("tool started", fields...)
	default:
		if result == "" {
			result = "N/A"
		}
		l.sugar.Infow("tool finished", append(fields, "result", Truncate(result, logPreviewLength))...)
	}
}

// Truncate shortens s to at most n characters, appending "..." when cut
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
