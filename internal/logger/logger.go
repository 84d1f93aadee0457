// Package logger configures the process-wide structured logger. Records are
// encoded by zap; packages log through the *slog.Logger front end.
package logger

import (
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps debug/info/warn/error (any case) to a zap level. Unknown values yield info.
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewZap returns a zap logger writing JSON (or console text when format is "text") to w.
func NewZap(w io.Writer, level, format string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "text") {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg.EncoderConfig)
	} else {
		enc = zapcore.NewJSONEncoder(cfg.EncoderConfig)
	}
	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), cfg.Level))
}

// New returns a slog front end over NewZap.
func New(w io.Writer, level, format string) *slog.Logger {
	return slog.New(zapslog.NewHandler(NewZap(w, level, format).Core()))
}

// Init builds the logger, installs it as the slog and zap globals, and returns
// the slog front end.
func Init(w io.Writer, level, format string) *slog.Logger {
	z := NewZap(w, level, format)
	zap.ReplaceGlobals(z)
	l := slog.New(zapslog.NewHandler(z.Core()))
	slog.SetDefault(l)
	return l
}

// Sync flushes the global zap logger.
func Sync() {
	_ = zap.L().Sync()
}
