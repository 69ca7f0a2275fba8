// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel selects how chatty the CLI logger is. Console status lines are
// written separately and are not affected by the level.
type LogLevel string

const (
	LogLevelWarn  LogLevel = "warn"
	LogLevelInfo  LogLevel = "info"
	LogLevelDebug LogLevel = "debug"
)

// ResolveLogLevel maps the --debug and --verbose flags to a level, debug wins.
func ResolveLogLevel(debug, verbose bool) LogLevel {
	switch {
	case debug:
		return LogLevelDebug
	case verbose:
		return LogLevelInfo
	default:
		return LogLevelWarn
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.WarnLevel
	}
}

// NewLogger builds a console logger writing to w (stderr when nil).
// Stacktraces are disabled for non-fatal levels to keep failed sends readable.
func NewLogger(level LogLevel, w io.Writer) *zap.SugaredLogger {
	if w == nil {
		w = os.Stderr
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)
	return zap.New(core).Sugar()
}

// NewTestLogger returns a sugared logger configured for tests. It mirrors the
// development logger but disables automatic stacktraces so normal test logs
// don't include stack frames.
func NewTestLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	logger, _ := cfg.Build()
	return logger.Sugar()
}
