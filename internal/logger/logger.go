// Package logger holds the process-wide zap logger.
//
// Log starts as a no-op logger so packages can log before InitLogger runs
// (tests, init order). The host replaces it once the configuration is known:
//
//	logger.InitLogger(cfg.LogLevel)
//	defer logger.Log.Sync()
//
//	logger.Log.Info("captcha issued", zap.String("id", id.String()))
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// InitLogger builds the production logger at the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func InitLogger(level string) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zap.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var err error
	Log, err = cfg.Build()
	if err != nil {
		panic(err)
	}
}

// Task returns a child logger tagged with the background task name.
func Task(name string) *zap.Logger {
	return Log.With(zap.String("task", name))
}
