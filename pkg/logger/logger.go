package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var l = zap.NewNop()

// Init replaces the package logger. mode: "development" or "production".
func Init(mode, level string) {
	var cfg zap.Config
	if mode == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	if lv, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lv)
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	l = logger
}

// L exposes the underlying logger for call sites that need zap directly.
func L() *zap.Logger { return l }

func Sync() { _ = l.Sync() }

func Debug(msg string, fields ...zap.Field) { l.Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { l.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { l.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { l.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { l.Fatal(msg, fields...) }
