package main

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// logConfig mirrors the --log-* flags.
type logConfig struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // rotated log file, stderr only when empty
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	}
	return zap.InfoLevel
}

// setupLogger writes to stderr and, with File set, to a rotated file too.
func setupLogger(c logConfig) *zap.Logger {
	level := zap.NewAtomicLevelAt(parseLevel(c.Level))

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level),
	}
	if c.File != "" {
		ws := zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
		})
		cores = append(cores, zapcore.NewCore(encoder, ws, level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}
