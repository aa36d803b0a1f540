// Package logging builds the process's *zap.Logger: JSON to a rotating
// file via gopkg.in/natefinch/lumberjack.v2 in production, a readable
// console encoder in development.
package logging

import (
	"github.com/streambridge/fsb/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the root logger for cfg.Environment.
func New(cfg *config.Config) *zap.Logger {
	if cfg.Environment == "development" {
		l, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return l
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxAge:     cfg.LogMaxAgeDays,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(rotator),
		zap.InfoLevel,
	)
	return zap.New(core, zap.AddCaller())
}
