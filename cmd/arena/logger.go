package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/magefree/landlord-arena/internal/config"
)

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// initLogger builds the process logger. The returned level can be changed
// while the logger is in use.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, zap.AtomicLevel, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, level, err
	}
	return logger, level, nil
}
