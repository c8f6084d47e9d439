package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.tunwire.dev/bridge/pkg/logging"
)

// initLogger builds a console zap logger:
// development config (with caller/stacktrace) when debug is set, production
// config otherwise, colour level encoding, ISO8601 timestamps.
func initLogger(debug bool) (*logging.Zap, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logging.NewZap(l.Sugar()), nil
}
