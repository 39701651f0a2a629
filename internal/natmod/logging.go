package natmod

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Debug  bool
	logger = zap.NewNop().Sugar()
)

// initLogger replaces the package logger. Diagnostics go to stderr so they
// never interleave with relayed build output on stdout.
func initLogger(debug bool) {
	Debug = debug
	level := zapcore.WarnLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	logger = zap.New(core).Sugar()
}

func syncLogger() {
	_ = logger.Sync()
}

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	logger.Debugf(format, args...)
}
