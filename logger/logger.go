package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global      *zap.Logger
	atomicLevel zap.AtomicLevel
)

// Config controls the process-wide logger.
type Config struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Init builds the global logger. Safe to call once at process start.
func Init(cfg Config) {
	atomicLevel = zap.NewAtomicLevel()
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}
	atomicLevel.SetLevel(level)

	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), atomicLevel)
	global = zap.New(core, zap.AddCaller(), zap.Fields(zap.String("service", "escrowflow")))
}

// SetLevel adjusts the level at runtime.
func SetLevel(levelStr string) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(levelStr)); err != nil {
		return
	}
	atomicLevel.SetLevel(level)
}

// L returns the global logger, falling back to a production logger when
// Init has not been called (tests, ad-hoc tools).
func L() *zap.Logger {
	if global == nil {
		global, _ = zap.NewProduction()
	}
	return global
}

// Sync flushes buffered entries. Call on shutdown.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
