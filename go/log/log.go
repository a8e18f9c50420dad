// Package log is the structured logger shared by the engine, kernels and CLI.
package log

import (
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Logger struct {
	*zap.Logger
}

// New builds a console logger. debug enables engine-level chatter.
func New(debug bool) *Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return &Logger{Logger: logger}
}

func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Or returns l, or a no-op logger if l is nil.
func (l *Logger) Or() *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

func Hex(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

func Addr(addr uint64) zap.Field {
	return zap.String("addr", Hex(addr))
}

func Size(size uint64) zap.Field {
	return zap.String("size", Hex(size))
}

func Ptr(name string, ptr uint64) zap.Field {
	return zap.String(name, Hex(ptr))
}

func Fn(name string) zap.Field {
	return zap.String("fn", name)
}

// re-exported so callers don't need to import zap for common fields
var (
	String = zap.String
	Int    = zap.Int
	Uint64 = zap.Uint64
	Err    = zap.Error
)
