// Package logger is the engine's structured logging façade: the same
// Logger shape (Debugf/Infof/Warnf/Errorf/Fatalf) the daemon and the
// worker Dispatcher are given, but backed by go.uber.org/zap's SugaredLogger instead of hand-rolled
// ANSI formatting, since nothing here should be reinventing what the
// ecosystem already does well.
package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel mirrors zapcore.Level under the teacher's own naming, so
// callers configuring "LOG_LEVEL=DEBUG" see the same vocabulary as
// before.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	FATAL
)

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case FATAL:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger is the interface every component in this codebase is injected
// with.
type Logger struct {
	sugar *zap.SugaredLogger
}

// Config controls how New builds a Logger.
type Config struct {
	Level  LogLevel
	Output *os.File
}

// DefaultConfig reads LOG_LEVEL from the environment (DEBUG/INFO/WARN/
// FATAL, defaulting to INFO) and logs to stdout.
func DefaultConfig() Config {
	level := INFO
	switch strings.ToUpper(os.Getenv("LOG_LEVEL")) {
	case "DEBUG":
		level = DEBUG
	case "WARN":
		level = WARN
	case "FATAL":
		level = FATAL
	}
	return Config{Level: level, Output: os.Stdout}
}

// New builds a Logger: a colorized console encoder when Output is an
// interactive terminal (per isatty.IsTerminal), a plain JSON encoder
// otherwise — the right default for a daemon that may run unattended
// under a process supervisor, where ANSI escapes just corrupt the log
// stream.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if isatty.IsTerminal(cfg.Output.Fd()) || isatty.IsCygwinTerminal(cfg.Output.Fd()) {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(cfg.Output), zap.NewAtomicLevelAt(cfg.Level.zapLevel()))
	zl := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{sugar: zl.Sugar()}
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the process-wide default Logger, built from
// DefaultConfig on first use.
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = New(DefaultConfig())
	})
	return defaultLogger
}

func (l *Logger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *Logger) Fatalf(format string, args ...any) { l.sugar.Fatalf(format, args...) }

// Sync flushes any buffered log entries; callers should defer this at
// process start.
func (l *Logger) Sync() error { return l.sugar.Sync() }

// Debugf logs at DEBUG level using the default logger.
func Debugf(format string, args ...any) { GetLogger().Debugf(format, args...) }

// Infof logs at INFO level using the default logger.
func Infof(format string, args ...any) { GetLogger().Infof(format, args...) }

// Warnf logs at WARN level using the default logger.
func Warnf(format string, args ...any) { GetLogger().Warnf(format, args...) }

// Errorf logs at ERROR level using the default logger.
func Errorf(format string, args ...any) { GetLogger().Errorf(format, args...) }

// Fatalf logs at FATAL level using the default logger, then exits.
func Fatalf(format string, args ...any) { GetLogger().Fatalf(format, args...) }
