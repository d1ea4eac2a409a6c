package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

var (
	mu       sync.RWMutex
	logger   *zap.SugaredLogger
	atomLvl  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	initOnce sync.Once
)

// initLogger builds the global logger: JSON lines on stderr, INFO by default.
func initLogger() {
	initOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		logger = newLogger(zap.NewProductionEncoderConfig(), false)
	})
}

func newLogger(encCfg zapcore.EncoderConfig, console bool) *zap.SugaredLogger {
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	var enc zapcore.Encoder
	if console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), atomLvl)
	return zap.New(core).Sugar()
}

// SetDevelopment switches to a human-readable console encoder. Intended for
// --debug runs on a workstation.
func SetDevelopment() {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	logger = newLogger(zap.NewDevelopmentEncoderConfig(), true)
}

// SetLogger replaces the backing logger, mostly for tests (zaptest, zap.NewNop).
func SetLogger(l *zap.Logger) {
	initLogger()
	mu.Lock()
	defer mu.Unlock()
	logger = l.Sugar()
}

func SetLevel(l Level) {
	initLogger()
	switch l {
	case LevelDebug:
		atomLvl.SetLevel(zapcore.DebugLevel)
	case LevelError:
		atomLvl.SetLevel(zapcore.ErrorLevel)
	default:
		atomLvl.SetLevel(zapcore.InfoLevel)
	}
}

// ParseLevel maps a case-sensitive level name to a Level, defaulting to INFO.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelError:
		return Level(s)
	default:
		return LevelInfo
	}
}

func Debug(msg string, kv ...any) {
	current().Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Infow(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Errorw(msg, extended...)
}

// Sync flushes buffered entries. Call before process exit.
func Sync() {
	_ = current().Sync()
}

func current() *zap.SugaredLogger {
	initLogger()
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
