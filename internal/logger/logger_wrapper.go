package logger

import (
	"os"
	"sync"
	"time"

	"github.com/leandrodaf/midibridge/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZapLogger implements contracts.Logger on top of a zap.Logger.
type ZapLogger struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	level   zap.AtomicLevel
	encoder zapcore.EncoderConfig
	json    bool
	closer  func() error
}

// NewZapLogger creates a production logger writing JSON to stderr.
func NewZapLogger() contracts.Logger {
	return newZapLogger(zap.NewProductionEncoderConfig(), true, zapcore.Lock(os.Stderr))
}

// NewStandardLogger creates a development logger writing human readable
// lines to stderr.
func NewStandardLogger() contracts.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return newZapLogger(enc, false, zapcore.Lock(os.Stderr))
}

// Wrap adapts an existing zap.Logger. Its level is controlled by the
// underlying core; SetLevel and SetDestination only affect loggers created by
// this package.
func Wrap(l *zap.Logger) contracts.Logger {
	return &ZapLogger{
		logger: l.WithOptions(zap.AddCallerSkip(1)),
		level:  zap.NewAtomicLevelAt(zapcore.DebugLevel),
	}
}

func newZapLogger(enc zapcore.EncoderConfig, json bool, ws zapcore.WriteSyncer) *ZapLogger {
	z := &ZapLogger{
		level:   zap.NewAtomicLevelAt(zapcore.InfoLevel),
		encoder: enc,
		json:    json,
	}
	z.logger = z.build(ws)
	return z
}

func (z *ZapLogger) build(ws zapcore.WriteSyncer) *zap.Logger {
	var encoder zapcore.Encoder
	if z.json {
		encoder = zapcore.NewJSONEncoder(z.encoder)
	} else {
		encoder = zapcore.NewConsoleEncoder(z.encoder)
	}
	core := zapcore.NewCore(encoder, ws, z.level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.current().Info(msg, toZap(fields)...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.current().Error(msg, toZap(fields)...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.current().Debug(msg, toZap(fields)...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.current().Warn(msg, toZap(fields)...)
}

// Fatal logs a message at the FATAL level and terminates the application
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.current().Fatal(msg, toZap(fields)...)
}

// Field returns a new instance of Field
func (z *ZapLogger) Field() contracts.Field {
	return &zapField{}
}

// SetLevel sets the logging level
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.SetLevel(zapLevel(level))
}

// SetDestination redirects output. FileLog requires a path and writes to a
// lumberjack-rotated file; ConsoleLog writes to stderr.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	var (
		ws     zapcore.WriteSyncer
		closer func() error
	)
	switch dest {
	case contracts.FileLog:
		if len(filePath) == 0 || filePath[0] == "" {
			z.Warn("file log destination requested without a path")
			return
		}
		lj := &lumberjack.Logger{
			Filename:   filePath[0],
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		ws, closer = zapcore.AddSync(lj), lj.Close
	default:
		ws = zapcore.Lock(os.Stderr)
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closer != nil {
		_ = z.closer()
	}
	_ = z.logger.Sync()
	z.logger = z.build(ws)
	z.closer = closer
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.current().Sync()
}

func (z *ZapLogger) current() *zap.Logger {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.logger
}

func zapLevel(level contracts.LogLevel) zapcore.Level {
	switch level {
	case contracts.DebugLevel:
		return zapcore.DebugLevel
	case contracts.WarnLevel:
		return zapcore.WarnLevel
	case contracts.ErrorLevel:
		return zapcore.ErrorLevel
	case contracts.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZap(fields []contracts.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if f, ok := field.(*zapField); ok && f.set {
			out = append(out, f.f)
		}
	}
	return out
}

// zapField implements contracts.Field
type zapField struct {
	f   zap.Field
	set bool
}

func field(f zap.Field) contracts.Field {
	return &zapField{f: f, set: true}
}

func (f *zapField) Bool(key string, val bool) contracts.Field {
	return field(zap.Bool(key, val))
}

func (f *zapField) Int(key string, val int) contracts.Field {
	return field(zap.Int(key, val))
}

func (f *zapField) Float64(key string, val float64) contracts.Field {
	return field(zap.Float64(key, val))
}

func (f *zapField) String(key string, val string) contracts.Field {
	return field(zap.String(key, val))
}

func (f *zapField) Time(key string, val time.Time) contracts.Field {
	return field(zap.Time(key, val))
}

func (f *zapField) Duration(key string, val time.Duration) contracts.Field {
	return field(zap.Duration(key, val))
}

func (f *zapField) Int64(key string, val int64) contracts.Field {
	return field(zap.Int64(key, val))
}

func (f *zapField) Error(key string, val error) contracts.Field {
	return field(zap.NamedError(key, val))
}

func (f *zapField) Uint64(key string, val uint64) contracts.Field {
	return field(zap.Uint64(key, val))
}

func (f *zapField) Uint8(key string, val uint8) contracts.Field {
	return field(zap.Uint8(key, val))
}

func (f *zapField) Binary(key string, val []byte) contracts.Field {
	return field(zap.Binary(key, val))
}
