// Package logging is a thin layer over zap. Entries go to a JSON log file
// under the work directory and, optionally, to a colored console on stderr.
// Fields carrying provider credentials are masked before they reach any sink.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogFileName is the file written inside Config.LogDir
const LogFileName = "crmassist.log"

// Field is a type alias for zap.Field
type Field = zap.Field

var (
	String   = zap.String
	Strings  = zap.Strings
	Int      = zap.Int
	Int64    = zap.Int64
	Float64  = zap.Float64
	Bool     = zap.Bool
	Any      = zap.Any
	Error    = zap.Error
	Err      = zap.NamedError
	Duration = zap.Duration
	Time     = zap.Time
)

var levels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

// LevelFromString maps debug, info, warn and error; anything else is info
func LevelFromString(level string) zapcore.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return zapcore.InfoLevel
}

// Config holds logger configuration
type Config struct {
	LogDir         string
	FileLevel      zapcore.Level
	ConsoleLevel   zapcore.Level
	EnableCaller   bool
	ConsoleEnabled bool
}

// DefaultConfig logs info to .crmassist/logs and debug to the console
func DefaultConfig() *Config {
	return &Config{
		LogDir:         filepath.Join(".crmassist", "logs"),
		FileLevel:      zapcore.InfoLevel,
		ConsoleLevel:   zapcore.DebugLevel,
		EnableCaller:   true,
		ConsoleEnabled: true,
	}
}

// ConfigFromLevels builds a Config from the textual levels used in config.yaml
func ConfigFromLevels(logDir, fileLevel, consoleLevel string, consoleEnabled bool) *Config {
	cfg := DefaultConfig()
	if logDir != "" {
		cfg.LogDir = logDir
	}
	if fileLevel != "" {
		cfg.FileLevel = LevelFromString(fileLevel)
	}
	if consoleLevel != "" {
		cfg.ConsoleLevel = LevelFromString(consoleLevel)
	}
	cfg.ConsoleEnabled = consoleEnabled
	return cfg
}

// Logger is the application logger handed to every component
type Logger struct {
	zap *zap.Logger
}

// NewLogger opens the log file and builds the file and console cores
func NewLogger(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fileCore, err := newFileCore(cfg)
	if err != nil {
		return nil, err
	}
	core := fileCore
	if cfg.ConsoleEnabled {
		core = zapcore.NewTee(fileCore, newConsoleCore(cfg.ConsoleLevel))
	}

	opts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	return &Logger{zap: zap.New(redact(core), opts...)}, nil
}

func newFileCore(cfg *Config) (zapcore.Core, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(cfg.LogDir, LogFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(f), cfg.FileLevel), nil
}

func newConsoleCore(level zapcore.Level) zapcore.Core {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	return zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return &Logger{zap: zap.NewNop()}
}

// NewWithCore builds a logger over an existing core, e.g. a zaptest observer
func NewWithCore(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(redact(core))}
}

func (l *Logger) Sync() error { return l.zap.Sync() }

func (l *Logger) Debug(msg string, fields ...Field) { l.zap.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field) { l.zap.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field) { l.zap.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.zap.Error(msg, fields...) }

// Fatal logs and exits with status 1
func (l *Logger) Fatal(msg string, fields ...Field) { l.zap.Fatal(msg, fields...) }

// With returns a child logger carrying fields on every entry
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// Named returns a child logger whose name is appended with a dot
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// ForConversation tags every entry with the conversation id
func (l *Logger) ForConversation(id string) *Logger {
	return l.With(String("conversation_id", id))
}

const redacted = "[REDACTED]"

// secretKeys are field names whose string values never reach a sink
var secretKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"authorization": {},
	"password":      {},
	"secret":        {},
	"token":         {},
	"x-api-key":     {},
}

// IsSecretKey reports whether a field of this name is masked
func IsSecretKey(key string) bool {
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

type redactingCore struct {
	zapcore.Core
}

func redact(core zapcore.Core) zapcore.Core {
	return &redactingCore{Core: core}
}

func (c *redactingCore) With(fields []Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(maskFields(fields))}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []Field) error {
	return c.Core.Write(e, maskFields(fields))
}

// maskFields copies fields only when one needs masking
func maskFields(fields []Field) []Field {
	var out []Field
	for i, f := range fields {
		if f.Type != zapcore.StringType || !IsSecretKey(f.Key) || f.String == "" {
			continue
		}
		if out == nil {
			out = append([]Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, redacted)
	}
	if out == nil {
		return fields
	}
	return out
}
