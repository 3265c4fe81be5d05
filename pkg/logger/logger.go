package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a zerolog logger with typed fields. Error lines are also fed to
// an optional collector that ships de-duplicated counts to Kafka.
type Logger struct {
	zl   zerolog.Logger
	sink *collectorRef
}

// collectorRef is shared by a logger and every child made with With, so
// attaching a collector after children exist still reaches them.
type collectorRef struct {
	mu sync.RWMutex
	c  *LogCollector
}

func (r *collectorRef) get() *LogCollector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.c
}

func (r *collectorRef) swap(c *LogCollector) *LogCollector {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.c
	r.c = c
	return old
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or a file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = timeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: timeFormat,
			NoColor:    out != os.Stdout && out != os.Stderr,
		}
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().CallerWithSkipFrameCount(4).Logger()
	return &Logger{zl: zl, sink: &collectorRef{}}, nil
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// NewWithWriter returns a JSON logger writing to w at debug level.
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		zl:   zerolog.New(w).Level(zerolog.DebugLevel).With().Timestamp().Logger(),
		sink: &collectorRef{},
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop(), sink: &collectorRef{}}
}

// With returns a child logger that always carries the given fields.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = ctx.Interface(f.Key, f.Value)
	}
	return &Logger{zl: ctx.Logger(), sink: l.sink}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l *Logger) emit(level zerolog.Level, msg string, fields []Field) {
	event := l.zl.WithLevel(level)
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)

	if level >= zerolog.ErrorLevel {
		if c := l.sink.get(); c != nil {
			c.AddLog(level.String(), msg, fieldMap(fields), callerOutsideLogger())
		}
	}
}

// callerOutsideLogger reports the first frame that is not in this file,
// relative to the module root.
func callerOutsideLogger() string {
	// 0 here, 1 emit, 2 Error, 3 caller
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		return "unknown"
	}
	if i := strings.LastIndex(file, "Pattas/"); i >= 0 {
		file = file[i+len("Pattas/"):]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func fieldMap(fields []Field) map[string]interface{} {
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}
	return m
}

// AddCollector starts aggregating error logs, replacing any previous
// collector.
func (l *Logger) AddCollector(config *CollectionConfig) {
	if old := l.sink.swap(NewLogCollector(config)); old != nil {
		old.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if old := l.sink.swap(nil); old != nil {
		old.Close()
	}
}

// Field is one key/value on a log line. Value is what the collector sees;
// errors are kept as their message.
type Field struct {
	Key   string
	Value interface{}
	apply func(*zerolog.Event)
}

func String(key, value string) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Str(key, value) }}
}

func Strings(key string, values []string) Field {
	return String(key, strings.Join(values, ", "))
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Int(key, value) }}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value, apply: func(e *zerolog.Event) { e.Int64(key, value) }}
}

// Duration logs d in whole milliseconds.
func Duration(key string, d time.Duration) Field {
	return Int64(key, d.Milliseconds())
}

func Error(err error) Field {
	var msg interface{}
	if err != nil {
		msg = err.Error()
	}
	return Field{Key: zerolog.ErrorFieldName, Value: msg, apply: func(e *zerolog.Event) { e.Err(err) }}
}
