// Package logging provides the leveled, field-based logger used across the queue engine.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string such as "info" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger is implemented by anything the engine can log through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is a structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

// F is a convenience function to create a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Err attaches an error under the "error" key.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Debug(string, ...Field) {}
func (Nop) Info(string, ...Field)  {}
func (Nop) Warn(string, ...Field)  {}
func (Nop) Error(string, ...Field) {}

// StdLogger writes "[LEVEL] msg k=v ..." lines through a stdlib *log.Logger.
type StdLogger struct {
	minLevel Level
	logger   *log.Logger
}

// New creates a logger writing to w at or above minLevel.
func New(w io.Writer, minLevel Level) *StdLogger {
	return &StdLogger{
		minLevel: minLevel,
		logger:   log.New(w, "", log.LstdFlags|log.LUTC),
	}
}

// NewStderr is New(os.Stderr, minLevel).
func NewStderr(minLevel Level) *StdLogger {
	return New(os.Stderr, minLevel)
}

func (l *StdLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *StdLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *StdLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *StdLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *StdLogger) log(level Level, msg string, fields []Field) {
	if level < l.minLevel {
		return
	}
	if len(fields) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.Key)
		b.WriteByte('=')
		switch v := f.Value.(type) {
		case string:
			if strings.ContainsAny(v, " \t\"") {
				fmt.Fprintf(&b, "%q", v)
			} else {
				b.WriteString(v)
			}
		default:
			fmt.Fprint(&b, v)
		}
	}
	l.logger.Printf("[%s] %s %s", level, msg, b.String())
}
