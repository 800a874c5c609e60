// Package obslog is the structured logging wrapper every other package
// logs through. Grounded on
// guiperry-HASHER/pipeline/3_DATA_TRAINER/internal/logging: a thin,
// level-gated wrapper around the standard library's log.Logger rather than
// a third-party structured logger, since the teacher itself reaches for
// stdlib log here (see DESIGN.md for why this stays stdlib-only).
package obslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level is a logging verbosity threshold.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

var levelNames = map[string]Level{
	"debug": Debug,
	"info":  Info,
	"warn":  Warn,
	"error": Error,
}

// ParseLevel maps a config string to a Level, defaulting to Info on an
// unrecognized value.
func ParseLevel(s string) Level {
	if l, ok := levelNames[s]; ok {
		return l
	}
	return Info
}

// Config controls where and how verbosely a Logger writes.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Output string // "stdout", "stderr", or a file path
}

// Logger is a level-gated wrapper around a stdlib *log.Logger, safe for
// concurrent use (the reactor goroutine logs; bridging goroutines in
// internal/device and internal/usbtransport occasionally do too, before
// handing control back via DeferIdle).
type Logger struct {
	mu     sync.Mutex
	logger *log.Logger
	level  Level
}

// New builds a Logger from cfg. A nil cfg defaults to info-level stdout.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = &Config{Level: "info", Output: "stdout"}
	}
	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("obslog: open %s: %w", cfg.Output, err)
		}
		out = f
	}
	return &Logger{
		logger: log.New(out, "", log.LstdFlags|log.Lmicroseconds),
		level:  ParseLevel(cfg.Level),
	}, nil
}

// Nop returns a Logger that discards everything, for tests and
// components that haven't been handed a real one.
func Nop() *Logger {
	return &Logger{logger: log.New(io.Discard, "", 0), level: Error + 1}
}

func (l *Logger) printf(lvl Level, tag, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level > lvl {
		return
	}
	l.logger.Printf(tag+" "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.printf(Debug, "[DEBUG]", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.printf(Info, "[INFO]", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.printf(Warn, "[WARN]", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.printf(Error, "[ERROR]", format, args...) }
