// Copyright 2024 The Emitcore Authors
// This file is part of emitcore.

// Package emitlog is the emitter's own structured logger, matching the
// teacher repo's `log.Debug(msg, "k1", v1, "k2", v2)` keyval call shape
// used throughout its consensus and networking packages. It adds
// rate-limited trace emission at the `const`, `fixup`, and `emit`
// boundaries named by the `debug-level` configuration option.
package emitlog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"
)

// Level mirrors the teacher's log-level ordering.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelError: color.New(color.FgRed, color.Bold),
	LevelWarn:  color.New(color.FgYellow),
	LevelInfo:  color.New(color.FgGreen),
	LevelDebug: color.New(color.FgCyan),
	LevelTrace: color.New(color.FgMagenta),
}

// Logger is the emitter's keyval logger. It is safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	level    Level

	// traceLimiters rate-limits trace emission independently per named
	// boundary (`const`, `fixup`, `emit`), so a tight emission loop can't
	// flood a debug session even at debug-level trace.
	traceLimiters map[string]*rate.Limiter
}

// New creates a Logger writing to w at the given level. If w is nil,
// stdout is used, wrapped through mattn/go-colorable so ANSI colors still
// render on a Windows console, with color disabled automatically when
// the target isn't a real terminal (mattn/go-isatty).
func New(w io.Writer, level Level) *Logger {
	colorize := true
	if w == nil {
		w = colorable.NewColorableStdout()
		colorize = isatty.IsTerminal(os.Stdout.Fd())
	}
	return &Logger{
		out:           w,
		colorize:      colorize,
		level:         level,
		traceLimiters: make(map[string]*rate.Limiter),
	}
}

func (l *Logger) log(lvl Level, msg string, kv []interface{}) {
	if lvl > l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	tag := lvl.String()
	if l.colorize {
		if c, ok := levelColor[lvl]; ok {
			tag = c.Sprint(tag)
		}
	}
	fmt.Fprintf(l.out, "[%s] %s", tag, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", kv[i], kv[i+1])
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Error(msg string, kv ...interface{}) { l.log(LevelError, msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.log(LevelDebug, msg, kv) }

// Trace emits at the named boundary ("const", "fixup", "emit"), subject
// to a per-boundary rate limit so a hot emission loop at debug-level
// trace doesn't overwhelm the sink. A nil Logger is a valid no-op, so
// callers that only sometimes carry a configured logger (pkg/emit) don't
// need a presence check at every trace call site.
func (l *Logger) Trace(boundary, msg string, kv ...interface{}) {
	if l == nil || LevelTrace > l.level {
		return
	}
	l.mu.Lock()
	lim, ok := l.traceLimiters[boundary]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(200), 50)
		l.traceLimiters[boundary] = lim
	}
	l.mu.Unlock()

	if !lim.Allow() {
		return
	}
	l.log(LevelTrace, boundary+": "+msg, kv)
}
