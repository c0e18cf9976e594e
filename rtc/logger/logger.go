package logger

import (
	"fmt"
	"io"
	"log"
	"sync"
)

var (
	_ Logger = new(stubLogger)
	_ Logger = new(defaultLogger)
)

type Logger interface {
	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	Warn(v ...interface{})
	Warnf(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	SetLevel(level int)
	SetOutput(w io.Writer)
}

const (
	LevelError = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelAll
)

// NewLogger returns a scoped logger, the scope shows up as a prefix on
// every line.
func NewLogger(level int, scope string) Logger {
	return &defaultLogger{
		level: level,
		scope: fmt.Sprintf("[%s]", scope),
	}
}

// NewNopLogger returns a logger that discards everything, for callers who
// want the handshake quiet.
func NewNopLogger() Logger {
	return &stubLogger{}
}

type stubLogger struct{}

func (l *stubLogger) SetLevel(_ int) {
}

func (l *stubLogger) SetOutput(_ io.Writer) {
}

func (l *stubLogger) Error(_ ...interface{}) {
}

func (l *stubLogger) Errorf(_ string, _ ...interface{}) {
}

func (l *stubLogger) Warn(_ ...interface{}) {
}

func (l *stubLogger) Warnf(_ string, _ ...interface{}) {
}

func (l *stubLogger) Info(_ ...interface{}) {
}

func (l *stubLogger) Infof(_ string, _ ...interface{}) {
}

func (l *stubLogger) Debug(_ ...interface{}) {
}

func (l *stubLogger) Debugf(_ string, _ ...interface{}) {
}

type defaultLogger struct {
	// level is only mutated through SetLevel, reads on the log path are unlocked.
	level int
	scope string
	m     sync.Mutex
}

func (l *defaultLogger) SetLevel(level int) {
	l.m.Lock()
	l.level = level
	l.m.Unlock()
}

func (l *defaultLogger) SetOutput(w io.Writer) {
	log.SetOutput(w)
}

const defaultCallDepth = 3

func (l *defaultLogger) output(tag string, v ...interface{}) {
	v = append([]interface{}{l.scope, tag}, v...)
	_ = log.Output(defaultCallDepth, fmt.Sprintln(v...))
}

func (l *defaultLogger) Error(v ...interface{}) {
	if l.level >= LevelError {
		l.output("[ERROR]", v...)
	}
}

func (l *defaultLogger) Errorf(format string, v ...interface{}) {
	if l.level >= LevelError {
		l.output("[ERROR]", fmt.Sprintf(format, v...))
	}
}

func (l *defaultLogger) Warn(v ...interface{}) {
	if l.level >= LevelWarn {
		l.output("[WARN]", v...)
	}
}

func (l *defaultLogger) Warnf(format string, v ...interface{}) {
	if l.level >= LevelWarn {
		l.output("[WARN]", fmt.Sprintf(format, v...))
	}
}

func (l *defaultLogger) Info(v ...interface{}) {
	if l.level >= LevelInfo {
		l.output("[INFO]", v...)
	}
}

func (l *defaultLogger) Infof(format string, v ...interface{}) {
	if l.level >= LevelInfo {
		l.output("[INFO]", fmt.Sprintf(format, v...))
	}
}

func (l *defaultLogger) Debug(v ...interface{}) {
	if l.level >= LevelDebug {
		l.output("[DEBUG]", v...)
	}
}

func (l *defaultLogger) Debugf(format string, v ...interface{}) {
	if l.level >= LevelDebug {
		l.output("[DEBUG]", fmt.Sprintf(format, v...))
	}
}

var std = &defaultLogger{
	level: LevelInfo,
	scope: "[STD]",
}

func Error(v ...interface{}) {
	std.Error(v...)
}

func Errorf(format string, v ...interface{}) {
	std.Errorf(format, v...)
}

func Warn(v ...interface{}) {
	std.Warn(v...)
}

func Warnf(format string, v ...interface{}) {
	std.Warnf(format, v...)
}

func Info(v ...interface{}) {
	std.Info(v...)
}

func Infof(format string, v ...interface{}) {
	std.Infof(format, v...)
}

func Debug(v ...interface{}) {
	std.Debug(v...)
}

func Debugf(format string, v ...interface{}) {
	std.Debugf(format, v...)
}

func SetLevel(level int) {
	std.SetLevel(level)
}

func SetOutput(w io.Writer) {
	std.SetOutput(w)
}
