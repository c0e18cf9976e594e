package logger

import (
	"github.com/pion/logging"
)

var _ logging.LoggerFactory = new(Factory)

// Factory adapts this package to pion's logging.LoggerFactory, so the
// dtls engine internals log to the same sink as the rest of the process.
type Factory struct {
	Level int
}

func NewFactory(level int) *Factory {
	return &Factory{Level: level}
}

func (f *Factory) NewLogger(scope string) logging.LeveledLogger {
	return &leveledLogger{l: NewLogger(f.Level, scope)}
}

type leveledLogger struct {
	l Logger
}

// pion treats trace as more verbose than debug, we fold them together.
func (p *leveledLogger) Trace(msg string) {
	p.l.Debug(msg)
}

func (p *leveledLogger) Tracef(format string, args ...interface{}) {
	p.l.Debugf(format, args...)
}

func (p *leveledLogger) Debug(msg string) {
	p.l.Debug(msg)
}

func (p *leveledLogger) Debugf(format string, args ...interface{}) {
	p.l.Debugf(format, args...)
}

func (p *leveledLogger) Info(msg string) {
	p.l.Info(msg)
}

func (p *leveledLogger) Infof(format string, args ...interface{}) {
	p.l.Infof(format, args...)
}

func (p *leveledLogger) Warn(msg string) {
	p.l.Warn(msg)
}

func (p *leveledLogger) Warnf(format string, args ...interface{}) {
	p.l.Warnf(format, args...)
}

func (p *leveledLogger) Error(msg string) {
	p.l.Error(msg)
}

func (p *leveledLogger) Errorf(format string, args ...interface{}) {
	p.l.Errorf(format, args...)
}
