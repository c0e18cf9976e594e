package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestDefaultLogger(t *testing.T) {
	tests := []struct {
		name   string
		level  int
		expect []string
		absent []string
	}{
		{
			name:   "error level only",
			level:  LevelError,
			expect: []string{"[ERROR]"},
			absent: []string{"[WARN]", "[INFO]", "[DEBUG]"},
		},
		{
			name:   "all levels",
			level:  LevelAll,
			expect: []string{"[ERROR]", "[WARN]", "[INFO]", "[DEBUG]"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			l := NewLogger(tt.level, "test")
			l.SetOutput(buf)

			l.Error("abc", 1, true)
			l.Warn("abc", 1, true)
			l.Info("abc", 1, true)
			l.Debug("abc", 1, true)
			l.Errorf("output %s, %d, %v", "abc", 1, true)
			l.Warnf("output %s, %d, %v", "abc", 1, true)
			l.Infof("output %s, %d, %v", "abc", 1, true)
			l.Debugf("output %s, %d, %v", "abc", 1, true)

			out := buf.String()
			for _, e := range tt.expect {
				if !strings.Contains(out, e) {
					t.Error("expect output contains:", e)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(out, a) {
					t.Error("expect output not contains:", a)
				}
			}
		})
	}
}

func TestStubLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewNopLogger()
	l.SetOutput(buf)
	l.SetLevel(LevelAll)
	l.Error("abc")
	l.Warnf("output %s", "abc")
	if buf.Len() != 0 {
		t.Error("stub logger should not write")
	}
}

func TestPionFactory(t *testing.T) {
	f := NewFactory(LevelAll)
	pl := f.NewLogger("dtls")
	if pl == nil {
		t.Fatal("factory returned nil logger")
	}
	pl.Trace("trace")
	pl.Debugf("debug %d", 1)
	pl.Info("info")
	pl.Warn("warn")
	pl.Errorf("error %v", true)
}
