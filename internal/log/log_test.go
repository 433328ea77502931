package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatter(t *testing.T) {
	f := &formatter{pattern: "%time [%level] %field %msg", time: "15:04:05"}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "dropped",
		Data:    logrus.Fields{"reason": "truncated", "op": "pop", "len": 4},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "03:04:05 [warning] len=4,op=pop,reason=truncated dropped\n", string(out))
}

func TestFormatter_CallerWithoutReportCaller(t *testing.T) {
	f := &formatter{pattern: "%caller %func\n", time: time.RFC3339}
	out, err := f.Format(&logrus.Entry{Data: logrus.Fields{}})
	require.NoError(t, err)
	assert.Equal(t, "unknown unknown\n", string(out))
}

func TestNew_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithWriter(&LoggerConfig{Level: "debug", Pattern: "[%level] %field %msg"}, &buf)
	require.NoError(t, err)

	assert.True(t, l.IsDebugEnabled())
	assert.False(t, l.IsTraceEnabled())

	l.WithField("port", 3).WithError(errors.New("gone")).Debug("detached")
	l.Trace("hidden")
	assert.Equal(t, "[debug] error=gone,port=3 detached\n", buf.String())
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_UnknownAppender(t *testing.T) {
	_, err := New(&LoggerConfig{Level: "info", Appenders: []AppenderConfig{{Type: "kafka"}}})
	assert.Error(t, err)

	_, err = New(&LoggerConfig{Level: "info", Appenders: []AppenderConfig{{Type: AppenderFile}}})
	assert.Error(t, err)
}

func TestNew_FileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ovs-nsh.log")
	l, err := New(&LoggerConfig{
		Level:     "info",
		Pattern:   "%msg",
		Appenders: []AppenderConfig{{Type: AppenderFile, File: FileAppenderOpt{Filename: path, MaxSize: 1}}},
	})
	require.NoError(t, err)

	l.WithFields(map[string]interface{}{"k": "v"}).Info("written to file")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "written to file"))
}

func TestMultiWriter(t *testing.T) {
	var a, b bytes.Buffer
	mw := NewMultiWriter().Add(&a).Add(&b)
	assert.Equal(t, 2, mw.Len())

	n, err := mw.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())
}

func TestGetLogger_NeverNil(t *testing.T) {
	assert.NotNil(t, GetLogger())
}

func TestNewOrFallback(t *testing.T) {
	tests := []struct {
		name string
		cfg  *LoggerConfig
	}{
		{"bad level", &LoggerConfig{Level: "loud", Appenders: []AppenderConfig{{Type: AppenderConsole}}}},
		{"bad appender", &LoggerConfig{Level: "info", Appenders: []AppenderConfig{{Type: "kafka"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)

			l := newOrFallback(tt.cfg)
			require.NotNil(t, l)
			assert.True(t, l.IsInfoEnabled())
			assert.NotPanics(t, func() { l.WithField("op", "pop").Debug("dropped") })
		})
	}

	assert.NotNil(t, newOrFallback(DefaultConfig()))
}
