// Package log provides the process-wide logger: a logrus-backed Logger with a
// pattern formatter and pluggable appenders.
package log

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	once   sync.Once
	mu     sync.RWMutex
	logger Logger
)

// GetLogger returns the process logger. Before Init it returns an info-level
// console logger.
func GetLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = newOrFallback(DefaultConfig())
	}
	return logger
}

// newOrFallback builds a logger from cfg, or a plain logrus logger when cfg
// cannot be applied.
func newOrFallback(cfg *LoggerConfig) Logger {
	l, err := New(cfg)
	if err != nil {
		return &logrusAdapter{entry: logrus.NewEntry(logrus.New())}
	}
	return l
}

// Init installs the process logger from cfg. Only the first call has effect.
func Init(cfg *LoggerConfig) error {
	var err error
	once.Do(func() {
		var l Logger
		l, err = New(cfg)
		if err != nil {
			return
		}
		mu.Lock()
		logger = l
		mu.Unlock()
	})
	return err
}
