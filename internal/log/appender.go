package log

import (
	"fmt"
	"io"
	"os"
)

// MultiWriter fans every write out to all of its writers. A failing writer
// does not stop the others; the last error is returned.
type MultiWriter struct {
	writers []io.Writer
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	for _, w := range m.writers {
		_, e := w.Write(p)
		if e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.writers = append(m.writers, writer)
	return m
}

// Len returns the number of writers.
func (m *MultiWriter) Len() int {
	return len(m.writers)
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func buildAppenders(appenders []AppenderConfig) (*MultiWriter, error) {
	mw := NewMultiWriter()
	for _, a := range appenders {
		switch a.Type {
		case AppenderConsole, "":
			mw.Add(os.Stdout)
		case AppenderFile:
			if a.File.Filename == "" {
				return nil, fmt.Errorf("log: file appender without filename")
			}
			mw.AddFileAppender(a.File)
		default:
			return nil, fmt.Errorf("log: unknown appender type %q", a.Type)
		}
	}
	if mw.Len() == 0 {
		mw.Add(os.Stdout)
	}
	return mw, nil
}
