// Package logger builds the process logger. The terminal UI owns stdout, so
// log output goes to a file under the florae home directory.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing text lines with full timestamps to w.
func New(w io.Writer, level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger.New: %w", err)
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    true,
		DisableColors:    true,
		QuoteEmptyFields: true,
	})
	return l, nil
}

// OpenFile opens (appending) the log file at path and returns a logger
// writing to it. The caller closes the returned file.
func OpenFile(path, level string) (*logrus.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("logger.OpenFile: create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("logger.OpenFile: %w", err)
	}
	l, err := New(f, level)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, nil, err
	}
	return l, f, nil
}

// Discard returns a logger that drops everything. Used as the default in
// components constructed without a logger, and in tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
