// Package datalog manages the numbered files the raw sensor stream is
// recorded to.
package datalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// MaxFileNumber is the highest log number that will be created.
const MaxFileNumber = 65533

// ErrTooManyLogs is returned when every log number up to MaxFileNumber is taken.
var ErrTooManyLogs = errors.New("datalog: too many log files")

// Next picks the log file to record into, starting the search at start.
// It returns the first number whose file does not exist yet, or whose file
// exists but is empty, together with the number to start from next time.
// A fresh file is created so a concurrent search cannot take it.
func Next(dir, pattern string, start int) (name string, next int, err error) {
	if start < 0 {
		start = 0
	}

	for n := start; n <= MaxFileNumber; n++ {
		name = fmt.Sprintf(pattern, n)
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			if err := f.Close(); err != nil {
				return "", start, fmt.Errorf("failed to close %s: %w", path, err)
			}
			return name, n + 1, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", start, fmt.Errorf("failed to create %s: %w", path, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return "", start, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.Mode().IsRegular() && info.Size() == 0 {
			return name, n, nil
		}
	}

	return "", start, ErrTooManyLogs
}

// File is a log opened for appending.
type File struct {
	f    *os.File
	name string
}

// Open opens dir/name for appending, creating it if needed.
func Open(dir, name string) (*File, error) {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}
	return &File{f: f, name: path}, nil
}

// Name returns the path of the log.
func (l *File) Name() string {
	return l.name
}

// Write appends p to the log.
func (l *File) Write(p []byte) (int, error) {
	return l.f.Write(p)
}

// Sync flushes written data to stable storage.
func (l *File) Sync() error {
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync log %s: %w", l.name, err)
	}
	return nil
}

// Close syncs and closes the log.
func (l *File) Close() error {
	return multierr.Combine(l.Sync(), l.f.Close())
}
