package logger

import (
	"fmt"
	"log"
	"os"
)

// FileLogger writes prefixed log lines to a file and owns the file handle.
type FileLogger struct {
	file   *os.File
	logger *log.Logger
}

// NewFileLogger opens (or creates) the given path for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &FileLogger{
		file:   f,
		logger: log.New(f, "", log.LstdFlags),
	}, nil
}

// Info logs an informational message with [INFO] prefix.
func (f *FileLogger) Info(format string, args ...interface{}) {
	f.logger.Printf("[INFO] "+format, args...)
}

// Warning logs a warning message with [WARNING] prefix.
func (f *FileLogger) Warning(format string, args ...interface{}) {
	f.logger.Printf("[WARNING] "+format, args...)
}

// Error logs an error message with [ERROR] prefix.
func (f *FileLogger) Error(format string, args ...interface{}) {
	f.logger.Printf("[ERROR] "+format, args...)
}

// Close closes the underlying file. Safe to call multiple times.
func (f *FileLogger) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
