package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// DefaultBufferSize batches writes without holding much memory
	DefaultBufferSize = 32 * 1024
	// DefaultFlushInterval bounds how long a record can sit in the buffer
	DefaultFlushInterval = 5 * time.Second

	logFilePermissions = 0o640
)

// BufferedFileWriter is a thread-safe buffered append-only log file with periodic flushing.
type BufferedFileWriter struct {
	mu        sync.Mutex
	file      *os.File
	writer    *bufio.Writer
	stopFlush chan struct{}
	flushDone chan struct{}
	closed    bool
}

// NewBufferedFileWriter opens filePath in append mode and starts the flush loop.
func NewBufferedFileWriter(filePath string) (*BufferedFileWriter, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filePath, err)
	}

	w := &BufferedFileWriter{
		file:      file,
		writer:    bufio.NewWriterSize(file, DefaultBufferSize),
		stopFlush: make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	go w.autoFlushLoop(DefaultFlushInterval)

	return w, nil
}

func (w *BufferedFileWriter) autoFlushLoop(interval time.Duration) {
	defer close(w.flushDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopFlush:
			return
		case <-ticker.C:
			_ = w.Flush()
		}
	}
}

// Write appends p to the buffer.
func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.writer.Write(p)
}

// Flush pushes buffered bytes to the OS.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.writer.Flush()
}

// Close stops the flush loop, syncs, and closes the file. Safe to call twice.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.stopFlush)
	<-w.flushDone

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	if err := w.writer.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush buffer: %w", err))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("failed to sync file: %w", err))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close file: %w", err))
	}
	return errors.Join(errs...)
}

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
