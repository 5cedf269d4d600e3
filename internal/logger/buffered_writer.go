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
	DefaultBufferSize    = 32 * 1024
	DefaultFlushInterval = 5 * time.Second
	LogFilePermissions   = 0o600
)

var errWriterClosed = errors.New("log writer is closed")

// BufferedFileWriter appends to a file through a buffer. The first write
// after a flush arms a timer, so an idle writer holds no timer and no
// entry waits longer than the flush interval.
type BufferedFileWriter struct {
	path     string
	interval time.Duration

	mu    sync.Mutex
	file  *os.File
	buf   *bufio.Writer
	timer *time.Timer
}

// BufferedWriterOption configures a BufferedFileWriter.
type BufferedWriterOption func(*BufferedFileWriter)

// WithFlushInterval sets the delay before buffered data is flushed. Zero
// leaves flushing to Flush and Close.
func WithFlushInterval(d time.Duration) BufferedWriterOption {
	return func(w *BufferedFileWriter) { w.interval = d }
}

// NewBufferedFileWriter opens path for appending, creating it if needed.
func NewBufferedFileWriter(path string, opts ...BufferedWriterOption) (*BufferedFileWriter, error) {
	w := &BufferedFileWriter{path: path, interval: DefaultFlushInterval}
	for _, opt := range opts {
		opt(w)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, DefaultBufferSize)
	return w, nil
}

func (w *BufferedFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		return 0, errWriterClosed
	}
	n, err := w.buf.Write(p)
	if w.interval > 0 && w.timer == nil && w.buf.Buffered() > 0 {
		w.timer = time.AfterFunc(w.interval, w.timedFlush)
	}
	return n, err
}

func (w *BufferedFileWriter) timedFlush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timer = nil
	if w.buf != nil {
		// a failure here resurfaces on the next Write or Flush
		_ = w.buf.Flush()
	}
}

// Flush hands buffered data to the OS without fsync.
func (w *BufferedFileWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *BufferedFileWriter) flushLocked() error {
	if w.buf == nil {
		return nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}
	return nil
}

// Close flushes, syncs and closes the file. Further calls return nil.
func (w *BufferedFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buf == nil {
		return nil
	}
	err := errors.Join(
		w.flushLocked(),
		w.file.Sync(),
		w.file.Close(),
	)
	w.buf = nil
	w.file = nil
	return err
}

// FilePath returns the path of the underlying file.
func (w *BufferedFileWriter) FilePath() string { return w.path }

var _ io.WriteCloser = (*BufferedFileWriter)(nil)
