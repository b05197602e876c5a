// Package logutil configures the process logger.
package logutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	LogFileName  = "ai_book_reader.log"
	maxSizeBytes = 10 * 1024 * 1024 // 10 MB
	maxArchives  = 3
)

// Setup configures the standard logrus logger. With file logging enabled,
// output goes to dir/ai_book_reader.log with size-based rotation (10MB, max
// 3 archives); otherwise to stderr. An unknown level falls back to warn.
func Setup(enableFileLogging bool, dir, level string) *logrus.Logger {
	logger := logrus.StandardLogger()
	Configure(logger, enableFileLogging, dir, level)
	return logger
}

// Configure applies the same settings to an arbitrary logger.
func Configure(logger *logrus.Logger, enableFileLogging bool, dir, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.WarnLevel
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if !enableFileLogging {
		logger.SetOutput(os.Stderr)
		return
	}
	w, err := NewRotatingWriter(filepath.Join(dir, LogFileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		logger.SetOutput(os.Stderr)
		return
	}
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
}

// RotatingWriter appends to a file and rotates it to .1, .2, .3 once it
// would exceed the size limit.
type RotatingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
}

var _ io.WriteCloser = (*RotatingWriter)(nil)

func NewRotatingWriter(path string) (*RotatingWriter, error) {
	return newRotatingWriter(path, maxSizeBytes)
}

func newRotatingWriter(path string, maxSize int64) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	w := &RotatingWriter{path: path, maxSize: maxSize}
	w.rotateIfNeeded(0)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, err
	}
	w.f = f
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// naive rotation check per write
	if st, err := w.f.Stat(); err == nil && st.Size()+int64(len(p)) > w.maxSize {
		_ = w.f.Close()
		w.rotateIfNeeded(int64(len(p)))
		nf, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return 0, err
		}
		w.f = nf
	}
	return w.f.Write(p)
}

func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

func (w *RotatingWriter) rotateIfNeeded(incoming int64) {
	st, err := os.Stat(w.path)
	if err != nil || st.Size()+incoming <= w.maxSize {
		return
	}
	_ = os.Remove(w.archiveName(maxArchives))
	for i := maxArchives - 1; i >= 1; i-- {
		_ = os.Rename(w.archiveName(i), w.archiveName(i+1))
	}
	_ = os.Rename(w.path, w.archiveName(1))
}

func (w *RotatingWriter) archiveName(n int) string { return fmt.Sprintf("%s.%d", w.path, n) }
