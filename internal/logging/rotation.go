package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotationConfig holds configuration for log rotation.
type RotationConfig struct {
	// MaxSizeMB is the size in megabytes at which the file is rotated.
	// Zero disables rotation.
	MaxSizeMB int
	// MaxBackups is how many rotated files (path.1 .. path.N) are kept.
	MaxBackups int
}

// DefaultRotationConfig returns a RotationConfig with sensible defaults.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{MaxSizeMB: 10, MaxBackups: 3}
}

// RotatingWriter is an append-only file writer that rolls the file over to
// numbered backups once it grows past a size limit. It is safe for
// concurrent use.
type RotatingWriter struct {
	mu         sync.Mutex
	path       string
	limit      int64
	maxBackups int
	file       *os.File
	size       int64
}

// NewRotatingWriter opens path for appending, creating parent directories
// as needed.
func NewRotatingWriter(path string, config RotationConfig) (*RotatingWriter, error) {
	rw := &RotatingWriter{
		path:       path,
		limit:      int64(config.MaxSizeMB) << 20,
		maxBackups: config.MaxBackups,
	}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(rw.path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	rw.file = f
	rw.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past the
// limit. A failed rotation is reported on stderr and the write proceeds
// against the current file.
func (rw *RotatingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return 0, fmt.Errorf("log file %s is closed", rw.path)
	}
	if rw.limit > 0 && rw.size > 0 && rw.size+int64(len(p)) > rw.limit {
		if err := rw.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
		}
	}

	n, err := rw.file.Write(p)
	rw.size += int64(n)
	return n, err
}

func (rw *RotatingWriter) rotate() error {
	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	rw.file = nil

	if rw.maxBackups > 0 {
		_ = os.Remove(rw.backup(rw.maxBackups))
		for i := rw.maxBackups - 1; i >= 1; i-- {
			_ = os.Rename(rw.backup(i), rw.backup(i+1))
		}
		if err := os.Rename(rw.path, rw.backup(1)); err != nil {
			if oerr := rw.open(); oerr != nil {
				return fmt.Errorf("rename log file: %w (reopen: %v)", err, oerr)
			}
			return fmt.Errorf("rename log file: %w", err)
		}
	} else if err := os.Remove(rw.path); err != nil && !os.IsNotExist(err) {
		if oerr := rw.open(); oerr != nil {
			return fmt.Errorf("truncate log file: %w (reopen: %v)", err, oerr)
		}
		return fmt.Errorf("truncate log file: %w", err)
	}
	return rw.open()
}

func (rw *RotatingWriter) backup(n int) string {
	return fmt.Sprintf("%s.%d", rw.path, n)
}

// Close syncs and closes the file. Closing twice is a no-op.
func (rw *RotatingWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.file == nil {
		return nil
	}
	f := rw.file
	rw.file = nil
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync log file: %w", err)
	}
	return f.Close()
}

// Path returns the path of the live log file.
func (rw *RotatingWriter) Path() string {
	return rw.path
}

// Size returns the current size of the live log file in bytes.
func (rw *RotatingWriter) Size() int64 {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.size
}
