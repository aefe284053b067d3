package backends

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/wayneeseguin/fanlog/pkg/features"
)

// DefaultBufferSize for file operations
const DefaultBufferSize = 32 * 1024

// FileOptions configures a file target.
type FileOptions struct {
	Rotation    features.RotationPolicy
	Retention   features.RetentionPolicy
	Compression features.CompressionType
	// Lock takes an advisory flock on the log file around each write, for several
	// processes appending to the same path.
	Lock       bool
	BufferSize int
	Clock      func() time.Time

	ErrorHandler   func(source, dest, msg string, err error)
	MetricsHandler func(string)
}

// FileBackendImpl is a buffered log file that rotates itself according to its policy.
type FileBackendImpl struct {
	file     *os.File
	writer   *bufio.Writer
	lock     *flock.Flock
	path     string
	size     int64
	openedAt time.Time
	opts     FileOptions
	rotation *features.RotationManager
	stats    BackendStats
	closed   bool
}

// NewFileBackend opens (or creates) path for appending. Rolled siblings already present
// seed the rotation history so retention also covers files from earlier runs.
func NewFileBackend(path string, opts FileOptions) (*FileBackendImpl, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	cleanPath := filepath.Clean(path)
	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, errors.Wrap(err, "create directory")
	}

	fb := &FileBackendImpl{
		path:  cleanPath,
		opts:  opts,
		stats: BackendStats{Kind: "file", Path: cleanPath},
	}

	if opts.Rotation != nil || opts.Retention != nil || opts.Compression != features.CompressionNone {
		rm := features.NewRotationManager(cleanPath)
		rm.SetClock(opts.Clock)
		rm.SetCompression(opts.Compression)
		rm.SetRetention(opts.Retention)
		rm.SetErrorHandler(opts.ErrorHandler)
		rm.SetMetricsHandler(opts.MetricsHandler)
		if err := rm.Load(); err != nil {
			return nil, err
		}
		fb.rotation = rm
	}

	if opts.Lock {
		fb.lock = flock.New(cleanPath)
	}

	if err := fb.open(); err != nil {
		return nil, err
	}
	return fb, nil
}

func (fb *FileBackendImpl) open() error {
	file, err := os.OpenFile(fb.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644) // #nosec G302 - log files need to be readable
	if err != nil {
		return errors.Wrap(err, "open file")
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close() // Best effort close on error path
		return errors.Wrap(err, "stat file")
	}

	fb.file = file
	fb.writer = bufio.NewWriterSize(file, fb.opts.BufferSize)
	fb.size = info.Size()
	fb.openedAt = fb.opts.Clock()
	return nil
}

// Write writes a log entry, rotating first when the policy asks for it.
func (fb *FileBackendImpl) Write(entry []byte) (int, error) {
	if fb.closed {
		return 0, os.ErrClosed
	}

	if fb.opts.Rotation != nil {
		state := features.RotationState{
			Path:     fb.path,
			Size:     fb.size,
			OpenedAt: fb.openedAt,
			Now:      fb.opts.Clock(),
		}
		if fb.opts.Rotation.ShouldRotate(state, entry) {
			if err := fb.Rotate(); err != nil {
				fb.stats.ErrorCount++
				return 0, err
			}
		}
	}

	if fb.lock != nil {
		if err := fb.lock.Lock(); err != nil {
			fb.stats.ErrorCount++
			return 0, errors.Wrap(err, "acquire lock")
		}
		defer func() {
			_ = fb.lock.Unlock() // Best effort unlock
		}()
	}

	n, err := fb.writer.Write(entry)
	fb.size += int64(n)
	fb.stats.WriteCount++
	fb.stats.BytesWritten += uint64(n)
	fb.stats.LastWrite = time.Now()
	if err != nil {
		fb.stats.ErrorCount++
		return n, err
	}
	// With a lock held the bytes must reach the file before it is released
	if fb.lock != nil {
		return n, fb.writer.Flush()
	}
	return n, nil
}

// Rotate closes the current file, rolls it aside and opens a fresh one at the same path.
func (fb *FileBackendImpl) Rotate() error {
	if fb.rotation == nil {
		fb.rotation = features.NewRotationManager(fb.path)
		fb.rotation.SetClock(fb.opts.Clock)
	}
	if err := fb.closeFile(); err != nil {
		return err
	}
	if _, err := fb.rotation.RotateFile(); err != nil {
		// Keep logging to the old file rather than losing records
		if openErr := fb.open(); openErr != nil {
			return errors.Wrap(openErr, "reopen after failed rotation")
		}
		return err
	}
	return fb.open()
}

func (fb *FileBackendImpl) closeFile() error {
	if fb.file == nil {
		return nil
	}
	flushErr := fb.writer.Flush()
	closeErr := fb.file.Close()
	fb.file = nil
	fb.writer = nil
	if flushErr != nil {
		return errors.Wrap(flushErr, "flush")
	}
	if closeErr != nil {
		return errors.Wrap(closeErr, "close file")
	}
	return nil
}

// Flush flushes buffered data to disk
func (fb *FileBackendImpl) Flush() error {
	if fb.writer != nil {
		return fb.writer.Flush()
	}
	return nil
}

// Sync flushes and fsyncs the file
func (fb *FileBackendImpl) Sync() error {
	if err := fb.Flush(); err != nil {
		return err
	}
	if fb.file != nil {
		return fb.file.Sync()
	}
	return nil
}

// Close flushes and closes the file, then applies retention with the closed file
// counted as the newest member. Later calls are no-ops.
func (fb *FileBackendImpl) Close() error {
	if fb.closed {
		return nil
	}
	fb.closed = true

	err := fb.closeFile()
	if fb.rotation != nil {
		fb.rotation.ApplyRetention(true)
	}
	return err
}

// Size returns the current file size
func (fb *FileBackendImpl) Size() int64 {
	return fb.size
}

// Path returns the file path
func (fb *FileBackendImpl) Path() string {
	return fb.path
}

// RotatedFiles returns the rolled files known to this target, oldest first.
func (fb *FileBackendImpl) RotatedFiles() []features.RotatedFile {
	if fb.rotation == nil {
		return nil
	}
	return fb.rotation.History()
}

// Stats returns target statistics
func (fb *FileBackendImpl) Stats() BackendStats {
	s := fb.stats
	s.Size = fb.size
	return s
}
