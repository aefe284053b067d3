package features

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// RotationTimeFormat is the timestamp format used for rotated log files.
// The format is sortable and includes millisecond precision to avoid collisions.
// Example: "20060102-150405.000" produces "20240115-143052.123"
const RotationTimeFormat = "20060102-150405.000"

// RotatedFile describes one rolled file of a log path.
type RotatedFile struct {
	Path         string    `json:"path"`
	Name         string    `json:"name"`
	RotationTime time.Time `json:"rotation_time"`
	Seq          int       `json:"seq"` // collision suffix, 0 when absent
	IsCompressed bool      `json:"is_compressed"`
	Active       bool      `json:"active"` // the live file, offered to retention on close only
}

// RotationManager rolls one log path and prunes its rolled siblings. It keeps the rolled
// history in rotation order, seeded from the directory by Load.
type RotationManager struct {
	mu             sync.Mutex
	path           string
	pattern        *regexp.Regexp
	history        []RotatedFile
	compression    CompressionType
	retention      RetentionPolicy
	now            func() time.Time
	errorHandler   func(source, dest, msg string, err error)
	metricsHandler func(string) // Function to track rotation metrics
}

// NewRotationManager creates a rotation manager for path
func NewRotationManager(path string) *RotationManager {
	clean := filepath.Clean(path)
	base := filepath.Base(clean)
	return &RotationManager{
		path: clean,
		// base.YYYYMMDD-HHMMSS.sss, optional _N collision suffix, optional .gz
		pattern: regexp.MustCompile(fmt.Sprintf(`^%s\.(\d{8}-\d{6}\.\d{3})(?:_(\d+))?(\.gz)?$`, regexp.QuoteMeta(base))),
		now:     time.Now,
	}
}

// SetErrorHandler sets the error handling function
func (r *RotationManager) SetErrorHandler(handler func(source, dest, msg string, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorHandler = handler
}

// SetMetricsHandler sets the metrics tracking function
func (r *RotationManager) SetMetricsHandler(handler func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metricsHandler = handler
}

// SetClock replaces the time source used for rotation stamps and age retention.
func (r *RotationManager) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// SetCompression sets the compression applied to each rolled file.
func (r *RotationManager) SetCompression(ct CompressionType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compression = ct
}

// SetRetention sets the retention policy applied after each rotation and on close.
func (r *RotationManager) SetRetention(p RetentionPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retention = p
}

// Path returns the managed log path.
func (r *RotationManager) Path() string {
	return r.path
}

// Load seeds the history with rolled siblings already on disk.
func (r *RotationManager) Load() error {
	files, err := r.GetRotatedFiles()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.history = files
	r.mu.Unlock()
	return nil
}

// History returns the known rolled files, oldest first.
func (r *RotationManager) History() []RotatedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RotatedFile, len(r.history))
	copy(out, r.history)
	return out
}

// RotateFile renames the closed log file with a UTC timestamp suffix, compresses it when
// configured, then applies retention. The caller must have closed the file and reopens it.
func (r *RotationManager) RotateFile() (RotatedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp := r.now().UTC()
	ts := stamp.Format(RotationTimeFormat)
	rotatedPath := fmt.Sprintf("%s.%s", r.path, ts)
	seq := 0
	for r.exists(rotatedPath) {
		seq++
		rotatedPath = fmt.Sprintf("%s.%s_%d", r.path, ts, seq)
	}

	if err := os.Rename(r.path, rotatedPath); err != nil {
		return RotatedFile{}, errors.Wrap(err, "rotating log")
	}
	r.track("rotation_completed")

	// Parse back so the stored time has the same precision as files found by Load
	rotationTime, _ := time.Parse(RotationTimeFormat, ts)
	rf := RotatedFile{
		Path:         rotatedPath,
		Name:         filepath.Base(rotatedPath),
		RotationTime: rotationTime,
		Seq:          seq,
	}

	if r.compression != CompressionNone {
		compressed, err := CompressFile(rotatedPath, r.compression)
		if err != nil {
			r.report("compress", rotatedPath, "Failed to compress rotated file", err)
		} else {
			rf.Path = compressed
			rf.Name = filepath.Base(compressed)
			rf.IsCompressed = true
			r.track("compression_completed")
		}
	}

	r.history = append(r.history, rf)
	r.applyRetention(false)
	return rf, nil
}

func (r *RotationManager) exists(path string) bool {
	if _, err := os.Lstat(path); err == nil {
		return true
	}
	if r.compression != CompressionNone {
		if _, err := os.Lstat(path + r.compression.Extension()); err == nil {
			return true
		}
	}
	return false
}

// ApplyRetention prunes rolled files. With includeActive the live file takes part as the
// newest member, which is how retention is applied when the file is closed.
func (r *RotationManager) ApplyRetention(includeActive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyRetention(includeActive)
}

func (r *RotationManager) applyRetention(includeActive bool) {
	if r.retention == nil {
		return
	}

	candidates := make([]RotatedFile, len(r.history), len(r.history)+1)
	copy(candidates, r.history)
	if includeActive {
		candidates = append(candidates, RotatedFile{
			Path:         r.path,
			Name:         filepath.Base(r.path),
			RotationTime: r.now().UTC(),
			Active:       true,
		})
	}

	selected := r.retention.Select(candidates, r.now())
	if len(selected) == 0 {
		return
	}

	doomed := make(map[string]bool, len(selected))
	for _, f := range selected {
		if f.Active || f.Path == r.path {
			continue
		}
		doomed[f.Path] = true
	}

	kept := r.history[:0]
	for _, f := range r.history {
		if !doomed[f.Path] {
			kept = append(kept, f)
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			r.report("retention", f.Path, "Failed to remove old log file", err)
			kept = append(kept, f)
			continue
		}
		r.track("retention_removed")
	}
	r.history = kept
}

// GetRotatedFiles lists rolled siblings of the log path on disk, oldest first by the
// timestamp in their names.
func (r *RotationManager) GetRotatedFiles() ([]RotatedFile, error) {
	dir := filepath.Dir(r.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading log directory")
	}

	var files []RotatedFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := r.pattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		rotationTime, err := time.Parse(RotationTimeFormat, matches[1])
		if err != nil {
			continue
		}
		seq := 0
		if matches[2] != "" {
			seq, _ = strconv.Atoi(matches[2])
		}
		files = append(files, RotatedFile{
			Path:         filepath.Join(dir, entry.Name()),
			Name:         entry.Name(),
			RotationTime: rotationTime,
			Seq:          seq,
			IsCompressed: matches[3] != "",
		})
	}

	sortRotated(files)
	return files, nil
}

func sortRotated(files []RotatedFile) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].RotationTime.Equal(files[j].RotationTime) {
			return files[i].RotationTime.Before(files[j].RotationTime)
		}
		return files[i].Seq < files[j].Seq
	})
}

func (r *RotationManager) report(source, dest, msg string, err error) {
	if r.errorHandler != nil {
		r.errorHandler(source, dest, msg, err)
	}
}

func (r *RotationManager) track(event string) {
	if r.metricsHandler != nil {
		r.metricsHandler(event)
	}
}
