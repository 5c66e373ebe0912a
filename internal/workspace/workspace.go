// Package workspace provides job-scoped scratch directories. Every
// intermediate file of a job lives under its own directory, which is
// locked while the job runs and removed when it ends.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/noricha-vr/twitter-video-translator/pkg/log"
)

const (
	dirPrefix = "job_"
	lockName  = ".lock"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type Manager struct {
	root  string
	now   func() time.Time
	group singleflight.Group
}

func NewManager(root string) *Manager {
	return &Manager{root: root, now: time.Now}
}

func (m *Manager) Root() string {
	return m.root
}

// Open creates and locks a fresh directory for one job. An empty id gets
// a random one.
func (m *Manager) Open(id string) (*Workspace, error) {
	id = unsafeChars.ReplaceAllString(strings.TrimSpace(id), "")
	if id == "" {
		id = uuid.NewString()
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	// the random suffix keeps two jobs opened in the same second apart
	name := fmt.Sprintf("%s%s_%s_%s", dirPrefix, m.now().Format("20060102_150405"), short, uuid.NewString()[:8])
	dir := filepath.Join(m.root, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockName))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		_ = os.RemoveAll(dir)
		if err == nil {
			err = fmt.Errorf("already locked")
		}
		return nil, fmt.Errorf("lock workspace %s: %w", name, err)
	}

	log.Debug("Opened workspace %s", dir)
	return &Workspace{ID: id, dir: dir, lock: lock}, nil
}

// Workspace is the scratch area of a single job.
type Workspace struct {
	ID string

	dir  string
	lock *flock.Flock

	mu     sync.Mutex
	keep   bool
	closed bool
}

func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name ...string) string {
	return filepath.Join(append([]string{w.dir}, name...)...)
}

// EnsureDir creates a subdirectory and returns its path.
func (w *Workspace) EnsureDir(name string) (string, error) {
	p := w.Path(name)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	return p, nil
}

func (w *Workspace) SegmentClipPath(index int) string {
	return w.Path("segments", fmt.Sprintf("segment_%04d.wav", index))
}

func (w *Workspace) StyleClipPath(index int) string {
	return w.Path("style", fmt.Sprintf("source_%04d.wav", index))
}

func (w *Workspace) ChunkDir() string {
	return w.Path("chunks")
}

// Keep leaves the directory in place on Close, for debugging.
func (w *Workspace) Keep() {
	w.mu.Lock()
	w.keep = true
	w.mu.Unlock()
}

// Close releases the lock and removes the directory unless Keep was called.
// It is safe to call more than once.
func (w *Workspace) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var removeErr error
	if !w.keep {
		removeErr = os.RemoveAll(w.dir)
	}
	if err := w.lock.Unlock(); err != nil {
		log.Warn("Failed to release workspace lock %s: %v", w.dir, err)
	}
	if removeErr != nil {
		return fmt.Errorf("remove workspace: %w", removeErr)
	}
	if w.keep {
		log.Info("Kept workspace %s", w.dir)
	}
	return nil
}

type SweepResult struct {
	Removed []string
	Skipped []string
	Errors  []CleanupError
}

type CleanupError struct {
	Path  string
	Error error
}

// Sweep removes job directories older than maxAge whose lock is free.
// Concurrent calls share one pass.
func (m *Manager) Sweep(ctx context.Context, maxAge time.Duration) SweepResult {
	v, _, _ := m.group.Do("sweep", func() (any, error) {
		return m.sweep(ctx, maxAge), nil
	})
	return v.(SweepResult)
}

func (m *Manager) sweep(ctx context.Context, maxAge time.Duration) SweepResult {
	var result SweepResult

	entries, err := os.ReadDir(m.root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: m.root, Error: err})
		}
		return result
	}

	cutoff := m.now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		lock := flock.New(filepath.Join(dir, lockName))
		ok, err := lock.TryLock()
		if err != nil || !ok {
			result.Skipped = append(result.Skipped, dir)
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
			log.Warn("Failed to remove stale workspace %s: %v", dir, err)
		} else {
			result.Removed = append(result.Removed, dir)
			log.Info("Removed stale workspace %s (age %s)", dir, m.now().Sub(info.ModTime()).Round(time.Second))
		}
		_ = lock.Unlock()
	}
	return result
}

// DirInfo describes one job directory.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// List returns the job directories under the root.
func (m *Manager) List() ([]DirInfo, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.root, entry.Name())
		dirs = append(dirs, DirInfo{Name: entry.Name(), Path: path, ModTime: info.ModTime(), Size: dirSize(path)})
	}
	return dirs, nil
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
