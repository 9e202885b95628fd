package directory

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	mmap "github.com/blevesearch/mmap-go"
)

// pollInterval is how often Local.Watch checks the manifest's mtime.
const pollInterval = 500 * time.Millisecond

// Local is the on-disk Directory backend: one subdirectory per index_id on
// a shared data root, atomic writes via the teacher's temp-file-then-rename
// pattern, and reads served through a memory-mapped file handle.
type Local struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocal returns a Directory rooted at filepath.Join(dataRoot, indexID),
// creating the directory if it doesn't exist.
func NewLocal(dataRoot, indexID string) (*Local, error) {
	root := filepath.Join(dataRoot, indexID)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create local directory root %q: %w", root, err)
	}
	return &Local{root: root, locks: make(map[string]*sync.Mutex)}, nil
}

func (l *Local) path(name string) string {
	return filepath.Join(l.root, name)
}

type mmapHandle struct {
	f *os.File
	m mmap.MMap
}

func (h *mmapHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(h.m)) {
		return 0, fmt.Errorf("read at %d: out of range (len=%d)", off, len(h.m))
	}
	n := copy(p, h.m[off:])
	var err error
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

func (h *mmapHandle) Len() int64 { return int64(len(h.m)) }

func (h *mmapHandle) Close() error {
	if err := h.m.Unmap(); err != nil {
		_ = h.f.Close()
		return err
	}
	return h.f.Close()
}

// GetFileHandle mmaps path read-only, the way core/db.go keeps segment
// files open for ReadAt without copying their contents into the heap.
func (l *Local) GetFileHandle(_ context.Context, name string) (FileHandle, error) {
	path := l.path(name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if fi.Size() == 0 {
		// mmap-go rejects zero-length mappings; an empty file is
		// legitimately readable (it just has no bytes).
		return &emptyHandle{f: f}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("mmap %q: %w", path, err)
	}

	return &mmapHandle{f: f, m: m}, nil
}

type emptyHandle struct{ f *os.File }

func (h *emptyHandle) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }
func (h *emptyHandle) Len() int64                              { return 0 }
func (h *emptyHandle) Close() error                            { return h.f.Close() }

type localWriter struct {
	f    *os.File
	path string
}

func (w *localWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *localWriter) Close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// OpenWrite creates path for sequential writes. Unlike AtomicWrite, the
// file is visible to concurrent readers under its final name as soon as
// it's created — segment files are written once and never partially
// observed because nothing reads them until the manifest commit that
// names them, same as the teacher's segment lifecycle.
func (l *Local) OpenWrite(_ context.Context, name string) (WriteCloser, error) {
	path := l.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}
	return &localWriter{f: f, path: path}, nil
}

func (l *Local) Delete(_ context.Context, name string) error {
	err := os.Remove(l.path(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (l *Local) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(l.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (l *Local) AtomicRead(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(l.path(name))
}

// AtomicWrite mirrors the teacher's writeFileAtomic: write to a sibling
// temp file, fsync it, rename over the target, then fsync the containing
// directory so the rename itself survives a crash.
func (l *Local) AtomicWrite(_ context.Context, name string, data []byte) error {
	path := l.path(name)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmpPath := path + ".tmp"

	tmpf, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file %q: %w", tmpPath, err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			_ = tmpf.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpf.Write(data); err != nil {
		return fmt.Errorf("write temp file %q: %w", tmpPath, err)
	}
	if err := tmpf.Sync(); err != nil {
		return fmt.Errorf("sync temp file %q: %w", tmpPath, err)
	}
	if err := tmpf.Close(); err != nil {
		return fmt.Errorf("close temp file %q: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %q to %q: %w", tmpPath, path, err)
	}
	cleanup = false

	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open dir %q for fsync: %w", dir, err)
	}
	defer d.Close() //nolint:errcheck

	return d.Sync()
}

func (l *Local) Sync(_ context.Context) error { return nil }

// Watch polls the manifest's mtime, since the local filesystem has no
// native change-notification primitive this module depends on.
func (l *Local) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		var lastMod int64
		tick := time.NewTicker(pollInterval)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				fi, err := os.Stat(l.path(ManifestPath))
				if err != nil {
					continue
				}
				mod := fi.ModTime().UnixNano()
				if mod != lastMod {
					lastMod = mod
					select {
					case ch <- ManifestPath:
					default:
					}
				}
			}
		}
	}()
	return ch, nil
}

// AcquireLock takes an exclusive in-process lock keyed by name. Local mode
// only ever runs one writer process per index (enforced by the deployment,
// not by this code), so a process-local mutex is sufficient; the
// chunked-kv backend uses a lease-based etcd lock instead, and the
// chunked-blob backend takes no lock.
func (l *Local) AcquireLock(_ context.Context, name string) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
