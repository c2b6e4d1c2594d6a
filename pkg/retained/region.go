package retained

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// DefaultRegionSize is large enough for the frame header, the counters and a
// radio.SessionSize session buffer.
const DefaultRegionSize = 512

// Region errors.
var (
	ErrOutOfRange = errors.New("access outside retained region")
)

// Region is a fixed-size memory area that survives deep sleep.
type Region interface {
	io.ReaderAt
	io.WriterAt

	// Size returns the capacity of the region in bytes.
	Size() int64
}

// MemoryRegion is a Region backed by process memory.
// It models RTC memory in simulations and tests.
type MemoryRegion struct {
	mu  sync.Mutex
	buf []byte
}

// NewMemoryRegion creates a zeroed region of the given size.
func NewMemoryRegion(size int) *MemoryRegion {
	return &MemoryRegion{buf: make([]byte, size)}
}

// ReadAt implements io.ReaderAt.
func (r *MemoryRegion) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(r.buf)) {
		return 0, ErrOutOfRange
	}
	return copy(p, r.buf[off:]), nil
}

// WriteAt implements io.WriterAt.
func (r *MemoryRegion) WriteAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if off < 0 || off+int64(len(p)) > int64(len(r.buf)) {
		return 0, ErrOutOfRange
	}
	return copy(r.buf[off:], p), nil
}

// Size returns the region capacity.
func (r *MemoryRegion) Size() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.buf))
}

// Wipe fills the region with the given byte, emulating the undefined content
// of retained memory after a power loss.
func (r *MemoryRegion) Wipe(fill byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = fill
	}
}

// FileRegion is a Region backed by a fixed-size file.
// On a hosted node the file should live on tmpfs (for example /run or
// /dev/shm) so that it survives process restarts but not a host power cycle.
type FileRegion struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
	size int64
}

// OpenFileRegion opens or creates the backing file and sizes it.
// An existing file of a different size is truncated or extended.
func OpenFileRegion(fs afero.Fs, path string, size int64) (*FileRegion, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() != size {
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
	}
	return &FileRegion{fs: fs, path: path, size: size}, nil
}

// ReadAt implements io.ReaderAt.
func (r *FileRegion) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if off < 0 || off+int64(len(p)) > r.size {
		return 0, ErrOutOfRange
	}
	f, err := r.fs.Open(r.path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt. The file is synced before returning.
func (r *FileRegion) WriteAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if off < 0 || off+int64(len(p)) > r.size {
		return 0, ErrOutOfRange
	}
	f, err := r.fs.OpenFile(r.path, os.O_RDWR, 0600)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(p, off)
	if err != nil {
		f.Close()
		return n, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return n, err
	}
	return n, f.Close()
}

// Size returns the region capacity.
func (r *FileRegion) Size() int64 {
	return r.size
}

// Compile-time interface satisfaction checks.
var (
	_ Region = (*MemoryRegion)(nil)
	_ Region = (*FileRegion)(nil)
)
