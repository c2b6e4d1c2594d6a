package durable

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Dir is a filesystem backend. Each namespace is a directory under the base
// directory and each key a file within it.
type Dir struct {
	fs      afero.Fs
	baseDir string
}

// NewDir creates a filesystem backend rooted at baseDir.
func NewDir(fs afero.Fs, baseDir string) *Dir {
	return &Dir{fs: fs, baseDir: baseDir}
}

// Open returns a handle on namespace, creating its directory.
func (d *Dir) Open(namespace string) (Store, error) {
	if err := validName(namespace); err != nil {
		return nil, err
	}
	dir := filepath.Join(d.baseDir, namespace)
	if err := d.fs.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &dirStore{fs: d.fs, dir: dir}, nil
}

type dirStore struct {
	fs     afero.Fs
	dir    string
	closed bool
}

func (s *dirStore) Exists(key string) (bool, error) {
	if s.closed {
		return false, ErrClosed
	}
	if err := validName(key); err != nil {
		return false, err
	}
	return afero.Exists(s.fs, s.keyPath(key))
}

func (s *dirStore) Get(key string) ([]byte, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := validName(key); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, s.keyPath(key))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes to a temporary file which is then renamed over the key file, so
// a power loss mid-write leaves either the old or the new value.
func (s *dirStore) Put(key string, value []byte) error {
	if s.closed {
		return ErrClosed
	}
	if err := validName(key); err != nil {
		return err
	}

	next := s.keyPath(key) + ".next"
	f, err := s.fs.OpenFile(next, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err = f.Write(value); err != nil {
		f.Close()
		return err
	} else if err = f.Sync(); err != nil {
		f.Close()
		return err
	} else if err = f.Close(); err != nil {
		return err
	}
	return s.fs.Rename(next, s.keyPath(key))
}

func (s *dirStore) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.closed = true
	return nil
}

func (s *dirStore) keyPath(key string) string { return filepath.Join(s.dir, key) }

// Compile-time interface satisfaction checks.
var (
	_ Opener = (*Dir)(nil)
	_ Store  = (*dirStore)(nil)
)
