package log

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
)

// FileLogger appends boot events to a journal file. Nodes of a simulated
// fleet may share one FileLogger.
//
// A sleep event ends the boot, so the file is synced after each one. The
// first write error disables the logger and is kept for Err; the boot cycle
// itself never sees it.
type FileLogger struct {
	mu     sync.Mutex
	file   afero.File
	enc    *cbor.Encoder
	events int
	err    error
}

// NewFileLogger opens path on the OS filesystem for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	return OpenFileLogger(afero.NewOsFs(), path)
}

// OpenFileLogger opens path on fs for appending, creating it and its
// directory if needed. A partial record left at the end of the file by a
// power cut is cut off first, so new events stay readable.
func OpenFileLogger(fs afero.Fs, path string) (*FileLogger, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	end, err := completeLength(f)
	if err == nil {
		err = f.Truncate(end)
	}
	if err == nil {
		_, err = f.Seek(end, io.SeekStart)
	}
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileLogger{file: f, enc: NewEncoder(f)}, nil
}

// completeLength returns the length of the leading run of complete records
// in f.
func completeLength(f afero.File) (int64, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return 0, err
	}
	rest := data
	for len(rest) > 0 {
		var ev Event
		next, err := journalDec.UnmarshalFirst(rest, &ev)
		if err != nil {
			break
		}
		rest = next
	}
	return int64(len(data) - len(rest)), nil
}

func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || l.err != nil {
		return
	}
	if l.err = l.enc.Encode(event); l.err != nil {
		return
	}
	l.events++
	if event.Category == CategorySleep {
		l.err = l.file.Sync()
	}
}

// Events returns how many events were written.
func (l *FileLogger) Events() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// Err returns the write error that disabled the logger, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the file. Later calls to Log and Close do nothing.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

var _ Logger = (*FileLogger)(nil)
