package log

import (
	"errors"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/afero"
)

// Filter selects journal events. Zero fields match everything.
type Filter struct {
	BootID string
	DevEUI string

	Category *Category
	Stage    *Stage

	// MinBootCount drops events of earlier boots since power on.
	MinBootCount uint32

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether event passes every criterion of f.
func (f *Filter) Match(event Event) bool {
	switch {
	case f.BootID != "" && event.BootID != f.BootID:
		return false
	case f.DevEUI != "" && event.DevEUI != f.DevEUI:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.Stage != nil && event.Stage != *f.Stage:
		return false
	case event.BootCount < f.MinBootCount:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	return true
}

// Reader iterates over the events of a journal file.
//
// A node that loses power while writing leaves a partial record at the end
// of the file. The Reader stops there with io.EOF and reports it through
// Truncated.
type Reader struct {
	file      afero.File
	dec       *cbor.Decoder
	filter    Filter
	truncated bool
}

// NewReader opens a journal on the OS filesystem.
func NewReader(path string) (*Reader, error) {
	return OpenReader(afero.NewOsFs(), path, Filter{})
}

// NewFilteredReader opens a journal on the OS filesystem and yields only the
// events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	return OpenReader(afero.NewOsFs(), path, filter)
}

// OpenReader opens a journal on fs.
func OpenReader(fs afero.Fs, path string, filter Filter) (*Reader, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, dec: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF at the end of the journal.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.dec.Decode(&event)
		switch {
		case errors.Is(err, io.ErrUnexpectedEOF):
			r.truncated = true
			return Event{}, io.EOF
		case err != nil:
			return Event{}, err
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// Truncated reports whether the journal ended in a partial record.
func (r *Reader) Truncated() bool { return r.truncated }

func (r *Reader) Close() error { return r.file.Close() }
