package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/mash-protocol/lorawan-node/pkg/log"
)

// errTruncated is reported next to otherwise complete output.
var errTruncated = errors.New("journal ends in a partial record")

// scan calls fn for every event of the journal at path that passes opts.
// It returns errTruncated if the file ended mid-record.
func scan(path string, opts FilterOptions, fn func(log.Event) error) error {
	filter, err := opts.Build()
	if err != nil {
		return err
	}
	r, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read journal: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if r.Truncated() {
		return errTruncated
	}
	return nil
}
