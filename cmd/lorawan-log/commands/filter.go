package commands

import (
	"errors"
	"fmt"

	"github.com/mash-protocol/lorawan-node/pkg/log"
)

// RunFilter appends the matching events of a journal to the journal at
// output and returns how many were copied. A partial trailing record in the
// source is dropped.
func RunFilter(path, output string, opts FilterOptions) (int, error) {
	dst, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("open output journal: %w", err)
	}

	err = scan(path, opts, func(ev log.Event) error {
		dst.Log(ev)
		return dst.Err()
	})
	if errors.Is(err, errTruncated) {
		err = nil
	}
	n := dst.Events()
	return n, errors.Join(err, dst.Close())
}
