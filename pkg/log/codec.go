package log

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Journal records are CBOR maps with integer keys, appended back to back.
// Timestamps keep nanoseconds so that events of one boot stay ordered.
var (
	journalEnc = mustEncMode(cbor.EncOptions{
		Sort:          cbor.SortCoreDeterministic,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	})
	journalDec = mustDecMode(cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
		MaxMapPairs: 64,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	m, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("journal encoder options: %v", err))
	}
	return m
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	m, err := opts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("journal decoder options: %v", err))
	}
	return m
}

// EncodeEvent returns the journal record of event.
func EncodeEvent(event Event) ([]byte, error) {
	return journalEnc.Marshal(event)
}

// DecodeEvent parses one journal record.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	err := journalDec.Unmarshal(data, &event)
	return event, err
}

// NewEncoder returns a stream encoder writing journal records to w.
func NewEncoder(w io.Writer) *cbor.Encoder { return journalEnc.NewEncoder(w) }

// NewDecoder returns a stream decoder reading journal records from r.
func NewDecoder(r io.Reader) *cbor.Decoder { return journalDec.NewDecoder(r) }
