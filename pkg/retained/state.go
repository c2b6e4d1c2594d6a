package retained

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/fxamacker/cbor/v2"
)

// Frame layout constants.
const (
	// Magic marks a frame written by Save ("LWRS").
	Magic uint32 = 0x4c575253

	// HeaderSize is magic + length + CRC.
	HeaderSize = 4 + 2 + 4
)

// State errors.
var (
	ErrBlank    = errors.New("retained region holds no state")
	ErrCorrupt  = errors.New("retained state failed integrity check")
	ErrTooLarge = errors.New("retained state exceeds region size")
)

// State is everything a node keeps across deep sleep.
// It is loaded at the start of a boot and saved before sleeping.
type State struct {
	// BootCount is incremented on every boot and reset by power loss.
	BootCount uint32 `cbor:"1,keyasint"`

	// FailedJoins is the number of consecutive failed join attempts.
	FailedJoins uint32 `cbor:"2,keyasint"`

	// Session is the opaque session buffer from the radio link.
	Session []byte `cbor:"3,keyasint,omitempty"`
}

// HasSession reports whether a session buffer has been cached.
func (s *State) HasSession() bool {
	return len(s.Session) > 0
}

var (
	stateEncMode cbor.EncMode
	stateDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.CoreDetEncOptions()
	stateEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create retained state CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	stateDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create retained state CBOR decoder mode: %v", err))
	}
}

// Encode returns the framed representation of the state.
func Encode(s *State) ([]byte, error) {
	payload, err := stateEncMode.Marshal(s)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0xffff {
		return nil, ErrTooLarge
	}

	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], Magic)
	binary.BigEndian.PutUint16(frame[4:6], uint16(len(payload)))
	binary.BigEndian.PutUint32(frame[6:10], crc32.ChecksumIEEE(payload))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Load reads the state frame from the region.
func Load(r Region) (*State, error) {
	if r.Size() < HeaderSize {
		return nil, ErrTooLarge
	}

	header := make([]byte, HeaderSize)
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("read retained header: %w", err)
	}

	if binary.BigEndian.Uint32(header[0:4]) != Magic {
		if bytes.Count(header, header[:1]) == len(header) {
			return nil, ErrBlank
		}
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}

	n := int64(binary.BigEndian.Uint16(header[4:6]))
	if HeaderSize+n > r.Size() {
		return nil, fmt.Errorf("%w: length %d", ErrCorrupt, n)
	}

	payload := make([]byte, n)
	if _, err := r.ReadAt(payload, HeaderSize); err != nil {
		return nil, fmt.Errorf("read retained payload: %w", err)
	}
	if crc32.ChecksumIEEE(payload) != binary.BigEndian.Uint32(header[6:10]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	s := &State{}
	if err := stateDecMode.Unmarshal(payload, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return s, nil
}

// Save writes the state frame to the region in a single write.
func Save(r Region, s *State) error {
	frame, err := Encode(s)
	if err != nil {
		return err
	}
	if int64(len(frame)) > r.Size() {
		return fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(frame), r.Size())
	}
	if _, err := r.WriteAt(frame, 0); err != nil {
		return fmt.Errorf("write retained state: %w", err)
	}
	return nil
}

// Clear invalidates any stored frame.
func Clear(r Region) error {
	_, err := r.WriteAt(make([]byte, HeaderSize), 0)
	return err
}
