package radio

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Persisted buffer sizes agreed with the link implementation.
const (
	// NonceSize is the length of the nonce buffer.
	NonceSize = 16

	// SessionSize is the length of the session buffer.
	SessionSize = 256
)

// Link errors.
var (
	ErrNotInitialized = errors.New("radio not initialized")
	ErrJoinFailed     = errors.New("join failed")
	ErrNoSession      = errors.New("no session to restore")
	ErrBufferSize     = errors.New("buffer has wrong size")
	ErrInvalidBuffer  = errors.New("buffer failed validation")
	ErrNotJoined      = errors.New("not joined")
)

// EUI is a 64-bit LoRaWAN extended unique identifier.
type EUI uint64

// String returns the EUI as 16 upper-case hex digits.
func (e EUI) String() string {
	return fmt.Sprintf("%016X", uint64(e))
}

// ParseEUI decodes 16 hex digits. Separators ('-' or ':') are ignored.
func ParseEUI(s string) (EUI, error) {
	s = strings.NewReplacer("-", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, err
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("EUI must be 8 bytes, got %d", len(b))
	}
	return EUI(binary.BigEndian.Uint64(b)), nil
}

// Key is a 128-bit AES root key.
type Key [16]byte

// ParseKey decodes a 32 digit hex string.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(b) != len(k) {
		return k, fmt.Errorf("key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Credentials identify the node for over-the-air activation.
type Credentials struct {
	JoinEUI EUI
	DevEUI  EUI
	AppKey  Key
	NwkKey  Key
}

// Activation reports how a successful Activate joined the network.
type Activation uint8

const (
	// ActivationRestored means a saved session was resumed without traffic.
	ActivationRestored Activation = iota

	// ActivationNewSession means a join exchange created a new session.
	ActivationNewSession
)

// String returns a human-readable activation name.
func (a Activation) String() string {
	switch a {
	case ActivationRestored:
		return "RESTORED"
	case ActivationNewSession:
		return "NEW_SESSION"
	default:
		return "UNKNOWN"
	}
}

// Outcome is the result of a completed uplink exchange.
type Outcome uint8

const (
	// OutcomeNoDownlink means the uplink was sent and nothing was received.
	OutcomeNoDownlink Outcome = iota

	// OutcomeDownlink means a downlink (or acknowledgement) was received.
	OutcomeDownlink
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeNoDownlink:
		return "NO_DOWNLINK"
	case OutcomeDownlink:
		return "DOWNLINK"
	default:
		return "UNKNOWN"
	}
}

// Uplink is the result of Exchange.
type Uplink struct {
	Outcome Outcome

	// FCnt is the frame counter used for the uplink.
	FCnt uint32

	// Port and Payload are set when Outcome is OutcomeDownlink.
	Port    uint8
	Payload []byte
}

// Link is the LoRaWAN radio link. Calls are made sequentially from a single
// goroutine; implementations need not be safe for concurrent use.
type Link interface {
	// Init brings up the radio. An error is fatal for the boot.
	Init() error

	// Activate resumes the saved session or, with forceJoin, joins anew.
	Activate(ctx context.Context, creds Credentials, forceJoin bool) (Activation, error)

	// Exchange sends one uplink and waits for the receive windows.
	Exchange(ctx context.Context, payload []byte) (Uplink, error)

	// Nonces returns a copy of the current nonce buffer (NonceSize bytes).
	Nonces() []byte

	// SetNonces restores a nonce buffer saved earlier.
	SetNonces(buf []byte) error

	// Session returns a copy of the current session buffer (SessionSize bytes).
	Session() []byte

	// SetSession restores a session buffer saved earlier.
	SetSession(buf []byte) error

	// FCntUp returns the next uplink frame counter.
	FCntUp() uint32
}

// DutyCycler is implemented by links that track regulatory airtime.
type DutyCycler interface {
	// TimeUntilUplink returns how long the node must wait before the next
	// uplink is allowed.
	TimeUntilUplink() time.Duration
}
