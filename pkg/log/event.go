package log

import "time"

// Event represents one boot journal entry.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// BootID uniquely identifies the boot (UUID).
	BootID string `cbor:"2,keyasint"`

	// DevEUI identifies the node.
	DevEUI string `cbor:"3,keyasint,omitempty"`

	// BootCount is the boot counter after it was incremented.
	BootCount uint32 `cbor:"4,keyasint"`

	// Category classifies the event.
	Category Category `cbor:"5,keyasint"`

	// Stage of the boot cycle that produced the event.
	Stage Stage `cbor:"6,keyasint"`

	// Type-specific payload (one of these will be set).
	Boot   *BootEvent      `cbor:"10,keyasint,omitempty"`
	Join   *JoinEvent      `cbor:"11,keyasint,omitempty"`
	Uplink *UplinkEvent    `cbor:"12,keyasint,omitempty"`
	Sleep  *SleepEvent     `cbor:"13,keyasint,omitempty"`
	Error  *ErrorEventData `cbor:"14,keyasint,omitempty"`
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryBoot marks the start of a boot.
	CategoryBoot Category = 0
	// CategoryJoin is an activation or join attempt.
	CategoryJoin Category = 1
	// CategoryUplink is an uplink exchange.
	CategoryUplink Category = 2
	// CategorySleep is the sleep that ends a boot.
	CategorySleep Category = 3
	// CategoryError is a reported error.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryBoot:
		return "BOOT"
	case CategoryJoin:
		return "JOIN"
	case CategoryUplink:
		return "UPLINK"
	case CategorySleep:
		return "SLEEP"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Stage identifies a step of the boot cycle.
type Stage uint8

const (
	StageRestore  Stage = 0
	StageRadio    Stage = 1
	StageActivate Stage = 2
	StageJoin     Stage = 3
	StageUplink   Stage = 4
	StagePersist  Stage = 5
	StageSleep    Stage = 6
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageRestore:
		return "RESTORE"
	case StageRadio:
		return "RADIO"
	case StageActivate:
		return "ACTIVATE"
	case StageJoin:
		return "JOIN"
	case StageUplink:
		return "UPLINK"
	case StagePersist:
		return "PERSIST"
	case StageSleep:
		return "SLEEP"
	default:
		return "UNKNOWN"
	}
}

// BootEvent captures how the node came up.
type BootEvent struct {
	// ResetCause is the platform reset reason.
	ResetCause string `cbor:"1,keyasint"`

	// Cold is set when retained memory did not survive.
	Cold bool `cbor:"2,keyasint,omitempty"`

	// FailedJoins is the streak carried into this boot.
	FailedJoins uint32 `cbor:"3,keyasint,omitempty"`

	// HasSession is set when a session buffer was restored.
	HasSession bool `cbor:"4,keyasint,omitempty"`
}

// JoinEvent captures an activation attempt.
type JoinEvent struct {
	// Forced is set for an over-the-air join, unset for a session resume.
	Forced bool `cbor:"1,keyasint,omitempty"`

	// Success reports whether the node is now joined.
	Success bool `cbor:"2,keyasint,omitempty"`

	// Activation is the activation kind on success.
	Activation string `cbor:"3,keyasint,omitempty"`

	// FailedJoins is the streak after this attempt.
	FailedJoins uint32 `cbor:"4,keyasint,omitempty"`

	// Reason is the failure message, if any.
	Reason string `cbor:"5,keyasint,omitempty"`
}

// UplinkEvent captures an uplink exchange.
type UplinkEvent struct {
	// FCnt is the uplink frame counter.
	FCnt uint32 `cbor:"1,keyasint"`

	// PayloadSize is the application payload length.
	PayloadSize int `cbor:"2,keyasint"`

	// Outcome is the exchange outcome name.
	Outcome string `cbor:"3,keyasint,omitempty"`

	// DownlinkPort and DownlinkSize describe a received downlink.
	DownlinkPort uint8 `cbor:"4,keyasint,omitempty"`
	DownlinkSize int   `cbor:"5,keyasint,omitempty"`
}

// SleepEvent captures the sleep that ends a boot.
type SleepEvent struct {
	// Duration is the requested sleep time.
	Duration time.Duration `cbor:"1,keyasint"`

	// Reason is why the node sleeps (interval, join retry, defensive).
	Reason string `cbor:"2,keyasint"`
}

// ErrorEventData captures a reported error.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Fatal is set when the error halted the boot.
	Fatal bool `cbor:"2,keyasint,omitempty"`
}
