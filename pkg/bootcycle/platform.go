package bootcycle

import (
	"context"
	"time"
)

// ResetCause is the platform's reason for the current boot.
type ResetCause uint8

const (
	// ResetUnknown is reported when the platform cannot tell.
	ResetUnknown ResetCause = iota

	// ResetPowerOn follows a full power loss.
	ResetPowerOn

	// ResetBrownout follows a supply voltage drop.
	ResetBrownout

	// ResetDeepSleep follows a timed wake from deep sleep.
	ResetDeepSleep

	// ResetSoftware follows a requested restart.
	ResetSoftware

	// ResetWatchdog follows a watchdog timeout.
	ResetWatchdog
)

// String returns a human-readable reset cause.
func (c ResetCause) String() string {
	switch c {
	case ResetUnknown:
		return "UNKNOWN"
	case ResetPowerOn:
		return "POWER_ON"
	case ResetBrownout:
		return "BROWNOUT"
	case ResetDeepSleep:
		return "DEEP_SLEEP"
	case ResetSoftware:
		return "SOFTWARE"
	case ResetWatchdog:
		return "WATCHDOG"
	default:
		return "UNKNOWN"
	}
}

// Cold reports whether retained memory must be assumed lost.
func (c ResetCause) Cold() bool {
	switch c {
	case ResetDeepSleep, ResetSoftware, ResetWatchdog:
		return false
	default:
		return true
	}
}

// Platform is the hardware the controller runs on.
type Platform interface {
	// ResetCause returns why the current boot happened.
	ResetCause() ResetCause

	// DeepSleep powers down for d. It does not return on success: the node
	// resets on wake. A return, with or without an error, means sleep failed.
	DeepSleep(d time.Duration) error

	// Restart forces a reset. It does not return on success.
	Restart() error

	// Delay waits for d while staying powered.
	Delay(ctx context.Context, d time.Duration) error
}
