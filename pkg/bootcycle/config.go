package bootcycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mash-protocol/lorawan-node/pkg/backoff"
	"github.com/mash-protocol/lorawan-node/pkg/durable"
	"github.com/mash-protocol/lorawan-node/pkg/log"
	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

// Configuration defaults.
const (
	// DefaultUplinkInterval is the sleep between regular uplinks.
	DefaultUplinkInterval = 5 * time.Minute

	// DefaultGuardDelay separates a fresh join from the first uplink.
	DefaultGuardDelay = 1 * time.Second

	// DefaultDefensiveDelay is the wait before a forced restart after deep
	// sleep failed.
	DefaultDefensiveDelay = 5 * time.Minute

	// DefaultQuietBoots is the number of boots after power loss on which
	// restore failures are expected and not reported.
	DefaultQuietBoots = 2

	// DefaultNamespace is the durable namespace holding the nonces.
	DefaultNamespace = "lorawan"

	// DefaultNonceKey is the durable key of the nonce buffer.
	DefaultNonceKey = "nonces"
)

// ErrInvalidConfig is returned by Validate and New.
var ErrInvalidConfig = errors.New("invalid boot cycle configuration")

// Status is handed to the payload function before each uplink.
type Status struct {
	BootCount   uint32
	FailedJoins uint32

	// FCnt is the frame counter the uplink will use.
	FCnt uint32

	// Activation tells whether this boot resumed or joined.
	Activation radio.Activation
}

// PayloadFunc builds the application payload for the boot's uplink.
type PayloadFunc func(ctx context.Context, st Status) ([]byte, error)

// DownlinkFunc receives an application downlink.
type DownlinkFunc func(port uint8, payload []byte)

// Config configures a Controller.
type Config struct {
	// Credentials for over-the-air activation.
	Credentials radio.Credentials

	// UplinkInterval is the sleep after a completed uplink. Links that
	// implement radio.DutyCycler may lengthen it.
	UplinkInterval time.Duration

	// Backoff computes the sleep after a failed join.
	Backoff backoff.Policy

	// GuardDelay is waited after a successful join, before the uplink.
	GuardDelay time.Duration

	// DefensiveDelay is waited before a forced restart when deep sleep fails.
	DefensiveDelay time.Duration

	// QuietBoots suppresses restore failures while BootCount <= QuietBoots.
	QuietBoots uint32

	// Namespace and NonceKey locate the nonce buffer in the durable store.
	Namespace string
	NonceKey  string

	// Payload supplies the uplink payload. Nil sends an empty payload.
	Payload PayloadFunc

	// OnDownlink is called with any application downlink (optional).
	OnDownlink DownlinkFunc

	// Logger is the optional logger for operational output.
	Logger *slog.Logger

	// Journal receives boot events (optional).
	Journal log.Logger

	// Now returns the current time for journal timestamps (default time.Now).
	Now func() time.Time
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UplinkInterval: DefaultUplinkInterval,
		Backoff:        backoff.DefaultPolicy(),
		GuardDelay:     DefaultGuardDelay,
		DefensiveDelay: DefaultDefensiveDelay,
		QuietBoots:     DefaultQuietBoots,
		Namespace:      DefaultNamespace,
		NonceKey:       DefaultNonceKey,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.UplinkInterval <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("uplink interval must be positive"))
	}
	if c.GuardDelay < 0 || c.DefensiveDelay < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("delays must not be negative"))
	}
	if c.Credentials.DevEUI == 0 {
		return errors.Join(ErrInvalidConfig, errors.New("DevEUI is required"))
	}
	if c.Namespace == "" || len(c.Namespace) > durable.MaxKeyLength {
		return errors.Join(ErrInvalidConfig, errors.New("invalid durable namespace"))
	}
	if c.NonceKey == "" || len(c.NonceKey) > durable.MaxKeyLength {
		return errors.Join(ErrInvalidConfig, errors.New("invalid nonce key"))
	}
	return nil
}
