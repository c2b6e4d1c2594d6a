package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/lorawan-node/pkg/backoff"
	"github.com/mash-protocol/lorawan-node/pkg/bootcycle"
	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

// Storage backends for the durable store.
const (
	BackendMemory = "memory"
	BackendDir    = "dir"
	BackendSQLite = "sqlite"
)

// DefaultBoots is the number of boots simulated per device when the file
// does not say.
const DefaultBoots = 10

// Duration is a time.Duration written as a Go duration string ("5m", "90s").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: negative duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Fleet describes a set of simulated nodes.
type Fleet struct {
	Defaults Defaults `yaml:"defaults"`
	Storage  Storage  `yaml:"storage"`

	// Journal is the path of the CBOR boot journal (optional).
	Journal string `yaml:"journal,omitempty"`

	Devices []Device `yaml:"devices"`
}

// Defaults apply to every device unless the device overrides them.
// Unset values fall back to the bootcycle defaults; GuardDelay,
// DefensiveDelay and QuietBoots may be set to zero explicitly.
type Defaults struct {
	UplinkInterval Duration  `yaml:"uplink_interval,omitempty"`
	GuardDelay     *Duration `yaml:"guard_delay,omitempty"`
	DefensiveDelay *Duration `yaml:"defensive_delay,omitempty"`
	QuietBoots     *uint32   `yaml:"quiet_boots,omitempty"`
	BackoffBase    Duration  `yaml:"backoff_base,omitempty"`
	BackoffCap     Duration  `yaml:"backoff_cap,omitempty"`
	DutyCycle      float64   `yaml:"duty_cycle,omitempty"`
	Boots          int       `yaml:"boots,omitempty"`
}

// Storage selects where flash and retained memory live.
type Storage struct {
	// Backend is one of BackendMemory, BackendDir or BackendSQLite.
	Backend string `yaml:"backend"`

	// Path is the base directory. Each node gets a subdirectory (dir) or a
	// database file (sqlite) below it, named after its DevEUI.
	Path string `yaml:"path,omitempty"`

	// RetainedDir, if set, keeps each node's retained memory in a file
	// below it instead of in process memory.
	RetainedDir string `yaml:"retained_dir,omitempty"`
}

// Device is one simulated node.
type Device struct {
	Name    string `yaml:"name"`
	DevEUI  string `yaml:"dev_eui"`
	JoinEUI string `yaml:"join_eui"`
	AppKey  string `yaml:"app_key"`
	NwkKey  string `yaml:"nwk_key,omitempty"`

	UplinkInterval Duration `yaml:"uplink_interval,omitempty"`
	Boots          int      `yaml:"boots,omitempty"`

	Faults Faults `yaml:"faults,omitempty"`
}

// Faults are scripted failures for a device.
type Faults struct {
	LoseJoins   int `yaml:"lose_joins,omitempty"`
	BusyUplinks int `yaml:"busy_uplinks,omitempty"`
	FailSleeps  int `yaml:"fail_sleeps,omitempty"`

	// PowerLossEvery cuts power before every n-th boot (0 disables).
	PowerLossEvery int `yaml:"power_loss_every,omitempty"`
}

// Credentials decodes the device's hex identifiers and keys.
func (d *Device) Credentials() (radio.Credentials, error) {
	var creds radio.Credentials
	var err error

	if creds.DevEUI, err = radio.ParseEUI(d.DevEUI); err != nil {
		return creds, fmt.Errorf("dev_eui: %w", err)
	}
	if creds.JoinEUI, err = radio.ParseEUI(d.JoinEUI); err != nil {
		return creds, fmt.Errorf("join_eui: %w", err)
	}
	if creds.AppKey, err = radio.ParseKey(d.AppKey); err != nil {
		return creds, fmt.Errorf("app_key: %w", err)
	}
	creds.NwkKey = creds.AppKey
	if d.NwkKey != "" {
		if creds.NwkKey, err = radio.ParseKey(d.NwkKey); err != nil {
			return creds, fmt.Errorf("nwk_key: %w", err)
		}
	}
	return creds, nil
}

// Label returns the device name, or its DevEUI if it has none.
func (d *Device) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.DevEUI
}

// NodeConfig builds the controller configuration of a device.
func (f *Fleet) NodeConfig(d *Device) (bootcycle.Config, error) {
	cfg := bootcycle.DefaultConfig()

	creds, err := d.Credentials()
	if err != nil {
		return cfg, err
	}
	cfg.Credentials = creds

	if f.Defaults.UplinkInterval > 0 {
		cfg.UplinkInterval = f.Defaults.UplinkInterval.Std()
	}
	if d.UplinkInterval > 0 {
		cfg.UplinkInterval = d.UplinkInterval.Std()
	}
	if f.Defaults.GuardDelay != nil {
		cfg.GuardDelay = f.Defaults.GuardDelay.Std()
	}
	if f.Defaults.DefensiveDelay != nil {
		cfg.DefensiveDelay = f.Defaults.DefensiveDelay.Std()
	}
	if f.Defaults.QuietBoots != nil {
		cfg.QuietBoots = *f.Defaults.QuietBoots
	}
	cfg.Backoff = backoff.Policy{
		Base: f.Defaults.BackoffBase.Std(),
		Cap:  f.Defaults.BackoffCap.Std(),
	}

	return cfg, cfg.Validate()
}

// BootsFor returns how many boots to simulate for a device.
func (f *Fleet) BootsFor(d *Device) int {
	if d.Boots > 0 {
		return d.Boots
	}
	if f.Defaults.Boots > 0 {
		return f.Defaults.Boots
	}
	return DefaultBoots
}
