package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

// LoadError describes a fleet file that could not be used.
type LoadError struct {
	// File is the path of the fleet file, empty when parsing bytes.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Parse parses and validates a fleet from YAML bytes.
func Parse(data []byte) (*Fleet, error) {
	var f Fleet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if f.Storage.Backend == "" {
		f.Storage.Backend = BackendMemory
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads a fleet file.
func Load(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}

	f, err := Parse(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return f, nil
}

// Validate checks the storage section and every device.
func (f *Fleet) Validate() error {
	switch f.Storage.Backend {
	case BackendMemory:
	case BackendDir, BackendSQLite:
		if f.Storage.Path == "" {
			return &LoadError{Message: fmt.Sprintf("storage backend %q needs a path", f.Storage.Backend)}
		}
	default:
		return &LoadError{Message: fmt.Sprintf("unknown storage backend %q", f.Storage.Backend)}
	}

	if f.Defaults.DutyCycle < 0 || f.Defaults.DutyCycle > 1 {
		return &LoadError{Message: fmt.Sprintf("duty_cycle %v out of range [0, 1]", f.Defaults.DutyCycle)}
	}
	if len(f.Devices) == 0 {
		return &LoadError{Message: "fleet must have at least one device"}
	}

	seen := make(map[radio.EUI]string, len(f.Devices))
	for i := range f.Devices {
		d := &f.Devices[i]
		cfg, err := f.NodeConfig(d)
		if err != nil {
			return &LoadError{Message: fmt.Sprintf("device %d (%s)", i, d.Label()), Cause: err}
		}
		if other, ok := seen[cfg.Credentials.DevEUI]; ok {
			return &LoadError{Message: fmt.Sprintf("device %s duplicates DevEUI of %s", d.Label(), other)}
		}
		seen[cfg.Credentials.DevEUI] = d.Label()
		if d.Boots < 0 {
			return &LoadError{Message: fmt.Sprintf("device %s: boots must not be negative", d.Label())}
		}
	}
	return nil
}
