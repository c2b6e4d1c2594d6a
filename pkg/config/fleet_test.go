package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/lorawan-node/pkg/bootcycle"
	"github.com/mash-protocol/lorawan-node/pkg/radio"
)

const fleetYAML = `
defaults:
  uplink_interval: 10m
  guard_delay: 2s
  quiet_boots: 3
  backoff_base: 30s
  backoff_cap: 2m
  duty_cycle: 0.01
  boots: 20
storage:
  backend: sqlite
  path: ./flash
  retained_dir: /dev/shm/lorawan
journal: ./boot.cbor
devices:
  - name: meter-1
    dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
    faults:
      lose_joins: 2
  - dev_eui: "70-B3-D5-7E-D0-00-00-02"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
    nwk_key: "000102030405060708090A0B0C0D0E0F"
    uplink_interval: 90s
    boots: 3
`

func TestParseFleet(t *testing.T) {
	f, err := Parse([]byte(fleetYAML))
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, f.Storage.Backend)
	assert.Equal(t, "./flash", f.Storage.Path)
	assert.Equal(t, "/dev/shm/lorawan", f.Storage.RetainedDir)
	assert.Equal(t, "./boot.cbor", f.Journal)
	assert.Equal(t, 0.01, f.Defaults.DutyCycle)
	require.Len(t, f.Devices, 2)

	assert.Equal(t, "meter-1", f.Devices[0].Label())
	assert.Equal(t, "70-B3-D5-7E-D0-00-00-02", f.Devices[1].Label())
	assert.Equal(t, 2, f.Devices[0].Faults.LoseJoins)

	assert.Equal(t, 20, f.BootsFor(&f.Devices[0]))
	assert.Equal(t, 3, f.BootsFor(&f.Devices[1]))
}

func TestNodeConfig(t *testing.T) {
	f, err := Parse([]byte(fleetYAML))
	require.NoError(t, err)

	cfg, err := f.NodeConfig(&f.Devices[0])
	require.NoError(t, err)
	assert.Equal(t, radio.EUI(0x70B3D57ED0000001), cfg.Credentials.DevEUI)
	assert.Equal(t, radio.EUI(1), cfg.Credentials.JoinEUI)
	assert.Equal(t, cfg.Credentials.AppKey, cfg.Credentials.NwkKey)
	assert.Equal(t, 10*time.Minute, cfg.UplinkInterval)
	assert.Equal(t, 2*time.Second, cfg.GuardDelay)
	assert.Equal(t, bootcycle.DefaultDefensiveDelay, cfg.DefensiveDelay)
	assert.Equal(t, uint32(3), cfg.QuietBoots)
	assert.Equal(t, []time.Duration{30 * time.Second, time.Minute, 90 * time.Second, 2 * time.Minute, 2 * time.Minute},
		cfg.Backoff.Sequence(5))

	cfg, err = f.NodeConfig(&f.Devices[1])
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.UplinkInterval)
	assert.Equal(t, byte(0x0f), cfg.Credentials.NwkKey[15])
}

func TestParseDefaults(t *testing.T) {
	f, err := Parse([]byte(`
devices:
  - dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
`))
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, f.Storage.Backend)
	assert.Equal(t, DefaultBoots, f.BootsFor(&f.Devices[0]))

	cfg, err := f.NodeConfig(&f.Devices[0])
	require.NoError(t, err)
	assert.Equal(t, bootcycle.DefaultUplinkInterval, cfg.UplinkInterval)
	assert.Equal(t, bootcycle.DefaultGuardDelay, cfg.GuardDelay)
	assert.Equal(t, bootcycle.DefaultDefensiveDelay, cfg.DefensiveDelay)
	assert.Equal(t, uint32(bootcycle.DefaultQuietBoots), cfg.QuietBoots)
	assert.Equal(t, time.Minute, cfg.Backoff.Delay(0))
}

func TestParseZeroDelays(t *testing.T) {
	f, err := Parse([]byte(`
defaults:
  guard_delay: 0s
  defensive_delay: 0s
devices:
  - dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
`))
	require.NoError(t, err)

	cfg, err := f.NodeConfig(&f.Devices[0])
	require.NoError(t, err)
	assert.Zero(t, cfg.GuardDelay)
	assert.Zero(t, cfg.DefensiveDelay)
}

func TestParseErrors(t *testing.T) {
	device := `
devices:
  - dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "devices: [", "failed to parse YAML"},
		{"no devices", "storage:\n  backend: memory\n", "at least one device"},
		{"unknown backend", "storage:\n  backend: tape\n" + device, "unknown storage backend"},
		{"dir without path", "storage:\n  backend: dir\n" + device, "needs a path"},
		{"bad duration", "defaults:\n  uplink_interval: soon\n" + device, "failed to parse YAML"},
		{"negative duration", "defaults:\n  guard_delay: -1s\n" + device, "negative duration"},
		{"duty cycle", "defaults:\n  duty_cycle: 2\n" + device, "duty_cycle"},
		{"bad key", `
devices:
  - dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E"
`, "app_key"},
		{"bad eui", `
devices:
  - dev_eui: "70B3"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
`, "dev_eui"},
		{"duplicate", device + `
  - name: twin
    dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
`, "duplicates DevEUI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fleetYAML), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Devices, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.File, "missing.yaml")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("storage:\n  backend: tape\n"), 0o644))
	_, err = Load(bad)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, bad, le.File)
}

func TestDurationMarshal(t *testing.T) {
	v, err := Duration(90 * time.Second).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", v)
}
