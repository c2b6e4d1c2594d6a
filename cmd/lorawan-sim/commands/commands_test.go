package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/lorawan-node/pkg/backoff"
	"github.com/mash-protocol/lorawan-node/pkg/bootcycle"
	"github.com/mash-protocol/lorawan-node/pkg/config"
	"github.com/mash-protocol/lorawan-node/pkg/log"
	"github.com/mash-protocol/lorawan-node/pkg/sim"
)

const twoDevices = `
defaults:
  boots: 3
devices:
  - name: meter-1
    dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
    faults:
      lose_joins: 2
  - name: meter-2
    dev_eui: "70B3D57ED0000002"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
`

func parseFleet(t *testing.T, yaml string) *config.Fleet {
	t.Helper()
	f, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	return f
}

func TestFleetRunMemory(t *testing.T) {
	fleet := &Fleet{File: parseFleet(t, twoDevices)}

	summaries, err := fleet.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Empty(t, Failed(summaries))

	m1 := summaries[0]
	assert.Equal(t, "meter-1", m1.Name)
	assert.Equal(t, "70B3D57ED0000001", m1.DevEUI)
	assert.Equal(t, 3, m1.Boots)
	assert.Equal(t, sim.ExitDeepSleep, m1.Last)
	assert.Equal(t, 2, m1.Stats.LostJoins)
	assert.Equal(t, 1, m1.Stats.Joins)
	assert.Equal(t, 1, m1.Stats.Uplinks)
	assert.Equal(t, time.Minute+2*time.Minute+bootcycle.DefaultUplinkInterval, m1.Slept)

	m2 := summaries[1]
	assert.Equal(t, 1, m2.Stats.Joins)
	assert.Equal(t, 3, m2.Stats.Uplinks)
	assert.Equal(t, 3*bootcycle.DefaultUplinkInterval, m2.Slept)
}

func TestFleetRunDirAndRetainedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	file := parseFleet(t, twoDevices+`
storage:
  backend: dir
  path: /var/lib/lorawan
  retained_dir: /run/lorawan
`)
	fleet := &Fleet{File: file, Fs: fs, Parallel: 1}

	summaries, err := fleet.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, Failed(summaries))

	ok, err := afero.Exists(fs, "/var/lib/lorawan/70B3D57ED0000001/lorawan/nonces")
	require.NoError(t, err)
	assert.True(t, ok)

	var out bytes.Buffer
	require.NoError(t, ShowRetained(fs, "/run/lorawan/70B3D57ED0000002.ram", false, &out))
	assert.Contains(t, out.String(), "Boot count:    3")
	assert.Contains(t, out.String(), "Failed joins:  0")
	assert.Contains(t, out.String(), "256 bytes")
}

func TestFleetRunSQLite(t *testing.T) {
	dir := t.TempDir()
	file := parseFleet(t, twoDevices)
	file.Storage = config.Storage{Backend: config.BackendSQLite, Path: dir}

	summaries, err := (&Fleet{File: file}).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, Failed(summaries))

	for _, name := range []string{"70B3D57ED0000001.db", "70B3D57ED0000002.db"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestFleetPowerLossKeepsNonces(t *testing.T) {
	file := parseFleet(t, `
storage:
  backend: dir
  path: /flash
devices:
  - dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
    boots: 4
    faults:
      power_loss_every: 2
`)
	fleet := &Fleet{File: file, Fs: afero.NewMemMapFs()}

	summaries, err := fleet.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.NoError(t, s.Err)
	assert.Equal(t, 4, s.Boots)
	assert.Equal(t, 2, s.Stats.Joins, "each power loss forces a join")
	assert.Zero(t, s.Stats.ReplayedJoins)
	assert.Equal(t, 4, s.Stats.Uplinks)
}

func TestFleetSleepFaultRestarts(t *testing.T) {
	file := parseFleet(t, `
devices:
  - dev_eui: "70B3D57ED0000001"
    join_eui: "0000000000000001"
    app_key: "2B7E151628AED2A6ABF7158809CF4F3C"
    boots: 2
    faults:
      fail_sleeps: 1
      busy_uplinks: 1
`)
	summaries, err := (&Fleet{File: file}).Run(context.Background())
	require.NoError(t, err)

	s := summaries[0]
	assert.NoError(t, s.Err)
	assert.Equal(t, 2, s.Boots)
	assert.Equal(t, 1, s.Stats.Joins)
	assert.Equal(t, 1, s.Stats.Uplinks)
	assert.Equal(t, bootcycle.DefaultUplinkInterval, s.Slept)
}

func TestFleetCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := (&Fleet{File: parseFleet(t, twoDevices)}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFleetJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.cbor")
	fl, err := log.NewFileLogger(path)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fleet := &Fleet{
		File:    parseFleet(t, twoDevices),
		Logger:  logger,
		Journal: log.NewMultiLogger(fl, log.NewSlogAdapter(logger)),
	}
	_, err = fleet.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, fl.Close())

	cat := log.CategoryBoot
	r, err := log.NewFilteredReader(path, log.Filter{Category: &cat, DevEUI: "70B3D57ED0000001"})
	require.NoError(t, err)
	defer r.Close()

	boots := 0
	for {
		_, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		boots++
	}
	assert.Equal(t, 3, boots)
}

func TestRunFleet(t *testing.T) {
	dir := t.TempDir()
	fleetPath := filepath.Join(dir, "fleet.yaml")
	require.NoError(t, os.WriteFile(fleetPath, []byte(twoDevices), 0o644))
	journal := filepath.Join(dir, "boot.cbor")

	var out, logs bytes.Buffer
	err := RunFleet(context.Background(), RunOptions{
		FleetPath: fleetPath,
		Journal:   journal,
		LogLevel:  "debug",
	}, &out, &logs)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "70B3D57ED0000002")
	assert.Contains(t, out.String(), "meter-1")
	assert.Contains(t, out.String(), "DEEP_SLEEP")
	assert.Contains(t, logs.String(), "starting fleet")

	info, err := os.Stat(journal)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestRunFleetErrors(t *testing.T) {
	var out bytes.Buffer

	err := RunFleet(context.Background(), RunOptions{FleetPath: "x.yaml", LogLevel: "loud"}, &out, io.Discard)
	assert.ErrorContains(t, err, "unknown log level")

	err = RunFleet(context.Background(), RunOptions{FleetPath: filepath.Join(t.TempDir(), "missing.yaml"), LogLevel: "info"}, &out, io.Discard)
	var le *config.LoadError
	assert.ErrorAs(t, err, &le)
}

func TestServeMetrics(t *testing.T) {
	addr, stop, err := serveMetrics("127.0.0.1:0", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer stop()

	_, err = (&Fleet{File: parseFleet(t, twoDevices)}).Run(context.Background())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "lorawan_node_boots_total")
	assert.Contains(t, string(body), "lorawan_node_sleep_seconds")
}

func TestFailed(t *testing.T) {
	summaries := []NodeSummary{
		{Name: "a"},
		{Name: "b", Err: bootcycle.ErrRadioInit},
		{Name: "c", Err: context.Canceled},
	}
	failed := Failed(summaries)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].Name)
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, PrintSummary(&out, []NodeSummary{
		{Name: "meter-1", DevEUI: "70B3D57ED0000001", Boots: 3, Last: sim.ExitDeepSleep},
		{Name: "meter-2", DevEUI: "70B3D57ED0000002", Boots: 1, Last: sim.ExitReturned, Err: bootcycle.ErrRadioInit},
	}))
	assert.Contains(t, out.String(), "meter-1")
	assert.Contains(t, out.String(), bootcycle.ErrRadioInit.Error())
}

func TestPrintBackoff(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, PrintBackoff(&out, backoff.DefaultPolicy(), 4))

	text := out.String()
	assert.Contains(t, text, "1m0s")
	assert.Contains(t, text, "3m0s")
	assert.Contains(t, text, "9m0s", "running total after four failed joins")
	assert.NotContains(t, text, "4m0s")
}

func TestShowRetained(t *testing.T) {
	fs := afero.NewMemMapFs()

	err := ShowRetained(fs, "/run/missing.ram", false, io.Discard)
	assert.Error(t, err)

	file := parseFleet(t, twoDevices+`
storage:
  retained_dir: /run/lorawan
`)
	_, err = (&Fleet{File: file, Fs: fs}).Run(context.Background())
	require.NoError(t, err)

	path := "/run/lorawan/70B3D57ED0000001.ram"
	var out bytes.Buffer
	require.NoError(t, ShowRetained(fs, path, true, &out))
	assert.Contains(t, out.String(), "Cleared")

	err = ShowRetained(fs, path, false, io.Discard)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}
