package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/mash-protocol/lorawan-node/pkg/config"
	"github.com/mash-protocol/lorawan-node/pkg/durable"
	"github.com/mash-protocol/lorawan-node/pkg/log"
	"github.com/mash-protocol/lorawan-node/pkg/retained"
	"github.com/mash-protocol/lorawan-node/pkg/sim"
)

// NodeSummary is the outcome of one simulated device.
type NodeSummary struct {
	Name   string
	DevEUI string
	Boots  int
	Slept  time.Duration
	Last   sim.Exit
	Err    error
	Stats  sim.DeviceStats
}

// Fleet runs the devices of a fleet file against one simulated network.
// Fs holds dir stores and retained files (default: the OS filesystem);
// SQLite databases always live on the OS filesystem.
type Fleet struct {
	File     *config.Fleet
	Fs       afero.Fs
	Logger   *slog.Logger
	Journal  log.Logger
	Parallel int
}

type fleetNode struct {
	dev    *config.Device
	node   *sim.Node
	boots  int
	closer io.Closer
}

// Run simulates every device and returns one summary per device, in file
// order. A fatal boot error stops only the affected device.
func (f *Fleet) Run(ctx context.Context) ([]NodeSummary, error) {
	net := sim.NewNetwork()

	nodes := make([]*fleetNode, 0, len(f.File.Devices))
	defer func() {
		for _, fn := range nodes {
			if fn.closer != nil {
				fn.closer.Close()
			}
		}
	}()
	for i := range f.File.Devices {
		fn, err := f.build(net, &f.File.Devices[i])
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", f.File.Devices[i].Label(), err)
		}
		nodes = append(nodes, fn)
	}

	summaries := make([]NodeSummary, len(nodes))
	group, ctx := errgroup.WithContext(ctx)
	if f.Parallel > 0 {
		group.SetLimit(f.Parallel)
	}
	for i, fn := range nodes {
		i, fn := i, fn
		group.Go(func() error {
			summaries[i] = f.runNode(ctx, fn)
			return ctx.Err()
		})
	}
	if err := group.Wait(); err != nil {
		return summaries, err
	}

	for i, fn := range nodes {
		stats, err := net.Stats(fn.node.Config.Credentials.DevEUI)
		if err != nil {
			return summaries, err
		}
		summaries[i].Stats = stats
	}
	return summaries, nil
}

func (f *Fleet) build(net *sim.Network, dev *config.Device) (*fleetNode, error) {
	cfg, err := f.File.NodeConfig(dev)
	if err != nil {
		return nil, err
	}
	cfg.Journal = f.Journal
	if f.Logger != nil {
		cfg.Logger = f.Logger.With("device", dev.Label())
	}

	node, err := sim.NewNode(net, cfg)
	if err != nil {
		return nil, err
	}
	node.Radio.DutyCycle = f.File.Defaults.DutyCycle

	eui := cfg.Credentials.DevEUI
	if dev.Faults.LoseJoins > 0 {
		if err := net.LoseJoins(eui, dev.Faults.LoseJoins); err != nil {
			return nil, err
		}
	}
	if dev.Faults.BusyUplinks > 0 {
		if err := net.BusyUplinks(eui, dev.Faults.BusyUplinks); err != nil {
			return nil, err
		}
	}
	node.Board.FailSleeps(dev.Faults.FailSleeps)

	fn := &fleetNode{dev: dev, node: node, boots: f.File.BootsFor(dev)}
	name := eui.String()

	switch f.File.Storage.Backend {
	case config.BackendDir:
		node.Store = durable.NewDir(f.fs(), filepath.Join(f.File.Storage.Path, name))
	case config.BackendSQLite:
		if err := os.MkdirAll(f.File.Storage.Path, 0o700); err != nil {
			return nil, err
		}
		db, err := durable.OpenSQLite(filepath.Join(f.File.Storage.Path, name+".db"))
		if err != nil {
			return nil, err
		}
		node.Store = db
		fn.closer = db
	}

	if dir := f.File.Storage.RetainedDir; dir != "" {
		region, err := retained.OpenFileRegion(f.fs(), filepath.Join(dir, name+".ram"), retained.DefaultRegionSize)
		if err != nil {
			return nil, err
		}
		node.Region = region
	}
	return fn, nil
}

func (f *Fleet) runNode(ctx context.Context, fn *fleetNode) NodeSummary {
	sum := NodeSummary{
		Name:   fn.dev.Label(),
		DevEUI: fn.node.Config.Credentials.DevEUI.String(),
	}
	every := fn.dev.Faults.PowerLossEvery

	for i := 0; i < fn.boots; i++ {
		if ctx.Err() != nil {
			sum.Err = ctx.Err()
			break
		}
		if every > 0 && i > 0 && i%every == 0 {
			if err := fn.node.PowerLoss(); err != nil {
				sum.Err = fmt.Errorf("power loss: %w", err)
				break
			}
		}

		res, err := fn.node.Boot(ctx)
		if err != nil {
			sum.Err = err
			break
		}
		sum.Boots++
		sum.Last = res.Exit
		if res.Err != nil {
			sum.Err = res.Err
			if f.Logger != nil {
				f.Logger.Error("node stopped", "device", sum.Name, "boot_id", res.BootID, "error", res.Err)
			}
			break
		}
	}
	sum.Slept = fn.node.Board.Slept()
	return sum
}

func (f *Fleet) fs() afero.Fs {
	if f.Fs == nil {
		return afero.NewOsFs()
	}
	return f.Fs
}

// PrintSummary writes a table of node summaries.
func PrintSummary(w io.Writer, summaries []NodeSummary) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Device", "DevEUI", "Boots", "Joins", "Lost", "Replayed", "Uplinks", "Dropped", "Slept", "Last", "Error"})
	for _, s := range summaries {
		errText := "-"
		if s.Err != nil {
			errText = s.Err.Error()
		}
		err := table.Append([]string{
			s.Name, s.DevEUI, strconv.Itoa(s.Boots),
			strconv.Itoa(s.Stats.Joins), strconv.Itoa(s.Stats.LostJoins), strconv.Itoa(s.Stats.ReplayedJoins),
			strconv.Itoa(s.Stats.Uplinks), strconv.Itoa(s.Stats.DroppedUplinks),
			s.Slept.String(), s.Last.String(), errText,
		})
		if err != nil {
			return err
		}
	}
	return table.Render()
}

// Failed returns the summaries that ended with an error.
func Failed(summaries []NodeSummary) []NodeSummary {
	var out []NodeSummary
	for _, s := range summaries {
		if s.Err != nil && !errors.Is(s.Err, context.Canceled) {
			out = append(out, s)
		}
	}
	return out
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
