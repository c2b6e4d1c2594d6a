package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/mash-protocol/lorawan-node/pkg/backoff"
	"github.com/mash-protocol/lorawan-node/pkg/config"
	"github.com/mash-protocol/lorawan-node/pkg/log"
	"github.com/mash-protocol/lorawan-node/pkg/retained"
)

// ErrNodesFailed is returned by run when at least one node stopped with an
// error.
var ErrNodesFailed = errors.New("one or more nodes failed")

// Execute runs the lorawan-sim root command.
func Execute() error {
	root := &cobra.Command{
		Use:          "lorawan-sim",
		Short:        "Simulate sleeping LoRaWAN end devices across boot cycles",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), backoffCmd(), retainedCmd())
	return root.Execute()
}

// RunOptions are the flags of the run command.
type RunOptions struct {
	FleetPath   string
	Journal     string
	MetricsAddr string
	LogLevel    string
	Parallel    int
}

// run --fleet <file>: boot every device of a fleet file.
func runCmd() *cobra.Command {
	var o RunOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a fleet of simulated nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunFleet(ctx, o, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&o.FleetPath, "fleet", "f", "", "fleet file (required)")
	cmd.Flags().StringVar(&o.Journal, "journal", "", "boot journal file (overrides the fleet file)")
	cmd.Flags().StringVar(&o.MetricsAddr, "metrics", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().StringVar(&o.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().IntVar(&o.Parallel, "parallel", 0, "maximum number of nodes booting at once (0: no limit)")
	_ = cmd.MarkFlagRequired("fleet")
	return cmd
}

// RunFleet loads the fleet file, runs it and prints the summary to out.
// Operational logs go to logOut.
func RunFleet(ctx context.Context, o RunOptions, out, logOut io.Writer) error {
	level, err := parseLevel(o.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	file, err := config.Load(o.FleetPath)
	if err != nil {
		return err
	}

	journals := []log.Logger{log.NewSlogAdapter(logger)}
	path := file.Journal
	if o.Journal != "" {
		path = o.Journal
	}
	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer fl.Close()
		journals = append(journals, fl)
	}

	if o.MetricsAddr != "" {
		_, stop, err := serveMetrics(o.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	fleet := &Fleet{
		File:     file,
		Fs:       afero.NewOsFs(),
		Logger:   logger,
		Journal:  log.NewMultiLogger(journals...),
		Parallel: o.Parallel,
	}
	logger.Info("starting fleet", "devices", len(file.Devices), "backend", file.Storage.Backend)

	summaries, err := fleet.Run(ctx)
	if summaries != nil {
		if perr := PrintSummary(out, summaries); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if failed := Failed(summaries); len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d", ErrNodesFailed, len(failed), len(summaries))
	}
	return nil
}

// serveMetrics serves /metrics until the returned function is called.
func serveMetrics(addr string, logger *slog.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// backoff [n]: print the join retry schedule.
func backoffCmd() *cobra.Command {
	var base, limit time.Duration
	cmd := &cobra.Command{
		Use:   "backoff [attempts]",
		Short: "Print the join retry schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 5
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("invalid attempt count %q", args[0])
				}
				n = v
			}
			return PrintBackoff(cmd.OutOrStdout(), backoff.Policy{Base: base, Cap: limit}, n)
		},
	}
	cmd.Flags().DurationVar(&base, "base", backoff.BaseUnit, "delay step per failed join")
	cmd.Flags().DurationVar(&limit, "cap", backoff.Cap, "maximum delay")
	return cmd
}

// PrintBackoff writes the first n delays of p with their running total.
func PrintBackoff(w io.Writer, p backoff.Policy, n int) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Failed joins", "Delay", "Total"})
	var total time.Duration
	for i, d := range p.Sequence(n) {
		total += d
		if err := table.Append([]string{strconv.Itoa(i + 1), d.String(), total.String()}); err != nil {
			return err
		}
	}
	return table.Render()
}

// retained <file>: decode a retained memory file.
func retainedCmd() *cobra.Command {
	var wipe bool
	cmd := &cobra.Command{
		Use:   "retained <file>",
		Short: "Show (or clear) the state held in a retained memory file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ShowRetained(afero.NewOsFs(), args[0], wipe, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&wipe, "clear", false, "invalidate the state, as a power loss would")
	return cmd
}

// ShowRetained prints the state stored in the retained file at path.
func ShowRetained(fs afero.Fs, path string, wipe bool, w io.Writer) error {
	info, err := fs.Stat(path)
	if err != nil {
		return err
	}
	region, err := retained.OpenFileRegion(fs, path, info.Size())
	if err != nil {
		return err
	}
	if wipe {
		if err := retained.Clear(region); err != nil {
			return err
		}
		fmt.Fprintf(w, "Cleared %s\n", path)
		return nil
	}

	st, err := retained.Load(region)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	fmt.Fprintf(w, "Boot count:    %d\n", st.BootCount)
	fmt.Fprintf(w, "Failed joins:  %d\n", st.FailedJoins)
	if st.HasSession() {
		fmt.Fprintf(w, "Session:       %d bytes\n", len(st.Session))
	} else {
		fmt.Fprintln(w, "Session:       none")
	}
	fmt.Fprintf(w, "Next join:     %s after a failure\n", backoff.JoinDelay(st.FailedJoins))
	return nil
}
