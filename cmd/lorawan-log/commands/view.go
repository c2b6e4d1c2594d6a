// Package commands implements the lorawan-log CLI commands.
package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mash-protocol/lorawan-node/pkg/log"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [boot:id] DevEUI #count CATEGORY STAGE
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z")
	fmt.Fprintf(w, "%s [boot:%s] %s #%d %s %s\n",
		ts, shortenBootID(event.BootID), event.DevEUI, event.BootCount,
		event.Category.String(), event.Stage.String())

	switch {
	case event.Boot != nil:
		formatBootDetails(w, event.Boot)
	case event.Join != nil:
		formatJoinDetails(w, event.Join)
	case event.Uplink != nil:
		formatUplinkDetails(w, event.Uplink)
	case event.Sleep != nil:
		fmt.Fprintf(w, "  Sleep: %s (%s)\n", formatDuration(event.Sleep.Duration), event.Sleep.Reason)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// shortenBootID returns the first 8 characters of the boot ID.
func shortenBootID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatBootDetails(w io.Writer, b *log.BootEvent) {
	kind := "warm"
	if b.Cold {
		kind = "cold"
	}
	session := "no"
	if b.HasSession {
		session = "yes"
	}
	fmt.Fprintf(w, "  Reset: %s (%s)\n", b.ResetCause, kind)
	fmt.Fprintf(w, "  FailedJoins: %d  Session: %s\n", b.FailedJoins, session)
}

func formatJoinDetails(w io.Writer, j *log.JoinEvent) {
	kind := "resume"
	if j.Forced {
		kind = "join"
	}
	if j.Success {
		fmt.Fprintf(w, "  %s ok: %s\n", kind, j.Activation)
	} else {
		fmt.Fprintf(w, "  %s failed: %s\n", kind, j.Reason)
	}
	if j.Forced {
		fmt.Fprintf(w, "  FailedJoins: %d\n", j.FailedJoins)
	}
}

func formatUplinkDetails(w io.Writer, u *log.UplinkEvent) {
	fmt.Fprintf(w, "  FCnt: %d  Payload: %s  Outcome: %s\n",
		u.FCnt, humanize.Bytes(uint64(u.PayloadSize)), u.Outcome)
	if u.DownlinkSize > 0 {
		fmt.Fprintf(w, "  Downlink: port %d, %s\n", u.DownlinkPort, humanize.Bytes(uint64(u.DownlinkSize)))
	}
}

func formatErrorDetails(w io.Writer, e *log.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", e.Message)
	if e.Fatal {
		fmt.Fprintln(w, "  Fatal: yes")
	}
}

// formatDuration formats a sleep duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return d.Round(time.Second).String()
}

// parseCategory parses a category string (case-insensitive).
func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "boot":
		return log.CategoryBoot, nil
	case "join":
		return log.CategoryJoin, nil
	case "uplink":
		return log.CategoryUplink, nil
	case "sleep":
		return log.CategorySleep, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be boot, join, uplink, sleep, or error)", s)
	}
}

// parseStage parses a stage string (case-insensitive).
func parseStage(s string) (log.Stage, error) {
	switch strings.ToLower(s) {
	case "restore":
		return log.StageRestore, nil
	case "radio":
		return log.StageRadio, nil
	case "activate":
		return log.StageActivate, nil
	case "join":
		return log.StageJoin, nil
	case "uplink":
		return log.StageUplink, nil
	case "persist":
		return log.StagePersist, nil
	case "sleep":
		return log.StageSleep, nil
	default:
		return 0, fmt.Errorf("invalid stage: %s (must be restore, radio, activate, join, uplink, persist, or sleep)", s)
	}
}

// FilterOptions are the event selection flags shared by the commands.
type FilterOptions struct {
	BootID    string
	DevEUI    string
	Category  string
	Stage     string
	TimeStart string
	TimeEnd   string
}

// Build converts the options into a journal filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		BootID: o.BootID,
		DevEUI: strings.ToUpper(o.DevEUI),
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if o.Stage != "" {
		s, err := parseStage(o.Stage)
		if err != nil {
			return filter, err
		}
		filter.Stage = &s
	}
	return filter, nil
}

// RunView prints the matching events of a journal.
func RunView(path string, opts FilterOptions, output io.Writer) error {
	err := scan(path, opts, func(ev log.Event) error {
		formatEvent(output, ev)
		return nil
	})
	if errors.Is(err, errTruncated) {
		fmt.Fprintln(output, "(journal ends in a partial record)")
		return nil
	}
	return err
}
