package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/mash-protocol/lorawan-node/pkg/log"
)

// Stats holds aggregate statistics about a journal.
type Stats struct {
	TotalEvents      int
	EventsByCategory map[log.Category]int
	Nodes            map[string]*NodeStats
	Errors           int
	FatalErrors      int
	Truncated        bool
	TimeRange        struct {
		Start time.Time
		End   time.Time
	}
}

// NodeStats holds statistics for a single node.
type NodeStats struct {
	Boots       int
	ColdBoots   int
	Joins       int
	FailedJoins int
	Resumes     int
	Uplinks     int
	Downlinks   int
	PayloadSent int
	Slept       time.Duration
	MaxStreak   uint32
	LastSeen    time.Time
	Errors      int
}

// RunStats analyzes the matching events of a journal and prints statistics.
func RunStats(path string, opts FilterOptions, w io.Writer) error {
	stats := &Stats{
		EventsByCategory: make(map[log.Category]int),
		Nodes:            make(map[string]*NodeStats),
	}
	err := scan(path, opts, func(ev log.Event) error {
		stats.add(ev)
		return nil
	})
	switch {
	case errors.Is(err, errTruncated):
		stats.Truncated = true
	case err != nil:
		return err
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByCategory[event.Category]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	node, ok := s.Nodes[event.DevEUI]
	if !ok {
		node = &NodeStats{}
		s.Nodes[event.DevEUI] = node
	}
	if event.Timestamp.After(node.LastSeen) {
		node.LastSeen = event.Timestamp
	}

	switch {
	case event.Boot != nil:
		node.Boots++
		if event.Boot.Cold {
			node.ColdBoots++
		}
	case event.Join != nil:
		switch {
		case !event.Join.Forced && event.Join.Success:
			node.Resumes++
		case event.Join.Forced && event.Join.Success:
			node.Joins++
		case event.Join.Forced:
			node.FailedJoins++
			if event.Join.FailedJoins > node.MaxStreak {
				node.MaxStreak = event.Join.FailedJoins
			}
		}
	case event.Uplink != nil:
		node.Uplinks++
		node.PayloadSent += event.Uplink.PayloadSize
		if event.Uplink.DownlinkSize > 0 {
			node.Downlinks++
		}
	case event.Sleep != nil:
		node.Slept += event.Sleep.Duration
	case event.Error != nil:
		s.Errors++
		node.Errors++
		if event.Error.Fatal {
			s.FatalErrors++
		}
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== LoRaWAN Boot Journal Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %s\n", humanize.Comma(int64(stats.TotalEvents)))
	if stats.Truncated {
		fmt.Fprintln(w, "Warning: journal ends in a partial record")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryBoot, log.CategoryJoin, log.CategoryUplink, log.CategorySleep, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %s\n", cat.String()+":", humanize.Comma(int64(count)))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Nodes: %d\n", len(stats.Nodes))
	if len(stats.Nodes) > 0 {
		ids := make([]string, 0, len(stats.Nodes))
		for id := range stats.Nodes {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(w)
		for _, id := range ids {
			n := stats.Nodes[id]
			fmt.Fprintf(w, "  [%s] %d boots (%d cold), last seen %s\n",
				id, n.Boots, n.ColdBoots, humanize.RelTime(n.LastSeen, stats.TimeRange.End, "before end", "after end"))
			fmt.Fprintf(w, "           Joins: %d ok, %d failed (max streak %d), %d resumes\n",
				n.Joins, n.FailedJoins, n.MaxStreak, n.Resumes)
			fmt.Fprintf(w, "           Uplinks: %d, %s sent, %d downlinks\n",
				n.Uplinks, humanize.Bytes(uint64(n.PayloadSent)), n.Downlinks)
			fmt.Fprintf(w, "           Slept: %s\n", n.Slept.Round(time.Second))
			if n.Errors > 0 {
				fmt.Fprintf(w, "           Errors: %d\n", n.Errors)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d (%d fatal)\n", stats.Errors, stats.FatalErrors)
	}
}
