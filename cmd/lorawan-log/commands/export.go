package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/mash-protocol/lorawan-node/pkg/log"
)

// Export formats.
const (
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

var csvHeader = []string{"timestamp", "boot_id", "dev_eui", "boot_count", "category", "stage", "detail"}

// RunExport writes the matching events to output (stdout if empty) as JSON
// lines or CSV.
func RunExport(path, format, output string, opts FilterOptions) error {
	if format != FormatJSONL && format != FormatCSV {
		return fmt.Errorf("unknown format %q (supported: %s, %s)", format, FormatJSONL, FormatCSV)
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}

	if format == FormatJSONL {
		enc := json.NewEncoder(w)
		return scan(path, opts, func(ev log.Event) error { return enc.Encode(ev) })
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	err := scan(path, opts, func(ev log.Event) error { return cw.Write(csvRow(ev)) })
	cw.Flush()
	return errors.Join(err, cw.Error())
}

func csvRow(ev log.Event) []string {
	return []string{
		ev.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		ev.BootID,
		ev.DevEUI,
		strconv.FormatUint(uint64(ev.BootCount), 10),
		ev.Category.String(),
		ev.Stage.String(),
		eventDetail(ev),
	}
}

// eventDetail is a one-line summary of the event payload.
func eventDetail(ev log.Event) string {
	switch {
	case ev.Boot != nil:
		return ev.Boot.ResetCause
	case ev.Join != nil && ev.Join.Success:
		return ev.Join.Activation
	case ev.Join != nil:
		return ev.Join.Reason
	case ev.Uplink != nil:
		return fmt.Sprintf("fcnt=%d %s", ev.Uplink.FCnt, ev.Uplink.Outcome)
	case ev.Sleep != nil:
		return ev.Sleep.Reason + " " + ev.Sleep.Duration.String()
	case ev.Error != nil:
		return ev.Error.Message
	}
	return ""
}
