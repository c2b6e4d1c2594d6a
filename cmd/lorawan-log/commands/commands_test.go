package commands

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mash-protocol/lorawan-node/pkg/log"
)

// createTestJournal writes events to a temporary journal file.
func createTestJournal(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "boot.cbor")

	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	logger.Close()

	return path
}

func sampleBoot() []log.Event {
	ts := time.Date(2026, 1, 28, 10, 0, 0, 0, time.UTC)
	boot := "3f2a9c1e-0000-4000-8000-000000000001"
	dev := "70B3D57ED0000001"
	return []log.Event{
		{Timestamp: ts, BootID: boot, DevEUI: dev, BootCount: 3, Category: log.CategoryBoot, Stage: log.StageRestore,
			Boot: &log.BootEvent{ResetCause: "DEEP_SLEEP", FailedJoins: 2}},
		{Timestamp: ts, BootID: boot, DevEUI: dev, BootCount: 3, Category: log.CategoryError, Stage: log.StageRestore,
			Error: &log.ErrorEventData{Message: "no saved nonces"}},
		{Timestamp: ts, BootID: boot, DevEUI: dev, BootCount: 3, Category: log.CategoryJoin, Stage: log.StageJoin,
			Join: &log.JoinEvent{Forced: true, Success: true, Activation: "NEW_SESSION"}},
		{Timestamp: ts.Add(2 * time.Second), BootID: boot, DevEUI: dev, BootCount: 3, Category: log.CategoryUplink, Stage: log.StageUplink,
			Uplink: &log.UplinkEvent{FCnt: 0, PayloadSize: 12, Outcome: "DOWNLINK", DownlinkPort: 3, DownlinkSize: 4}},
		{Timestamp: ts.Add(3 * time.Second), BootID: boot, DevEUI: dev, BootCount: 3, Category: log.CategorySleep, Stage: log.StageSleep,
			Sleep: &log.SleepEvent{Duration: 5 * time.Minute, Reason: "INTERVAL"}},
	}
}

func TestFormatBootEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleBoot()[0])
	output := buf.String()

	for _, want := range []string{
		"2026-01-28T10:00:00.000Z",
		"[boot:3f2a9c1e]",
		"70B3D57ED0000001",
		"#3 BOOT RESTORE",
		"Reset: DEEP_SLEEP (warm)",
		"FailedJoins: 2",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestFormatUplinkEvent(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, sampleBoot()[3])
	output := buf.String()

	if !strings.Contains(output, "Payload: 12 B") {
		t.Errorf("expected humanized payload size, got: %s", output)
	}
	if !strings.Contains(output, "Downlink: port 3, 4 B") {
		t.Errorf("expected downlink details, got: %s", output)
	}
}

func TestFormatFailedJoin(t *testing.T) {
	var buf bytes.Buffer
	formatEvent(&buf, log.Event{
		Category: log.CategoryJoin,
		Stage:    log.StageJoin,
		Join:     &log.JoinEvent{Forced: true, FailedJoins: 3, Reason: "join failed: join request lost"},
	})
	output := buf.String()

	if !strings.Contains(output, "join failed: join failed: join request lost") {
		t.Errorf("expected failure reason, got: %s", output)
	}
	if !strings.Contains(output, "FailedJoins: 3") {
		t.Errorf("expected streak, got: %s", output)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{1500 * time.Microsecond, "1.500ms"},
		{time.Minute, "1m0s"},
		{3*time.Minute + 400*time.Millisecond, "3m0s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	c, err := parseCategory("UPLINK")
	if err != nil || c != log.CategoryUplink {
		t.Errorf("parseCategory(UPLINK) = %v, %v", c, err)
	}
	if _, err := parseCategory("frame"); err == nil {
		t.Error("expected error for unknown category")
	}

	s, err := parseStage("persist")
	if err != nil || s != log.StagePersist {
		t.Errorf("parseStage(persist) = %v, %v", s, err)
	}
	if _, err := parseStage("wire"); err == nil {
		t.Error("expected error for unknown stage")
	}

	if _, err := (FilterOptions{TimeStart: "yesterday"}).Build(); err == nil {
		t.Error("expected error for bad time")
	}
}

func TestRunViewFiltersByCategory(t *testing.T) {
	path := createTestJournal(t, sampleBoot())

	var buf bytes.Buffer
	if err := RunView(path, FilterOptions{Category: "error"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "no saved nonces") {
		t.Errorf("expected error event, got: %s", output)
	}
	if strings.Contains(output, "BOOT RESTORE") {
		t.Errorf("boot event should be filtered out, got: %s", output)
	}
}

func TestRunViewFiltersByDevEUI(t *testing.T) {
	path := createTestJournal(t, sampleBoot())

	var buf bytes.Buffer
	if err := RunView(path, FilterOptions{DevEUI: "70b3d57ed0000002"}, &buf); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no events for another node, got: %s", buf.String())
	}
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "missing.cbor"), FilterOptions{}, &bytes.Buffer{})
	if err == nil {
		t.Error("expected error for missing journal")
	}
}

func TestRunStats(t *testing.T) {
	events := sampleBoot()
	events = append(events, log.Event{
		Timestamp: events[0].Timestamp.Add(time.Minute),
		DevEUI:    "70B3D57ED0000002",
		Category:  log.CategoryJoin,
		Stage:     log.StageJoin,
		Join:      &log.JoinEvent{Forced: true, FailedJoins: 4, Reason: "lost"},
	})
	path := createTestJournal(t, events)

	var buf bytes.Buffer
	if err := RunStats(path, FilterOptions{}, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 6",
		"Nodes: 2",
		"[70B3D57ED0000001] 1 boots (0 cold)",
		"Joins: 1 ok, 0 failed (max streak 0), 0 resumes",
		"Uplinks: 1, 12 B sent, 1 downlinks",
		"Slept: 5m0s",
		"Joins: 0 ok, 1 failed (max streak 4), 0 resumes",
		"Errors: 1 (0 fatal)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got:\n%s", want, output)
		}
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestJournal(t, sampleBoot())
	out := filepath.Join(t.TempDir(), "out.jsonl")

	if err := RunExport(path, "jsonl", out, FilterOptions{}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev log.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line %d is not an event: %v", lines, err)
		}
		lines++
	}
	if lines != 5 {
		t.Errorf("expected 5 lines, got %d", lines)
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestJournal(t, sampleBoot())
	out := filepath.Join(t.TempDir(), "out.csv")

	if err := RunExport(path, "csv", out, FilterOptions{Category: "sleep"}); err != nil {
		t.Fatalf("RunExport failed: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header and one row, got %d records", len(records))
	}
	if records[1][4] != "SLEEP" || records[1][6] != "INTERVAL 5m0s" {
		t.Errorf("unexpected row: %v", records[1])
	}
}

func TestRunExportUnknownFormat(t *testing.T) {
	path := createTestJournal(t, sampleBoot())
	if err := RunExport(path, "xml", filepath.Join(t.TempDir(), "x"), FilterOptions{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestJournal(t, sampleBoot())
	out := filepath.Join(t.TempDir(), "filtered.cbor")

	n, err := RunFilter(path, out, FilterOptions{Stage: "restore"})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 events, got %d", n)
	}

	reader, err := log.NewReader(out)
	if err != nil {
		t.Fatalf("open filtered journal: %v", err)
	}
	defer reader.Close()

	for i := 0; i < 2; i++ {
		ev, err := reader.Next()
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if ev.Stage != log.StageRestore {
			t.Errorf("event %d has stage %s", i, ev.Stage)
		}
	}
}

func TestTruncatedJournal(t *testing.T) {
	path := createTestJournal(t, sampleBoot())
	partial, err := log.EncodeEvent(log.Event{BootID: "cut", Category: log.CategorySleep})
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	f.Write(partial[:len(partial)-3])
	f.Close()

	var view bytes.Buffer
	if err := RunView(path, FilterOptions{}, &view); err != nil {
		t.Fatalf("RunView failed: %v", err)
	}
	if !strings.Contains(view.String(), "partial record") {
		t.Errorf("view output does not mention the partial record:\n%s", view.String())
	}

	var stats bytes.Buffer
	if err := RunStats(path, FilterOptions{}, &stats); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(stats.String(), "Warning: journal ends in a partial record") {
		t.Errorf("stats output missing warning:\n%s", stats.String())
	}

	n, err := RunFilter(path, filepath.Join(t.TempDir(), "out.cbor"), FilterOptions{})
	if err != nil {
		t.Fatalf("RunFilter failed: %v", err)
	}
	if n != len(sampleBoot()) {
		t.Errorf("RunFilter copied %d events, want %d", n, len(sampleBoot()))
	}
}
