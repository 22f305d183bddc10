package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"github.com/yeka/zip"

	"github.com/therealutkarshpriyadarshi/rclog/internal/archive"
	"github.com/therealutkarshpriyadarshi/rclog/internal/config"
	"github.com/therealutkarshpriyadarshi/rclog/internal/disk"
	"github.com/therealutkarshpriyadarshi/rclog/internal/output"
	"github.com/therealutkarshpriyadarshi/rclog/internal/reliability"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

const incrementalLog = `MegaRAID incremental log
seqNum: 0x00000001
Time: Mon Jan  1 00:00:01 2024
Event Description: Drive rebuild started
Event Data: none
seqNum: 0x00000002
Seconds since last reboot: 120
Event Description: DEGRADED state
Event Data: VD0
`

const pdlist = `Adapter #0

Enclosure Device ID: 252
Slot Number: 1
Device Id: 3
Other Error Count: 0
Media Error Count: 0
Predictive Failure Count: 0

Enclosure Device ID: 252
Slot Number: 1
Device Id: 3
Other Error Count: 0
Media Error Count: 0
Predictive Failure Count: 0
`

var day = time.Date(2024, time.January, 2, 10, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Inputs.WorkDir = t.TempDir()
	cfg.Report.OutputDir = t.TempDir()
	cfg.Report.Organization = "acme"
	cfg.Report.ChassisID = "42"
	return cfg
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func openReport(t *testing.T, path string) *excelize.File {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func cell(t *testing.T, f *excelize.File, sheet, axis string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, axis)
	if err != nil {
		t.Fatalf("GetCellValue(%s, %s) error = %v", sheet, axis, err)
	}
	return v
}

func TestRunCategorizesLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", incrementalLog)

	result, err := New(Options{Config: cfg, Now: func() time.Time { return day }}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantReport := filepath.Join(cfg.Report.OutputDir, "Acme-ID42-RC_Log_Analyze-January-02-2024.xlsx")
	if result.Report != wantReport {
		t.Errorf("Report = %s, want %s", result.Report, wantReport)
	}

	if result.Categories["Rebuild started"] != 1 {
		t.Errorf("expected the rebuild record in Rebuild started, got %d", result.Categories["Rebuild started"])
	}
	if result.Categories["DEGRADED"] != 1 {
		t.Errorf("expected the degraded record in DEGRADED, got %d", result.Categories["DEGRADED"])
	}
	if result.Categories["Other"] != 0 {
		t.Errorf("expected Other to be empty, got %d", result.Categories["Other"])
	}

	wantStats := types.RunStats{Lines: 9, Records: 2, Extracted: 2}
	if diff := cmp.Diff(wantStats, result.Stats); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}

	f := openReport(t, result.Report)
	if diff := cmp.Diff([]string{"DEGRADED", "Rebuild started"}, f.GetSheetList()); diff != "" {
		t.Errorf("sheets mismatch (-want +got):\n%s", diff)
	}

	rebuild := []string{
		cell(t, f, "Rebuild started", "A1"),
		cell(t, f, "Rebuild started", "B1"),
		cell(t, f, "Rebuild started", "C1"),
	}
	want := []string{"Time: Mon Jan  1 00:00:01 2024", "Event Description: Drive rebuild started", "Event Data: none"}
	if diff := cmp.Diff(want, rebuild); diff != "" {
		t.Errorf("rebuild row mismatch (-want +got):\n%s", diff)
	}
	if got := cell(t, f, "DEGRADED", "A1"); got != "Seconds since last reboot: 120" {
		t.Errorf("unexpected degraded marker %q", got)
	}

	// Intermediates are removed once the report is written
	entries, _ := os.ReadDir(cfg.Inputs.WorkDir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".csv") || strings.HasPrefix(e.Name(), "GetEventsToAlilog-") {
			t.Errorf("intermediate %s left behind", e.Name())
		}
	}
}

func buildArchive(t *testing.T, dir, name, password string, inner map[string]string) string {
	t.Helper()

	zipBytes := func(files map[string]string, pw string) []byte {
		names := make([]string, 0, len(files))
		for n := range files {
			names = append(names, n)
		}
		sort.Strings(names)

		var buf bytes.Buffer
		w := zip.NewWriter(&buf)
		for _, n := range names {
			var (
				fw  io.Writer
				err error
			)
			if pw != "" {
				fw, err = w.Encrypt(n, pw, zip.AES256Encryption)
			} else {
				fw, err = w.Create(n)
			}
			if err != nil {
				t.Fatal(err)
			}
			if _, err := fw.Write([]byte(files[n])); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	outer := zipBytes(map[string]string{"controller_0.zip": string(zipBytes(inner, ""))}, password)
	return writeFile(t, dir, name, string(outer))
}

func TestRunDiskSummaryFromArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.DiskAnalysis = true
	cfg.Inputs.Password = "pw"
	cfg.Inputs.Archive = buildArchive(t, t.TempDir(), "RCLogs_42.log", "pw", map[string]string{
		"MegaRAID_Incremental_Log_0.txt": incrementalLog,
		"pdlist.txt":                     pdlist,
	})

	result, err := New(Options{Config: cfg, Now: func() time.Time { return day }}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !strings.HasSuffix(result.Archive, "RCLogs_42.zip") {
		t.Errorf("expected renamed archive, got %s", result.Archive)
	}
	if result.Stats.Disks != 2 {
		t.Errorf("expected 2 disks, got %d", result.Stats.Disks)
	}

	f := openReport(t, result.Report)
	if diff := cmp.Diff([]string{"DEGRADED", "Rebuild started", "Disk_Error_Count"}, f.GetSheetList()); diff != "" {
		t.Errorf("sheets mismatch (-want +got):\n%s", diff)
	}

	// Each disk renders its identifier once, spanning its three counter rows
	for _, axis := range []string{"B1", "B5"} {
		if got := cell(t, f, "Disk_Error_Count", axis); got != "252/1" {
			t.Errorf("%s = %q, want 252/1", axis, got)
		}
	}

	merges, err := f.GetMergeCells("Disk_Error_Count")
	if err != nil {
		t.Fatalf("GetMergeCells() error = %v", err)
	}
	got := make(map[string]string)
	for _, m := range merges {
		got[m.GetStartAxis()] = m.GetEndAxis()
	}
	want := map[string]string{"A1": "A3", "B1": "B3", "A5": "A7", "B5": "B7"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merges mismatch (-want +got):\n%s", diff)
	}
}

func TestRunKeepsInputArchiveInWorkDir(t *testing.T) {
	for _, name := range []string{"controller_diag.zip", "controller_diag.log"} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Inputs.Password = "pw"
			cfg.Inputs.Archive = buildArchive(t, cfg.Inputs.WorkDir, name, "pw", map[string]string{
				"MegaRAID_Incremental_Log_0.txt": incrementalLog,
			})
			unrelated := []string{
				writeFile(t, cfg.Inputs.WorkDir, "notes.csv", "a,b\r\n"),
				writeFile(t, cfg.Inputs.WorkDir, "backup.zip", "not a zip"),
			}

			result, err := New(Options{Config: cfg, Now: func() time.Time { return day }}).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if _, err := os.Stat(result.Archive); err != nil {
				t.Errorf("input archive %s gone after run: %v", result.Archive, err)
			}
			for _, path := range unrelated {
				if _, err := os.Stat(path); err != nil {
					t.Errorf("unrelated file %s gone after run: %v", path, err)
				}
			}
			if _, err := os.Stat(filepath.Join(cfg.Inputs.WorkDir, "controller_0.zip")); !os.IsNotExist(err) {
				t.Errorf("inner archive should be removed, got %v", err)
			}
			if _, err := os.Stat(filepath.Join(cfg.Inputs.WorkDir, "DEGRADED.csv")); !os.IsNotExist(err) {
				t.Errorf("category artifact should be removed, got %v", err)
			}
		})
	}
}

func TestRunMalformedDiskField(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.DiskAnalysis = true
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", incrementalLog)
	cfg.Inputs.PDList = writeFile(t, cfg.Inputs.WorkDir, "pdlist.txt", "Enclosure Device ID: 252\nDevice Id: three\n")

	_, err := New(Options{Config: cfg}).Run(context.Background())
	if !errors.Is(err, disk.ErrMalformedNumericField) {
		t.Errorf("expected ErrMalformedNumericField, got %v", err)
	}
}

func TestRunMissingPDList(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.DiskAnalysis = true
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", incrementalLog)

	_, err := New(Options{Config: cfg}).Run(context.Background())
	if !errors.Is(err, archive.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunWithoutEventsWritesNoReport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", "no markers here\n")

	result, err := New(Options{Config: cfg}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Report != "" {
		t.Errorf("expected no report, got %s", result.Report)
	}
	if result.Stats.Records != 0 {
		t.Errorf("expected no records, got %d", result.Stats.Records)
	}
}

func TestRunKeepIntermediate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Report.KeepIntermediate = true
	cfg.Intermediate.Compression = "gzip"
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", incrementalLog)

	if _, err := New(Options{Config: cfg}).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	kept, err := os.ReadDir(filepath.Join(cfg.Inputs.WorkDir, archive.TmpDirName))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}

	names := make(map[string]bool)
	for _, e := range kept {
		names[e.Name()] = true
	}
	for _, want := range []string{"DEGRADED.csv.gz", "Other.csv.gz", "GetEventsToAlilog-MegaRAID_Incremental_Log.txt"} {
		if !names[want] {
			t.Errorf("expected %s in %s, got %v", want, archive.TmpDirName, names)
		}
	}
}

type captureSink struct {
	mu     sync.Mutex
	events []types.CategorizedEvent
	files  []string
	fail   error
}

func (c *captureSink) Publish(ctx context.Context, events []types.CategorizedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return reliability.Permanent(c.fail)
	}
	c.events = append(c.events, events...)
	return nil
}

func (c *captureSink) Upload(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	c.files = append(c.files, filepath.Base(path))
	return nil
}

func (c *captureSink) Close() error                 { return nil }
func (c *captureSink) Name() string                 { return "capture" }
func (c *captureSink) Metrics() *output.SinkMetrics { return &output.SinkMetrics{} }

func TestRunDeliversToSinks(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sinks.S3 = &config.S3SinkConfig{Bucket: "reports", UploadArtifacts: true}
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", incrementalLog)

	sink := &captureSink{}
	router := output.NewRouter(output.RouterConfig{})
	router.AddEventSink(sink)
	router.AddFileSink(sink)

	result, err := New(Options{Config: cfg, Router: router, Now: func() time.Time { return day }}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(sink.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(sink.events))
	}
	byCategory := make(map[string]types.CategorizedEvent)
	for _, ev := range sink.events {
		byCategory[ev.Category] = ev
	}
	degraded := byCategory["DEGRADED"]
	if degraded.Data != "Event Data: VD0" || degraded.RecordIndex != 1 || degraded.ChassisID != "42" {
		t.Errorf("unexpected degraded event %+v", degraded)
	}
	if degraded.Source != "MegaRAID_Incremental_Log.txt" {
		t.Errorf("unexpected source %s", degraded.Source)
	}

	if len(sink.files) == 0 || sink.files[0] != filepath.Base(result.Report) {
		t.Errorf("expected the report uploaded first, got %v", sink.files)
	}
	// Report plus the reassembled log plus one artifact per category
	if want := 1 + 1 + 19; len(sink.files) != want {
		t.Errorf("expected %d uploads, got %d", want, len(sink.files))
	}
}

func TestRunDeliveryFailureStillCleansUp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Inputs.IncrementalLog = writeFile(t, cfg.Inputs.WorkDir, "MegaRAID_Incremental_Log.txt", incrementalLog)

	router := output.NewRouter(output.RouterConfig{})
	router.AddEventSink(&captureSink{fail: errors.New("broker down")})

	result, err := New(Options{Config: cfg, Router: router}).Run(context.Background())
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if result == nil || result.Report == "" {
		t.Fatal("expected the report to be written despite the delivery failure")
	}

	entries, _ := os.ReadDir(cfg.Inputs.WorkDir)
	for _, e := range entries {
		if strings.Contains(e.Name(), ".csv") {
			t.Errorf("intermediate %s left behind", e.Name())
		}
	}
}
