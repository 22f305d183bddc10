package report

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

func TestSheetName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rebuild started", "Rebuild started"},
		{"State change on VD", "State change on VD"},
		{"a/b:c?d*e[f]g\\h", "abcdefgh"},
		{"'quoted'", "quoted"},
		{"", "Sheet"},
		{"Rebuild automatically started and then some more", "Rebuild automatically started a"},
	}

	for _, tt := range tests {
		if got := SheetName(tt.in); got != tt.want {
			t.Errorf("SheetName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripIllegal(t *testing.T) {
	if got := StripIllegal("ok\x00\x07\x0b\x1ftext\tand\nnewline"); got != "oktext\tand\nnewline" {
		t.Errorf("StripIllegal() = %q", got)
	}
}

func TestFileName(t *testing.T) {
	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	got := FileName(" acme CORP ", "1234", day)
	want := "Acme corp-ID1234-RC_Log_Analyze-March-05-2024.xlsx"
	if got != want {
		t.Errorf("FileName() = %q, want %q", got, want)
	}
}

func TestPersistEmptyWorkbook(t *testing.T) {
	w := NewWorkbook(nil)
	if err := w.Persist(filepath.Join(t.TempDir(), "x.xlsx")); !errors.Is(err, ErrNoSheets) {
		t.Errorf("expected ErrNoSheets, got %v", err)
	}
}

func TestPersistCategorySheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	w := NewWorkbook(nil)
	w.Add(CategorySheet("Battery", []types.ExtractedEvent{
		{Marker: "Seconds since last reboot: 1", Description: "Event Description: bad\x01value", Data: "Event Data: none"},
	}))
	w.Add(CategorySheet("Other", []types.ExtractedEvent{
		{Marker: "Time: Mon Jan  1 00:00:01 2024", Description: "Event Description: boot", Data: "Event Data: x"},
	}))

	if err := w.Persist(path); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	if diff := cmp.Diff([]string{"Battery", "Other"}, f.GetSheetList()); diff != "" {
		t.Errorf("sheet list mismatch (-want +got):\n%s", diff)
	}

	desc, err := f.GetCellValue("Battery", "B1")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if desc != "Event Description: badvalue" {
		t.Errorf("expected stripped value, got %q", desc)
	}

	width, err := f.GetColWidth("Other", "A")
	if err != nil {
		t.Fatalf("GetColWidth() error = %v", err)
	}
	if width != float64(len("Time: Mon Jan  1 00:00:01 2024")) {
		t.Errorf("unexpected column width %v", width)
	}
}

func TestPersistTwoPasses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")

	w := NewWorkbook(nil)
	w.Add(CategorySheet("DEGRADED", []types.ExtractedEvent{{Marker: "m", Description: "d", Data: "x"}}))
	if err := w.Persist(path); err != nil {
		t.Fatalf("first Persist() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if diff := cmp.Diff([]string{"DEGRADED"}, f.GetSheetList()); diff != "" {
		t.Errorf("first pass sheets mismatch (-want +got):\n%s", diff)
	}
	f.Close()

	w.Add(DiskSummarySheet([]types.DiskParameters{
		disk(3, 252, 1, "0", "0", "0"),
		disk(4, 252, 2, "7", "0", "1"),
	}))
	if err := w.Persist(path); err != nil {
		t.Fatalf("second Persist() error = %v", err)
	}

	f, err = excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()

	if diff := cmp.Diff([]string{"DEGRADED", DiskSummarySheetName}, f.GetSheetList()); diff != "" {
		t.Errorf("second pass sheets mismatch (-want +got):\n%s", diff)
	}

	merges, err := f.GetMergeCells(DiskSummarySheetName)
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

	id, err := f.GetCellValue(DiskSummarySheetName, "B5")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if id != "252/2" {
		t.Errorf("expected 252/2, got %q", id)
	}

	count, err := f.GetCellValue(DiskSummarySheetName, "D5")
	if err != nil {
		t.Fatalf("GetCellValue() error = %v", err)
	}
	if count != "7" {
		t.Errorf("expected other error count 7, got %q", count)
	}

	width, err := f.GetColWidth(DiskSummarySheetName, "C")
	if err != nil {
		t.Fatalf("GetColWidth() error = %v", err)
	}
	if width != float64(len("Predictive Failure Count")+DiskSummaryPadding) {
		t.Errorf("unexpected padded width %v", width)
	}
}

func TestAddReplacesSameName(t *testing.T) {
	w := NewWorkbook(nil)
	w.Add(NewSheet("a"))
	w.Add(NewSheet("b"))
	replacement := NewSheet("a")
	replacement.Append(Text("x"))
	w.Add(replacement)

	sheets := w.Sheets()
	if len(sheets) != 2 {
		t.Fatalf("expected 2 sheets, got %d", len(sheets))
	}
	if len(sheets[0].Rows) != 1 {
		t.Errorf("expected replaced sheet first")
	}
}
