package report

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

func disk(dev, enc, slot int, other, media, predictive string) types.DiskParameters {
	return types.DiskParameters{
		DeviceID:           types.NullInt{Value: dev, Valid: true},
		EnclosureID:        types.NullInt{Value: enc, Valid: true},
		SlotNumber:         types.NullInt{Value: slot, Valid: true},
		OtherErrors:        other,
		MediaErrors:        media,
		PredictiveFailures: predictive,
	}
}

func TestCounter(t *testing.T) {
	if c := Counter("12"); !c.Number || c.Value != "12" {
		t.Errorf("Counter(12) = %+v", c)
	}
	if c := Counter("n/a"); c.Number {
		t.Errorf("Counter(n/a) should not be numeric")
	}
	if c := Counter(""); c.Number || !c.Blank() {
		t.Errorf("Counter(\"\") = %+v", c)
	}
}

func TestCategorySheet(t *testing.T) {
	s := CategorySheet("Battery", []types.ExtractedEvent{
		{Marker: "Seconds since last reboot: 1", Description: "Event Description: Battery charge", Data: "Event Data: none"},
		{Marker: "Time: Mon Jan  1 00:00:01 2024", Description: "Event Description: Battery relearn", Data: "Event Data: x"},
	})

	if s.Name != "Battery" {
		t.Errorf("unexpected name %q", s.Name)
	}
	if len(s.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(s.Rows))
	}
	if s.Cell(1, 1).Value != "Event Description: Battery relearn" {
		t.Errorf("unexpected cell %+v", s.Cell(1, 1))
	}

	want := []int{30, 34, 16}
	if diff := cmp.Diff(want, s.ColumnWidths()); diff != "" {
		t.Errorf("ColumnWidths() mismatch (-want +got):\n%s", diff)
	}
}

func TestDiskSummaryLayout(t *testing.T) {
	s := DiskSummarySheet([]types.DiskParameters{
		disk(3, 252, 1, "0", "0", "0"),
		disk(3, 252, 1, "0", "0", "0"),
	})

	if s.Name != DiskSummarySheetName {
		t.Errorf("unexpected name %q", s.Name)
	}
	if len(s.Rows) != 2*(DiskRowsPerBlock+1) {
		t.Fatalf("expected %d rows, got %d", 2*(DiskRowsPerBlock+1), len(s.Rows))
	}

	first := []Cell{Text("3"), Text("252/1"), Text("Other Error Count"), {Value: "0", Number: true}}
	if diff := cmp.Diff(first, s.Rows[0]); diff != "" {
		t.Errorf("first row mismatch (-want +got):\n%s", diff)
	}
	for _, r := range []int{1, 2, 5, 6} {
		if !s.Cell(r, 0).Blank() || !s.Cell(r, 1).Blank() {
			t.Errorf("row %d should have blank identifiers", r)
		}
	}
	for _, r := range []int{3, 7} {
		for c := 0; c < 4; c++ {
			if !s.Cell(r, c).Blank() {
				t.Errorf("separator row %d col %d not blank", r, c)
			}
		}
	}

	wantMerges := []MergeRegion{
		{Column: 1, StartRow: 1, EndRow: 3},
		{Column: 1, StartRow: 5, EndRow: 7},
		{Column: 2, StartRow: 1, EndRow: 3},
		{Column: 2, StartRow: 5, EndRow: 7},
	}
	if diff := cmp.Diff(wantMerges, s.Merges); diff != "" {
		t.Errorf("merges mismatch (-want +got):\n%s", diff)
	}

	widths := s.ColumnWidths()
	if widths[2] != len("Predictive Failure Count")+DiskSummaryPadding {
		t.Errorf("unexpected label column width %d", widths[2])
	}
}

func TestIdentifierMergesNeverCrossBlankLabel(t *testing.T) {
	s := DiskSummarySheet([]types.DiskParameters{
		disk(0, 8, 0, "1", "2", "3"),
		disk(11, 8, 1, "0", "0", "0"),
		disk(12, 8, 2, "0", "0", "0"),
	})

	for _, m := range s.Merges {
		for row := m.StartRow; row <= m.EndRow; row++ {
			if s.Cell(row-1, 2).Blank() {
				t.Errorf("merge %+v spans blank label row %d", m, row)
			}
		}
		if m.EndRow-m.StartRow+1 != DiskRowsPerBlock {
			t.Errorf("merge %+v should span %d rows", m, DiskRowsPerBlock)
		}
		if m.EndRow < len(s.Rows) && !s.Cell(m.EndRow, 2).Blank() {
			t.Errorf("merge %+v stops before the end of its block", m)
		}
	}

	if len(s.Merges) != 6 {
		t.Errorf("expected 6 merges (device id 0 included), got %d", len(s.Merges))
	}
}

func TestIdentifierMergesSkipsMissingDevice(t *testing.T) {
	d := disk(0, 8, 0, "0", "0", "0")
	d.DeviceID = types.NullInt{}

	s := DiskSummarySheet([]types.DiskParameters{d})
	for _, m := range s.Merges {
		if m.Column == 1 {
			t.Errorf("blank device id must not be merged: %+v", m)
		}
	}
	if len(s.Merges) != 1 {
		t.Errorf("expected only the enclosure/slot merge, got %+v", s.Merges)
	}
}

func TestIdentifierMergesLastBlockWithoutSeparator(t *testing.T) {
	s := NewSheet("x")
	s.Append(Text("1"), Text("a"), Text("L1"))
	s.Append(Text(""), Text(""), Text("L2"))

	got := IdentifierMerges(s, 0, 1)
	want := []MergeRegion{
		{Column: 1, StartRow: 1, EndRow: 2},
		{Column: 2, StartRow: 1, EndRow: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("IdentifierMerges() mismatch (-want +got):\n%s", diff)
	}
}
