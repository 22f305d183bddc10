// Package report turns categorized events and disk counters into workbook sheets.
package report

import (
	"strconv"
	"unicode/utf8"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

const (
	// DiskSummarySheetName is the name of the per-disk error counter sheet
	DiskSummarySheetName = "Disk_Error_Count"

	// DiskSummaryPadding is added to every auto-sized column of the disk summary
	DiskSummaryPadding = 4

	// DiskRowsPerBlock is the number of data rows written for each disk
	DiskRowsPerBlock = 3
)

// Cell is one spreadsheet cell
type Cell struct {
	Value  string
	Number bool // written as an integer with format "0"
}

// Blank reports whether the cell has no value
func (c Cell) Blank() bool {
	return c.Value == ""
}

// Text creates a string cell
func Text(v string) Cell {
	return Cell{Value: v}
}

// Counter creates a cell that is written as an integer when v is numeric
func Counter(v string) Cell {
	_, err := strconv.Atoi(v)
	return Cell{Value: v, Number: err == nil}
}

// MergeRegion is a vertical merge of one column, rows 1-based and inclusive
type MergeRegion struct {
	Column   int
	StartRow int
	EndRow   int
}

// Sheet is a named grid of cells with optional merge regions
type Sheet struct {
	Name     string
	Rows     [][]Cell
	Merges   []MergeRegion
	Padding  int
	Centered bool
}

// NewSheet creates an empty sheet
func NewSheet(name string) *Sheet {
	return &Sheet{Name: name}
}

// Append adds a row at the bottom of the sheet
func (s *Sheet) Append(cells ...Cell) {
	s.Rows = append(s.Rows, cells)
}

// Cell returns the cell at 0-based row and column, blank when out of range
func (s *Sheet) Cell(row, col int) Cell {
	if row < 0 || row >= len(s.Rows) || col < 0 || col >= len(s.Rows[row]) {
		return Cell{}
	}
	return s.Rows[row][col]
}

// ColumnCount returns the width of the widest row
func (s *Sheet) ColumnCount() int {
	n := 0
	for _, row := range s.Rows {
		if len(row) > n {
			n = len(row)
		}
	}
	return n
}

// ColumnWidths returns the auto-sized width of every column: the longest value
// in the column plus the sheet padding. Columns without any value report zero.
func (s *Sheet) ColumnWidths() []int {
	widths := make([]int, s.ColumnCount())
	for _, row := range s.Rows {
		for col, cell := range row {
			if cell.Blank() {
				continue
			}
			if n := utf8.RuneCountInString(cell.Value) + s.Padding; n > widths[col] {
				widths[col] = n
			}
		}
	}
	return widths
}

// CategorySheet lays out extracted events as (marker, description, data) rows
func CategorySheet(name string, events []types.ExtractedEvent) *Sheet {
	s := NewSheet(name)
	for _, ev := range events {
		s.Append(Text(ev.Marker), Text(ev.Description), Text(ev.Data))
	}
	return s
}

// DiskSummarySheet writes three rows and a blank separator per disk, then merges
// the device and enclosure/slot cells over each disk block
func DiskSummarySheet(disks []types.DiskParameters) *Sheet {
	s := NewSheet(DiskSummarySheetName)
	s.Padding = DiskSummaryPadding
	s.Centered = true

	for _, d := range disks {
		s.Append(Text(d.DeviceID.String()), Text(d.EnclosureSlot()), Text("Other Error Count"), Counter(d.OtherErrors))
		s.Append(Text(""), Text(""), Text("Media Error Count"), Counter(d.MediaErrors))
		s.Append(Text(""), Text(""), Text("Predictive Failure Count"), Counter(d.PredictiveFailures))
		s.Append(Text(""), Text(""), Text(""), Text(""))
	}

	s.Merges = IdentifierMerges(s, 0, 1)
	return s
}

// IdentifierMerges computes, for every non-blank cell of the identifier columns,
// a merge running down to the row before the next blank cell in the label column
// (the column after the last identifier column), or to the last row.
func IdentifierMerges(s *Sheet, idColumns ...int) []MergeRegion {
	if len(idColumns) == 0 {
		return nil
	}

	labelCol := idColumns[len(idColumns)-1] + 1
	var merges []MergeRegion

	for _, col := range idColumns {
		for r := range s.Rows {
			if s.Cell(r, col).Blank() {
				continue
			}

			end := r
			for next := r + 1; next < len(s.Rows); next++ {
				if s.Cell(next, labelCol).Blank() || !s.Cell(next, col).Blank() {
					break
				}
				end = next
			}

			if end > r {
				merges = append(merges, MergeRegion{Column: col + 1, StartRow: r + 1, EndRow: end + 1})
			}
		}
	}

	return merges
}
