package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
)

const maxSheetNameLength = 31

var (
	// ErrIllegalCharacter is returned for cell values holding control characters
	// that the XLSX format cannot store
	ErrIllegalCharacter = errors.New("illegal character in cell value")

	// ErrNoSheets is returned when persisting a workbook without any sheet
	ErrNoSheets = errors.New("workbook has no sheets")

	illegalCharacters = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
	illegalSheetChars = strings.NewReplacer(":", "", `\`, "", "/", "", "?", "", "*", "", "[", "", "]", "")
)

// StripIllegal removes characters the XLSX format forbids in cell values
func StripIllegal(v string) string {
	return illegalCharacters.ReplaceAllString(v, "")
}

// SheetName makes a category name usable as a sheet name
func SheetName(name string) string {
	name = strings.Trim(illegalSheetChars.Replace(name), "'")
	if utf8.RuneCountInString(name) > maxSheetNameLength {
		name = string([]rune(name)[:maxSheetNameLength])
	}
	if name == "" {
		name = "Sheet"
	}
	return name
}

// FileName builds "<Org>-ID<chassis>-RC_Log_Analyze-<Month-DD-YYYY>.xlsx"
func FileName(organization, chassisID string, day time.Time) string {
	return fmt.Sprintf("%s-ID%s-RC_Log_Analyze-%s.xlsx",
		capitalize(strings.TrimSpace(organization)), chassisID, day.Format("January-02-2006"))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// Workbook accumulates sheets across analysis passes and renders them on Persist
type Workbook struct {
	sheets []*Sheet
	logger *logging.Logger
}

// NewWorkbook creates an empty workbook
func NewWorkbook(logger *logging.Logger) *Workbook {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Workbook{logger: logger.WithComponent("report")}
}

// Add appends a sheet, replacing any sheet with the same name
func (w *Workbook) Add(sheet *Sheet) {
	for i, existing := range w.sheets {
		if existing.Name == sheet.Name {
			w.sheets[i] = sheet
			return
		}
	}
	w.sheets = append(w.sheets, sheet)
}

// Sheets returns the sheets in insertion order
func (w *Workbook) Sheets() []*Sheet {
	sheets := make([]*Sheet, len(w.sheets))
	copy(sheets, w.sheets)
	return sheets
}

// Persist renders every sheet added so far into a fresh file at path.
// Calling it again after adding sheets rewrites the whole file.
func (w *Workbook) Persist(path string) error {
	if len(w.sheets) == 0 {
		return ErrNoSheets
	}

	f := excelize.NewFile()
	defer f.Close()

	placeholder := f.GetSheetName(0)
	used := make(map[string]bool)
	first := ""

	for _, sheet := range w.sheets {
		name := uniqueName(SheetName(sheet.Name), used)
		if first == "" {
			first = name
		}

		if name != placeholder {
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("failed to create sheet %q: %w", name, err)
			}
		}

		if err := w.render(f, name, sheet); err != nil {
			return fmt.Errorf("failed to render sheet %q: %w", name, err)
		}
	}

	if !used[strings.ToLower(placeholder)] {
		if err := f.DeleteSheet(placeholder); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}
	if idx, err := f.GetSheetIndex(first); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := save(f, path); err != nil {
		return err
	}

	w.logger.Info().Str("path", path).Int("sheets", len(w.sheets)).Msg("Workbook saved")
	return nil
}

func uniqueName(name string, used map[string]bool) string {
	candidate := name
	for n := 2; used[strings.ToLower(candidate)]; n++ {
		suffix := " (" + strconv.Itoa(n) + ")"
		base := []rune(name)
		if len(base)+len(suffix) > maxSheetNameLength {
			base = base[:maxSheetNameLength-len(suffix)]
		}
		candidate = string(base) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

// save writes to a temporary file next to path, then renames it into place
func save(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".rclog-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create temporary workbook: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close workbook: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename workbook: %w", err)
	}

	return nil
}

func (w *Workbook) render(f *excelize.File, name string, sheet *Sheet) error {
	var centered, centeredNumber, number int
	var err error

	if sheet.Centered {
		align := &excelize.Alignment{Horizontal: "center", Vertical: "center"}
		if centered, err = f.NewStyle(&excelize.Style{Alignment: align}); err != nil {
			return err
		}
		if centeredNumber, err = f.NewStyle(&excelize.Style{Alignment: align, NumFmt: 1}); err != nil {
			return err
		}
	}
	if number, err = f.NewStyle(&excelize.Style{NumFmt: 1}); err != nil {
		return err
	}

	for r, row := range sheet.Rows {
		for c, cell := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return err
			}

			if err := w.writeCell(f, name, axis, cell); err != nil {
				return err
			}

			style := 0
			switch {
			case sheet.Centered && cell.Number:
				style = centeredNumber
			case sheet.Centered:
				style = centered
			case cell.Number:
				style = number
			}
			if style != 0 {
				if err := f.SetCellStyle(name, axis, axis, style); err != nil {
					return err
				}
			}
		}
	}

	for col, width := range sheet.ColumnWidths() {
		if width == 0 {
			continue
		}
		colName, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(name, colName, colName, float64(width)); err != nil {
			return err
		}
	}

	for _, m := range sheet.Merges {
		top, err := excelize.CoordinatesToCellName(m.Column, m.StartRow)
		if err != nil {
			return err
		}
		bottom, err := excelize.CoordinatesToCellName(m.Column, m.EndRow)
		if err != nil {
			return err
		}
		if err := f.MergeCell(name, top, bottom); err != nil {
			return err
		}
	}

	return nil
}

// writeCell writes one cell; a value rejected for illegal characters is stripped
// and written once more
func (w *Workbook) writeCell(f *excelize.File, sheet, axis string, cell Cell) error {
	err := setCell(f, sheet, axis, cell)
	if errors.Is(err, ErrIllegalCharacter) {
		w.logger.Debug().Str("sheet", sheet).Str("cell", axis).Msg("Stripping illegal characters from cell")
		cell.Value = StripIllegal(cell.Value)
		err = setCell(f, sheet, axis, cell)
	}
	return err
}

func setCell(f *excelize.File, sheet, axis string, cell Cell) error {
	if illegalCharacters.MatchString(cell.Value) {
		return fmt.Errorf("%w: %s!%s", ErrIllegalCharacter, sheet, axis)
	}

	if cell.Number {
		if n, err := strconv.Atoi(cell.Value); err == nil {
			return f.SetCellValue(sheet, axis, n)
		}
	}
	if cell.Blank() {
		return nil
	}
	return f.SetCellStr(sheet, axis, cell.Value)
}
