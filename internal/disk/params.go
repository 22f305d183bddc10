package disk

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// ErrMalformedNumericField is returned when an integer field holds non-numeric text
var ErrMalformedNumericField = errors.New("malformed numeric field")

// FieldKind is the target type of a labeled field
type FieldKind int

const (
	KindInt FieldKind = iota
	KindString
)

// Field describes how one labeled value is located and sliced out of a line.
// Offset counts from the start of the line, matching the label length.
type Field struct {
	Label  string
	Offset int
	Kind   FieldKind
	assign func(p *types.DiskParameters, raw string) error
}

// Fields is the extraction table applied to every line of a section
var Fields = []Field{
	{Label: "Device Id", Offset: 10, Kind: KindInt, assign: func(p *types.DiskParameters, raw string) error {
		return setInt(&p.DeviceID, raw)
	}},
	{Label: "Enclosure Device ID", Offset: 20, Kind: KindInt, assign: func(p *types.DiskParameters, raw string) error {
		return setInt(&p.EnclosureID, raw)
	}},
	{Label: "Slot Number", Offset: 12, Kind: KindInt, assign: func(p *types.DiskParameters, raw string) error {
		return setInt(&p.SlotNumber, raw)
	}},
	{Label: "Other Error Count:", Offset: 18, Kind: KindString, assign: func(p *types.DiskParameters, raw string) error {
		p.OtherErrors = raw
		return nil
	}},
	{Label: "Media Error Count:", Offset: 18, Kind: KindString, assign: func(p *types.DiskParameters, raw string) error {
		p.MediaErrors = raw
		return nil
	}},
	{Label: "Predictive Failure Count:", Offset: 25, Kind: KindString, assign: func(p *types.DiskParameters, raw string) error {
		p.PredictiveFailures = raw
		return nil
	}},
}

// Value slices the raw value out of a line carrying the field's label
func (f Field) Value(line string) string {
	if len(line) <= f.Offset {
		return ""
	}
	return strings.TrimSpace(line[f.Offset:])
}

func setInt(dst *types.NullInt, raw string) error {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformedNumericField, raw)
	}
	*dst = types.NullInt{Value: v, Valid: true}
	return nil
}

// ParseParameters reads the labeled counters of one disk section.
// Lines are scanned independently; a later line overrides an earlier one and a
// missing label leaves the field empty.
func ParseParameters(section types.DiskSection) (types.DiskParameters, error) {
	var params types.DiskParameters

	for lineNo, line := range section.Lines {
		for _, field := range Fields {
			if !strings.Contains(line, field.Label) {
				continue
			}
			if err := field.assign(&params, field.Value(line)); err != nil {
				return params, fmt.Errorf("%s line %d, %s: %w", SectionName(section), lineNo+1, field.Label, err)
			}
		}
	}

	return params, nil
}

// ParseAll slices the dump and parses every section, stopping at the first error
func ParseAll(lines []string) ([]types.DiskParameters, error) {
	sections := Slice(lines)
	disks := make([]types.DiskParameters, 0, len(sections))

	for _, section := range sections {
		params, err := ParseParameters(section)
		if err != nil {
			return nil, err
		}
		disks = append(disks, params)
	}

	return disks, nil
}
