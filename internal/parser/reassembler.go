package parser

import (
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Reassembler merges incremental log lines into logical event records.
// A record starts at every line containing the sequence marker and runs up to the
// next marker line, or to end of input for the last one.
type Reassembler struct {
	marker    string
	separator string
}

// NewReassembler creates a reassembler, falling back to defaults for empty settings
func NewReassembler(cfg *Config) *Reassembler {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	marker := cfg.SequenceMarker
	if marker == "" {
		marker = DefaultSequenceMarker
	}

	separator := cfg.LineSeparator
	if separator == "" {
		separator = DefaultLineSeparator
	}

	return &Reassembler{
		marker:    marker,
		separator: separator,
	}
}

// Reassemble is a shortcut for the default reassembler
func Reassemble(lines []string) []types.LogicalRecord {
	return NewReassembler(nil).Reassemble(lines)
}

// Boundaries returns the index of every line containing marker
func Boundaries(lines []string, marker string) []int {
	indices := make([]int, 0)
	for i, line := range lines {
		if strings.Contains(line, marker) {
			indices = append(indices, i)
		}
	}
	return indices
}

// Reassemble returns one record per marker line, in input order.
// Lines ahead of the first marker belong to no record; no marker yields no records.
func (r *Reassembler) Reassemble(lines []string) []types.LogicalRecord {
	starts := Boundaries(lines, r.marker)
	records := make([]types.LogicalRecord, 0, len(starts))

	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}

		block := lines[start:end:end]
		records = append(records, types.LogicalRecord{
			Index: i,
			Lines: block,
			Text:  r.join(block),
		})
	}

	return records
}

// join concatenates lines with each newline replaced by the separator
func (r *Reassembler) join(lines []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString(strings.ReplaceAll(line, "\n", r.separator))
	}
	return b.String()
}

// Render returns the records as the flat "one event per line" log the
// reassembler produces, suitable for writing next to the source log
func Render(records []types.LogicalRecord) string {
	var b strings.Builder
	for _, rec := range records {
		b.WriteString(rec.Text)
	}
	return b.String()
}
