// Package disk splits a controller physical-disk listing (pdlist) into per-disk
// sections and reads the error counters of each disk.
package disk

import (
	"fmt"
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// SectionMarker starts a new disk section in a pdlist dump
const SectionMarker = "Enclosure Device ID"

// Slice splits the dump into one section per SectionMarker line.
// Section i runs to the start of section i+1, the last one to end of input.
func Slice(lines []string) []types.DiskSection {
	starts := make([]int, 0)
	for i, line := range lines {
		if strings.Contains(line, SectionMarker) {
			starts = append(starts, i)
		}
	}

	sections := make([]types.DiskSection, 0, len(starts))
	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		sections = append(sections, types.DiskSection{
			Index: i,
			Lines: lines[start:end:end],
		})
	}

	return sections
}

// SectionName returns the "Disk-<n>" label of a section
func SectionName(section types.DiskSection) string {
	return fmt.Sprintf("Disk-%d", section.Index)
}
