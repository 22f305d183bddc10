package parser

import (
	"regexp"
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

var (
	// "Seconds since last reboot: 120"
	rebootPattern = regexp.MustCompile(`Seconds since last reboot:.[0-9]*`)

	// "Time: Mon Jan  1 00:00:01 2024"
	timePattern = regexp.MustCompile(`Time:.([A-Za-z]*).([A-Za-z]*) *[0-9]* *([0-9]*:[0-9]*:[0-9]*) [0-9]*`)

	descriptionPattern = regexp.MustCompile(`(Event Description: .*?) Event Data`)
	dataPattern        = regexp.MustCompile(`Event Data: .*`)
)

// MarkerKind identifies which time marker produced an event
type MarkerKind string

const (
	// MarkerReboot is a "Seconds since last reboot" marker
	MarkerReboot MarkerKind = "reboot"
	// MarkerTimestamp is a "Time:" wall clock marker
	MarkerTimestamp MarkerKind = "timestamp"
)

// Extractor pulls (time marker, description, data) triples out of record text
type Extractor struct {
	dropped int64
}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract returns the events found in one record.
// The reboot and timestamp forms are tried independently, so a record carrying both
// markers yields two events. A record without a marker, description or data yields none.
func (e *Extractor) Extract(record types.LogicalRecord) []types.ExtractedEvent {
	events := ExtractEvents(record.Text)
	if len(events) == 0 {
		e.dropped++
	}
	return events
}

// ExtractAll extracts events from every record in order
func (e *Extractor) ExtractAll(records []types.LogicalRecord) []types.ExtractedEvent {
	events := make([]types.ExtractedEvent, 0, len(records))
	for _, rec := range records {
		events = append(events, e.Extract(rec)...)
	}
	return events
}

// Dropped returns how many records produced no event
func (e *Extractor) Dropped() int64 {
	return e.dropped
}

// ExtractEvents applies the structural patterns to text
func ExtractEvents(text string) []types.ExtractedEvent {
	description, data, ok := eventFields(text)
	if !ok {
		return nil
	}

	var events []types.ExtractedEvent
	if marker := rebootPattern.FindString(text); marker != "" {
		events = append(events, types.ExtractedEvent{
			Marker:      strings.TrimSpace(marker),
			Description: description,
			Data:        data,
		})
	}
	if marker := timePattern.FindString(text); marker != "" {
		events = append(events, types.ExtractedEvent{
			Marker:      strings.TrimSpace(marker),
			Description: description,
			Data:        data,
		})
	}

	return events
}

// MarkerKinds reports which time markers are present in text
func MarkerKinds(text string) []MarkerKind {
	var kinds []MarkerKind
	if rebootPattern.MatchString(text) {
		kinds = append(kinds, MarkerReboot)
	}
	if timePattern.MatchString(text) {
		kinds = append(kinds, MarkerTimestamp)
	}
	return kinds
}

// eventFields returns the trimmed description and data fields of text
func eventFields(text string) (string, string, bool) {
	desc := descriptionPattern.FindStringSubmatch(text)
	if desc == nil {
		return "", "", false
	}

	data := dataPattern.FindString(text)
	if data == "" {
		return "", "", false
	}

	return strings.TrimSpace(desc[1]), strings.TrimSpace(data), true
}
