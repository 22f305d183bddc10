package types

import "strconv"

// LogicalRecord is one event reassembled from consecutive incremental log lines
type LogicalRecord struct {
	Index int      `json:"index"`
	Lines []string `json:"-"`    // Source lines, newline included
	Text  string   `json:"text"` // Leading newline + lines joined with double spaces
}

// Category is a named keyword bucket
type Category struct {
	Name    string `json:"name" yaml:"name"`
	Keyword string `json:"keyword" yaml:"keyword"`
}

// ExtractedEvent is the tabular form of a record: time marker, description, data
type ExtractedEvent struct {
	Marker      string `json:"marker"`
	Description string `json:"description"`
	Data        string `json:"data"`
}

// Row returns the event as a report/CSV row
func (e ExtractedEvent) Row() []string {
	return []string{e.Marker, e.Description, e.Data}
}

// CategorizedEvent is an extracted event tagged with its category, used by sinks
type CategorizedEvent struct {
	ExtractedEvent
	Category     string `json:"category"`
	RecordIndex  int    `json:"record_index"`
	Source       string `json:"source"`
	Organization string `json:"organization,omitempty"`
	ChassisID    string `json:"chassis_id,omitempty"`
}

// DiskSection is the run of pdlist lines describing one physical disk
type DiskSection struct {
	Index int      `json:"index"`
	Lines []string `json:"-"`
}

// NullInt is an integer that may be absent
type NullInt struct {
	Value int
	Valid bool
}

// String renders the value, or "" when absent
func (n NullInt) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.Itoa(n.Value)
}

// DiskParameters holds the error counters parsed from one disk section
type DiskParameters struct {
	DeviceID           NullInt `json:"device_id"`
	EnclosureID        NullInt `json:"enclosure_id"`
	SlotNumber         NullInt `json:"slot_number"`
	OtherErrors        string  `json:"other_error_count"`
	MediaErrors        string  `json:"media_error_count"`
	PredictiveFailures string  `json:"predictive_failure_count"`
}

// EnclosureSlot renders the "enclosure/slot" identifier
func (p DiskParameters) EnclosureSlot() string {
	return p.EnclosureID.String() + "/" + p.SlotNumber.String()
}

// ArchivePosition records an archive that has already been analyzed
type ArchivePosition struct {
	Path      string `json:"path"`
	Size      int64  `json:"size"`
	ModTime   int64  `json:"mod_time"`
	Report    string `json:"report,omitempty"`
	Processed int64  `json:"processed"`
}

// RunStats summarizes one analysis run
type RunStats struct {
	Lines     int64 `json:"lines"`
	Records   int64 `json:"records"`
	Extracted int64 `json:"extracted"`
	Dropped   int64 `json:"dropped"`
	Disks     int64 `json:"disks"`
}
