package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultSequenceMarker marks the first line of every event in the incremental log
	DefaultSequenceMarker = "seqNum"

	// DefaultLineSeparator replaces the newline of every line inside a record
	DefaultLineSeparator = "  "
)

// ErrNoBoundaryMarker reports a log without any sequence marker.
// Reassembly degrades to zero records instead of returning it; callers use it for logging.
var ErrNoBoundaryMarker = errors.New("no sequence marker found in log")

// Config holds parser configuration
type Config struct {
	SequenceMarker string `yaml:"sequence_marker,omitempty"`
	LineSeparator  string `yaml:"line_separator,omitempty"`
}

// DefaultConfig returns the MegaRAID incremental log settings
func DefaultConfig() *Config {
	return &Config{
		SequenceMarker: DefaultSequenceMarker,
		LineSeparator:  DefaultLineSeparator,
	}
}

// ReadLines reads r fully and returns its lines with their trailing newline kept.
// CRLF endings are normalized to LF.
func ReadLines(r io.Reader) ([]string, error) {
	reader := bufio.NewReader(r)
	lines := make([]string, 0, 1024)

	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if strings.HasSuffix(line, "\r\n") {
				line = line[:len(line)-2] + "\n"
			}
			lines = append(lines, line)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read log lines: %w", err)
		}
	}
}
