// Package artifact persists the per-category intermediate files that sit between
// extraction and report assembly.
package artifact

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// ErrEmptyArtifact marks a category file without any row
var ErrEmptyArtifact = errors.New("artifact is empty")

const csvExtension = ".csv"

// LogPrefix starts the file name of the stored reassembled log
const LogPrefix = "GetEventsToAlilog-"

// Store reads and writes one CSV file per category in a work directory
type Store struct {
	dir        string
	compressor Compressor
	written    []string
}

// NewStore creates a store rooted at dir
func NewStore(dir string, compression CompressionType) (*Store, error) {
	compressor, err := GetCompressor(compression)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	return &Store{
		dir:        dir,
		compressor: compressor,
	}, nil
}

// Path returns the file path used for a category
func (s *Store) Path(category string) string {
	return filepath.Join(s.dir, FileBase(category)+csvExtension+s.compressor.Extension())
}

// FileBase returns the file name stem used for a category. Path separators
// become underscores.
func FileBase(category string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(category)
}

// Write stores the events of a category, one (marker, description, data) row each.
// A category without events produces an empty file.
func (s *Store) Write(category string, events []types.ExtractedEvent) (string, error) {
	var buf bytes.Buffer

	if len(events) > 0 {
		w := csv.NewWriter(&buf)
		w.UseCRLF = true
		for _, ev := range events {
			if err := w.Write(ev.Row()); err != nil {
				return "", fmt.Errorf("failed to encode %s row: %w", category, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", category, err)
		}
	}

	data := buf.Bytes()
	if len(data) > 0 {
		compressed, err := s.compressor.Compress(data)
		if err != nil {
			return "", fmt.Errorf("failed to compress %s: %w", category, err)
		}
		data = compressed
	}

	path := s.Path(category)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}

	s.written = append(s.written, path)
	return path, nil
}

// Read loads the events of a category; an empty file yields ErrEmptyArtifact
func (s *Store) Read(category string) ([]types.ExtractedEvent, error) {
	raw, err := os.ReadFile(s.Path(category))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", category, ErrEmptyArtifact)
	}

	data, err := s.compressor.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s: %w", category, err)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = 3
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", category, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", category, ErrEmptyArtifact)
	}

	events := make([]types.ExtractedEvent, len(rows))
	for i, row := range rows {
		events[i] = types.ExtractedEvent{Marker: row[0], Description: row[1], Data: row[2]}
	}
	return events, nil
}

// Written returns every file the store has written, in order
func (s *Store) Written() []string {
	paths := make([]string, len(s.written))
	copy(paths, s.written)
	return paths
}

// WriteLog stores the reassembled log next to the category files
func (s *Store) WriteLog(name, content string) (string, error) {
	path := filepath.Join(s.dir, LogPrefix+filepath.Base(name))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write reassembled log: %w", err)
	}
	s.written = append(s.written, path)
	return path, nil
}
