// Package checkpoint keeps the ledger of archives the watcher has already
// analyzed, so a restart does not produce the same report twice.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Ledger persists processed archive positions as JSON
type Ledger struct {
	mu        sync.RWMutex
	path      string
	positions map[string]*types.ArchivePosition
}

// Open loads the ledger at path, starting empty when the file does not exist
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	l := &Ledger{
		path:      path,
		positions: make(map[string]*types.ArchivePosition),
	}
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var positions map[string]*types.ArchivePosition
	if err := json.Unmarshal(data, &positions); err != nil {
		return fmt.Errorf("failed to unmarshal ledger: %w", err)
	}
	if positions != nil {
		l.positions = positions
	}
	return nil
}

// Processed reports whether the archive at path was analyzed with the same size and mtime
func (l *Ledger) Processed(path string, info os.FileInfo) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[path]
	if !ok {
		return false
	}
	return pos.Size == info.Size() && pos.ModTime == info.ModTime().UnixNano()
}

// Record marks an archive as analyzed and saves the ledger
func (l *Ledger) Record(path string, info os.FileInfo, report string) error {
	l.mu.Lock()
	l.positions[path] = &types.ArchivePosition{
		Path:      path,
		Size:      info.Size(),
		ModTime:   info.ModTime().UnixNano(),
		Report:    report,
		Processed: time.Now().Unix(),
	}
	l.mu.Unlock()

	return l.Save()
}

// Position returns the recorded entry for an archive
func (l *Ledger) Position(path string) (*types.ArchivePosition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[path]
	if !ok {
		return nil, false
	}
	cp := *pos
	return &cp, true
}

// Positions returns every entry ordered by path
func (l *Ledger) Positions() []types.ArchivePosition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.ArchivePosition, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Save writes the ledger to disk
func (l *Ledger) Save() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := json.MarshalIndent(l.positions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger: %w", err)
	}

	// Write to temporary file first, then rename for atomicity
	tmpFile := l.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}

	if err := os.Rename(tmpFile, l.path); err != nil {
		return fmt.Errorf("failed to rename ledger: %w", err)
	}

	return nil
}
