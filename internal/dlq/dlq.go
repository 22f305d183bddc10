// Package dlq keeps categorized events that no retry could deliver, as one
// JSON line per event, so they can be inspected or replayed later.
package dlq

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// FileName is the dead letter file inside the configured directory
const FileName = "dead-letters.jsonl"

var (
	ErrDLQClosed = errors.New("dead letter queue is closed")
	ErrDLQFull   = errors.New("dead letter queue is full")
)

// DLQConfig holds configuration for the Dead Letter Queue
type DLQConfig struct {
	Dir     string
	MaxSize int64 // Maximum number of entries kept in the file
}

// DLQEntry is one undelivered event
type DLQEntry struct {
	Event     types.CategorizedEvent `json:"event"`
	Sink      string                 `json:"sink"`
	Error     string                 `json:"error"`
	Timestamp time.Time              `json:"timestamp"`
}

// DeadLetterQueue appends failed events to a JSON lines file
type DeadLetterQueue struct {
	config DLQConfig
	path   string

	mu     sync.Mutex
	file   *os.File
	size   int64
	closed bool

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

// NewDeadLetterQueue opens (or creates) the dead letter file in config.Dir
func NewDeadLetterQueue(config DLQConfig) (*DeadLetterQueue, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("DLQ directory is required")
	}
	if config.MaxSize == 0 {
		config.MaxSize = 100000
	}

	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DLQ directory: %w", err)
	}

	path := filepath.Join(config.Dir, FileName)
	existing, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load DLQ: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open DLQ file: %w", err)
	}

	return &DeadLetterQueue{
		config: config,
		path:   path,
		file:   file,
		size:   int64(len(existing)),
	}, nil
}

// Enqueue records events a sink failed to deliver. Events beyond MaxSize are
// dropped and reported with ErrDLQFull.
func (q *DeadLetterQueue) Enqueue(sink string, events []types.CategorizedEvent, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrDLQClosed
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := time.Now().UTC()

	w := bufio.NewWriter(q.file)
	encoder := json.NewEncoder(w)
	var dropped uint64
	for _, event := range events {
		if q.size >= q.config.MaxSize {
			dropped++
			continue
		}
		entry := DLQEntry{Event: event, Sink: sink, Error: message, Timestamp: now}
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
		q.size++
		q.enqueued.Add(1)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write DLQ file: %w", err)
	}
	if err := q.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync DLQ file: %w", err)
	}

	if dropped > 0 {
		q.dropped.Add(dropped)
		return fmt.Errorf("%w: dropped %d events", ErrDLQFull, dropped)
	}
	return nil
}

// Path returns the dead letter file
func (q *DeadLetterQueue) Path() string {
	return q.path
}

// Size returns the number of entries in the file
func (q *DeadLetterQueue) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Close closes the file
func (q *DeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrDLQClosed
	}
	q.closed = true
	return q.file.Close()
}

// Metrics returns DLQ statistics
func (q *DeadLetterQueue) Metrics() DLQMetrics {
	return DLQMetrics{
		Enqueued:    q.enqueued.Load(),
		Dropped:     q.dropped.Load(),
		CurrentSize: q.Size(),
		MaxSize:     q.config.MaxSize,
	}
}

// DLQMetrics holds DLQ statistics
type DLQMetrics struct {
	Enqueued    uint64
	Dropped     uint64
	CurrentSize int64
	MaxSize     int64
}

// Utilization returns the DLQ utilization percentage (0-100)
func (m DLQMetrics) Utilization() float64 {
	if m.MaxSize == 0 {
		return 0
	}
	return (float64(m.CurrentSize) / float64(m.MaxSize)) * 100.0
}

// Load reads every entry of a dead letter file. A missing file has no entries.
func Load(path string) ([]DLQEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open DLQ file: %w", err)
	}
	defer file.Close()

	var entries []DLQEntry
	decoder := json.NewDecoder(file)
	for {
		var entry DLQEntry
		if err := decoder.Decode(&entry); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
