// Package output delivers the results of a run to external systems: the
// workbook and artifacts to object storage, categorized events to brokers
// and search indices.
package output

import (
	"context"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// EventSink receives the categorized events of a run
type EventSink interface {
	// Publish delivers a batch of events
	Publish(ctx context.Context, events []types.CategorizedEvent) error

	// Close releases resources
	Close() error

	// Name returns the name of the sink
	Name() string

	// Metrics returns the current metrics for this sink
	Metrics() *SinkMetrics
}

// FileSink uploads files produced by a run
type FileSink interface {
	// Upload stores one local file
	Upload(ctx context.Context, path string) error

	// Close releases resources
	Close() error

	// Name returns the name of the sink
	Name() string

	// Metrics returns the current metrics for this sink
	Metrics() *SinkMetrics
}

// SinkMetrics tracks delivery metrics for a sink
type SinkMetrics struct {
	ItemsSent     int64         `json:"items_sent"`
	ItemsFailed   int64         `json:"items_failed"`
	BytesSent     int64         `json:"bytes_sent"`
	LastSendTime  time.Time     `json:"last_send_time"`
	LastError     string        `json:"last_error,omitempty"`
	LastErrorTime time.Time     `json:"last_error_time,omitempty"`
	AvgLatency    time.Duration `json:"avg_latency"`
}

// sinkStats is the mutex-guarded SinkMetrics shared by every sink
type sinkStats struct {
	mu sync.Mutex
	m  SinkMetrics
}

func (s *sinkStats) success(items, bytes int64, latency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m.ItemsSent += items
	s.m.BytesSent += bytes
	s.m.LastSendTime = time.Now()
	if s.m.AvgLatency == 0 {
		s.m.AvgLatency = latency
	} else {
		s.m.AvgLatency = (s.m.AvgLatency + latency) / 2
	}
}

func (s *sinkStats) failure(items int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m.ItemsFailed += items
	s.m.LastError = err.Error()
	s.m.LastErrorTime = time.Now()
}

func (s *sinkStats) snapshot() *SinkMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	metricsCopy := s.m
	return &metricsCopy
}
