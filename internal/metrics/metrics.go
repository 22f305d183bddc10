package metrics

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all metrics
const namespace = "rclog"

// Run statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Collector provides a central place for all analyzer metrics
type Collector struct {
	// Run metrics
	RunsTotal        *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge
	StageDuration    *prometheus.HistogramVec

	// Analysis metrics
	LinesRead          prometheus.Counter
	RecordsReassembled prometheus.Counter
	RecordsCategorized *prometheus.CounterVec
	EventsExtracted    *prometheus.CounterVec
	EventsDropped      prometheus.Counter
	DisksAnalyzed      prometheus.Counter
	DiskErrors         *prometheus.GaugeVec

	// Sink metrics
	SinkEventsSent   *prometheus.CounterVec
	SinkEventsFailed *prometheus.CounterVec
	SinkDuration     *prometheus.HistogramVec
	RetryAttempts    *prometheus.CounterVec
	DeadLetters      *prometheus.CounterVec

	// System metrics
	SystemGoroutines prometheus.Gauge
	SystemMemAlloc   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.Mutex
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
	}

	c.initRunMetrics()
	c.initAnalysisMetrics()
	c.initSinkMetrics()
	c.initSystemMetrics()

	return c
}

func (c *Collector) initRunMetrics() {
	c.RunsTotal = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "total",
			Help:      "Total number of analysis runs by status",
		},
		[]string{"status"},
	)

	c.LastRunTimestamp = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_timestamp_seconds",
			Help:      "Unix time of the last finished run",
		},
	)

	c.StageDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each analysis stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		},
		[]string{"stage"},
	)
}

func (c *Collector) initAnalysisMetrics() {
	c.LinesRead = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "lines_read_total",
			Help:      "Total lines read from incremental logs",
		},
	)

	c.RecordsReassembled = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "records_total",
			Help:      "Total logical records reassembled",
		},
	)

	c.RecordsCategorized = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "records_categorized_total",
			Help:      "Records assigned to each category",
		},
		[]string{"category"},
	)

	c.EventsExtracted = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "events_extracted_total",
			Help:      "Events extracted for each category",
		},
		[]string{"category"},
	)

	c.EventsDropped = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "records_dropped_total",
			Help:      "Records that yielded no event",
		},
	)

	c.DisksAnalyzed = promauto.With(c.registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "disk",
			Name:      "analyzed_total",
			Help:      "Total disk sections parsed",
		},
	)

	c.DiskErrors = promauto.With(c.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "disk",
			Name:      "error_count",
			Help:      "Error counters of each disk in the last analyzed archive",
		},
		[]string{"device_id", "enclosure_slot", "counter"},
	)
}

func (c *Collector) initSinkMetrics() {
	c.SinkEventsSent = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "items_sent_total",
			Help:      "Total items delivered by each sink",
		},
		[]string{"sink"},
	)

	c.SinkEventsFailed = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "items_failed_total",
			Help:      "Total items each sink failed to deliver",
		},
		[]string{"sink"},
	)

	c.SinkDuration = promauto.With(c.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "duration_seconds",
			Help:      "Time spent delivering to each sink",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"sink"},
	)

	c.RetryAttempts = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "retries_total",
			Help:      "Total retry attempts by operation",
		},
		[]string{"operation"},
	)

	c.DeadLetters = promauto.With(c.registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sink",
			Name:      "dead_letters_total",
			Help:      "Events written to the dead letter file after a sink gave up",
		},
		[]string{"sink"},
	)
}

func (c *Collector) initSystemMetrics() {
	c.SystemGoroutines = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "goroutines",
			Help:      "Number of goroutines",
		},
	)

	c.SystemMemAlloc = promauto.With(c.registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "system",
			Name:      "memory_alloc_bytes",
			Help:      "Bytes of allocated heap objects",
		},
	)
}

// ObserveStage records how long a stage took
func (c *Collector) ObserveStage(stage string, start time.Time) {
	c.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// RunFinished counts a run and stamps its completion time
func (c *Collector) RunFinished(err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailed
	}
	c.RunsTotal.WithLabelValues(status).Inc()
	c.LastRunTimestamp.SetToCurrentTime()
}

// collectSystemMetrics gathers runtime metrics
func (c *Collector) collectSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.SystemGoroutines.Set(float64(runtime.NumGoroutine()))
	c.SystemMemAlloc.Set(float64(m.Alloc))
}

// WriteTextfile writes the registry in the text exposition format for
// the node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.collectSystemMetrics()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Handler serves the registry for scraping, refreshing system metrics first
func (c *Collector) Handler() http.Handler {
	inner := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.collectSystemMetrics()
		c.mu.Unlock()
		inner.ServeHTTP(w, r)
	})
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
