package output

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
	"github.com/therealutkarshpriyadarshi/rclog/internal/metrics"
	"github.com/therealutkarshpriyadarshi/rclog/internal/reliability"
	"github.com/therealutkarshpriyadarshi/rclog/internal/tracing"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

// Delivery is what a finished run hands to the sinks
type Delivery struct {
	Events []types.CategorizedEvent
	Files  []string
}

// DeadLetterWriter keeps events an event sink failed to deliver
type DeadLetterWriter interface {
	Enqueue(sink string, events []types.CategorizedEvent, cause error) error
}

// RouterConfig contains configuration for the sink router
type RouterConfig struct {
	Retry      reliability.RetryConfig
	Metrics    *metrics.Collector // optional
	Tracer     *tracing.Provider  // optional
	Logger     *logging.Logger    // optional
	DeadLetter DeadLetterWriter   // optional
}

// Router delivers a run to every configured sink in parallel.
// A failing sink never blocks the others; all failures are returned joined.
type Router struct {
	config RouterConfig
	events []EventSink
	files  []FileSink
	mu     sync.RWMutex
	closed atomic.Bool
}

// NewRouter creates an empty router
func NewRouter(config RouterConfig) *Router {
	if config.Tracer == nil {
		config.Tracer = tracing.Noop()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	return &Router{config: config}
}

// AddEventSink registers a sink for categorized events
func (r *Router) AddEventSink(sink EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sink)
}

// AddFileSink registers a sink for produced files
func (r *Router) AddFileSink(sink FileSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, sink)
}

// Empty reports whether no sink is configured
func (r *Router) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events) == 0 && len(r.files) == 0
}

// Deliver sends the run to all sinks
func (r *Router) Deliver(ctx context.Context, d Delivery) error {
	if r.closed.Load() {
		return fmt.Errorf("router is closed")
	}

	r.mu.RLock()
	eventSinks := r.events
	fileSinks := r.files
	r.mu.RUnlock()

	var wg sync.WaitGroup
	errs := make(chan error, len(eventSinks)+len(fileSinks))

	for _, sink := range eventSinks {
		if len(d.Events) == 0 {
			break
		}
		wg.Add(1)
		go func(s EventSink) {
			defer wg.Done()
			err := r.run(ctx, s.Name(), len(d.Events), func(ctx context.Context) error {
				return s.Publish(ctx, d.Events)
			})
			if err != nil {
				r.deadLetter(s.Name(), d.Events, err)
				errs <- fmt.Errorf("%s: %w", s.Name(), err)
			}
		}(sink)
	}

	for _, sink := range fileSinks {
		if len(d.Files) == 0 {
			break
		}
		wg.Add(1)
		go func(s FileSink) {
			defer wg.Done()
			for _, path := range d.Files {
				err := r.run(ctx, s.Name(), 1, func(ctx context.Context) error {
					return s.Upload(ctx, path)
				})
				if err != nil {
					errs <- fmt.Errorf("%s: %s: %w", s.Name(), path, err)
					return
				}
			}
		}(sink)
	}

	wg.Wait()
	close(errs)

	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

func (r *Router) deadLetter(sink string, events []types.CategorizedEvent, cause error) {
	if r.config.DeadLetter == nil {
		return
	}
	if err := r.config.DeadLetter.Enqueue(sink, events, cause); err != nil {
		r.config.Logger.Error().Err(err).Str("sink", sink).Msg("Failed to write dead letters")
		return
	}
	if m := r.config.Metrics; m != nil {
		m.DeadLetters.WithLabelValues(sink).Add(float64(len(events)))
	}
	r.config.Logger.Warn().Str("sink", sink).Int("events", len(events)).Msg("Undelivered events written to dead letter file")
}

// run delivers one item group with retries, tracing and metrics
func (r *Router) run(ctx context.Context, sink string, count int, fn reliability.RetryFunc) error {
	ctx, span := r.config.Tracer.StartSink(ctx, sink, count)

	retry := r.config.Retry
	retry.OnRetry = func(attempt int, err error) {
		r.config.Logger.Warn().
			Err(err).
			Str("sink", sink).
			Int("attempt", attempt).
			Msg("Sink delivery failed, retrying")
		if r.config.Metrics != nil {
			r.config.Metrics.RetryAttempts.WithLabelValues(sink).Inc()
		}
	}

	start := time.Now()
	err := reliability.Retry(ctx, retry, fn)
	tracing.End(span, err)

	if m := r.config.Metrics; m != nil {
		m.SinkDuration.WithLabelValues(sink).Observe(time.Since(start).Seconds())
		if err != nil {
			m.SinkEventsFailed.WithLabelValues(sink).Add(float64(count))
		} else {
			m.SinkEventsSent.WithLabelValues(sink).Add(float64(count))
		}
	}

	if err != nil {
		r.config.Logger.Error().Err(err).Str("sink", sink).Int("items", count).Msg("Sink delivery failed")
	} else {
		r.config.Logger.Debug().Str("sink", sink).Int("items", count).Msg("Sink delivery complete")
	}
	return err
}

// Close closes all sinks
func (r *Router) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, s := range r.events {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	for _, s := range r.files {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Metrics returns per-sink metrics keyed by sink name
func (r *Router) Metrics() map[string]*SinkMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*SinkMetrics, len(r.events)+len(r.files))
	for _, s := range r.events {
		out[s.Name()] = s.Metrics()
	}
	for _, s := range r.files {
		out[s.Name()] = s.Metrics()
	}
	return out
}
