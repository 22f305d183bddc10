// Package watch runs an analysis for every diagnostic archive dropped into
// an inbox directory, once per archive.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/therealutkarshpriyadarshi/rclog/internal/checkpoint"
	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
)

// Result is what a handler reports for one archive
type Result struct {
	Archive string // final archive path, which may differ after a rename
	Report  string
}

// Handler analyzes one archive
type Handler func(ctx context.Context, archive string) (Result, error)

// Config holds watcher configuration
type Config struct {
	Inbox    string
	Pattern  string // case-insensitive name fragment an archive must contain
	Debounce time.Duration
}

// Watcher feeds new inbox archives to a handler, one at a time
type Watcher struct {
	config  Config
	ledger  *checkpoint.Ledger
	handler Handler
	logger  *logging.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	queue   chan string

	statsMu sync.RWMutex
	stats   Stats
}

// Stats summarizes what the watcher has done since it started
type Stats struct {
	Processed  int64     `json:"processed"`
	Failed     int64     `json:"failed"`
	Pending    int       `json:"pending"`
	LastRun    time.Time `json:"last_run,omitempty"`
	LastReport string    `json:"last_report,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// New creates a watcher on the inbox directory
func New(config Config, ledger *checkpoint.Ledger, handler Handler, logger *logging.Logger) (*Watcher, error) {
	if config.Inbox == "" {
		return nil, fmt.Errorf("no inbox directory specified")
	}
	if config.Debounce <= 0 {
		config.Debounce = 2 * time.Second
	}
	if logger == nil {
		logger = logging.Nop()
	}

	if err := os.MkdirAll(config.Inbox, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(config.Inbox); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", config.Inbox, err)
	}

	return &Watcher{
		config:  config,
		ledger:  ledger,
		handler: handler,
		logger:  logger.WithComponent("watch"),
		watcher: watcher,
		pending: make(map[string]*time.Timer),
		queue:   make(chan string, 64),
	}, nil
}

// Run processes archives already in the inbox, then every new one, until
// ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	existing, err := w.scan()
	if err != nil {
		return err
	}
	for _, path := range existing {
		w.process(ctx, path)
	}

	w.logger.Info().Str("inbox", w.config.Inbox).Msg("Watching inbox")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("File watcher error")

		case path := <-w.queue:
			w.process(ctx, path)
		}
	}
}

func (w *Watcher) stop() {
	w.watcher.Close()

	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

// Stats returns a snapshot of the watcher counters
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	pending := len(w.pending) + len(w.queue)
	w.mu.Unlock()

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.Pending = pending
	return stats
}

func (w *Watcher) finished(report string, err error) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.Failed++
		w.stats.LastError = err.Error()
		return
	}
	w.stats.Processed++
	w.stats.LastReport = report
	w.stats.LastError = ""
}

// matches reports whether a file name looks like a diagnostic archive
func (w *Watcher) matches(name string) bool {
	lower := strings.ToLower(filepath.Base(name))
	if !strings.HasSuffix(lower, ".zip") && !strings.HasSuffix(lower, ".log") {
		return false
	}
	return w.config.Pattern == "" || strings.Contains(lower, strings.ToLower(w.config.Pattern))
}

// scan lists matching archives currently in the inbox, ordered by name
func (w *Watcher) scan() ([]string, error) {
	entries, err := os.ReadDir(w.config.Inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && w.matches(entry.Name()) {
			paths = append(paths, filepath.Join(w.config.Inbox, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// handleEvent debounces writes so an archive is processed once it stops changing
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[event.Name]; ok {
		timer.Reset(w.config.Debounce)
		return
	}

	path := event.Name
	w.pending[path] = time.AfterFunc(w.config.Debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		select {
		case w.queue <- path:
		default:
			w.logger.Warn().Str("path", path).Msg("Queue full, archive will be picked up on restart")
		}
	})
}

// process runs the handler unless the ledger already has the archive
func (w *Watcher) process(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		// Renamed or removed since the event
		w.logger.Debug().Err(err).Str("path", path).Msg("Skipping vanished archive")
		return
	}
	if w.ledger != nil && w.ledger.Processed(path, info) {
		w.logger.Debug().Str("path", path).Msg("Archive already processed")
		return
	}

	w.logger.Info().Str("path", path).Msg("Processing archive")
	result, err := w.handler(ctx, path)
	w.finished(result.Report, err)
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("Archive analysis failed")
		return
	}

	if result.Archive == "" {
		result.Archive = path
	}
	if w.ledger == nil {
		return
	}

	final, err := os.Stat(result.Archive)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", result.Archive).Msg("Cannot record archive in ledger")
		return
	}
	if err := w.ledger.Record(result.Archive, final, result.Report); err != nil {
		w.logger.Error().Err(err).Str("path", result.Archive).Msg("Failed to update ledger")
		return
	}

	w.logger.Info().Str("path", result.Archive).Str("report", result.Report).Msg("Archive processed")
}
