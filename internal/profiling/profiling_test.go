package profiling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/therealutkarshpriyadarshi/rclog/internal/logging"
)

func TestProfilerWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CPUProfilePath: filepath.Join(dir, "prof", "rclog.cpu"),
		MemProfilePath: filepath.Join(dir, "prof", "rclog.heap"),
	}

	p := New(cfg, logging.Nop())
	if !p.Enabled() {
		t.Fatal("Expected profiler to be enabled")
	}

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Burn a little CPU so the profile has samples to write
	sum := 0
	for i := 0; i < 1_000_000; i++ {
		sum += len(strings.Repeat("x", i%8))
	}
	_ = sum

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	for _, path := range []string{cfg.CPUProfilePath, cfg.MemProfilePath} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("profile %s not written: %v", path, err)
		}
		if info.Size() == 0 {
			t.Errorf("profile %s is empty", path)
		}
	}
}

func TestProfilerDisabled(t *testing.T) {
	p := New(Config{}, logging.Nop())
	if p.Enabled() {
		t.Error("Expected profiler to be disabled")
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestProfilerDoubleStart(t *testing.T) {
	p := New(Config{MemProfilePath: filepath.Join(t.TempDir(), "heap")}, logging.Nop())
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	defer p.Stop()

	if err := p.Start(); err == nil {
		t.Error("Expected error on second Start")
	}
}

func TestStopWithoutStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap")
	p := New(Config{MemProfilePath: path}, logging.Nop())
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Heap profile should not be written without Start")
	}
}

func TestRegisterHandlers(t *testing.T) {
	mux := http.NewServeMux()
	RegisterHandlers(mux)

	tests := []struct {
		path string
		want int
	}{
		{"/debug/pprof/", http.StatusOK},
		{"/debug/pprof/cmdline", http.StatusOK},
		{"/debug/stats", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
		})
	}
}

func TestStatsHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	statsHandler(rec, httptest.NewRequest(http.MethodGet, "/debug/stats", nil))

	var stats RuntimeStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Goroutines == 0 || stats.CPUs == 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}
