package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/therealutkarshpriyadarshi/rclog/pkg/types"
)

func TestCompressorRoundTrip(t *testing.T) {
	data := []byte("Time: Mon Jan  1 00:00:01 2024,Event Description: Drive rebuild started,Event Data: none\r\n" +
		"Time: Mon Jan  1 00:00:01 2024,Event Description: Drive rebuild started,Event Data: none\r\n")

	tests := []struct {
		name            string
		compressionType CompressionType
		wantExt         string
	}{
		{"default", "", ""},
		{"none", CompressionNone, ""},
		{"gzip", CompressionGzip, ".gz"},
		{"snappy", CompressionSnappy, ".snappy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compressor, err := GetCompressor(tt.compressionType)
			if err != nil {
				t.Fatalf("failed to get compressor: %v", err)
			}
			if compressor.Extension() != tt.wantExt {
				t.Errorf("expected extension %q, got %q", tt.wantExt, compressor.Extension())
			}

			compressed, err := compressor.Compress(data)
			if err != nil {
				t.Fatalf("compression failed: %v", err)
			}

			decompressed, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("decompression failed: %v", err)
			}

			if !bytes.Equal(decompressed, data) {
				t.Errorf("round trip failed: data mismatch")
			}
		})
	}
}

func TestUnsupportedCompression(t *testing.T) {
	if _, err := GetCompressor("lz4"); err == nil {
		t.Error("expected error for lz4")
	}
	if _, err := NewStore(t.TempDir(), "brotli"); err == nil {
		t.Error("expected NewStore to reject unknown compression")
	}
}

func TestStoreWriteRead(t *testing.T) {
	events := []types.ExtractedEvent{
		{Marker: "Seconds since last reboot: 120", Description: "Event Description: DEGRADED state", Data: "Event Data: VD0"},
		{Marker: "Time: Mon Jan  1 00:00:01 2024", Description: "Event Description: a, \"quoted\" value", Data: "Event Data: none"},
	}

	for _, compression := range []CompressionType{CompressionNone, CompressionGzip, CompressionSnappy} {
		t.Run(string(compression), func(t *testing.T) {
			dir := t.TempDir()
			store, err := NewStore(dir, compression)
			if err != nil {
				t.Fatalf("NewStore() error = %v", err)
			}

			path, err := store.Write("DEGRADED", events)
			if err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if !strings.HasPrefix(filepath.Base(path), "DEGRADED.csv") {
				t.Errorf("unexpected path %q", path)
			}

			got, err := store.Read("DEGRADED")
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if diff := cmp.Diff(events, got); diff != "" {
				t.Errorf("Read() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoreEmptyCategory(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, CompressionGzip)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	path, err := store.Write("Rebuild failed", nil)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty file, got %d bytes", info.Size())
	}

	if _, err := store.Read("Rebuild failed"); !errors.Is(err, ErrEmptyArtifact) {
		t.Errorf("expected ErrEmptyArtifact, got %v", err)
	}
}

func TestStoreMissingCategory(t *testing.T) {
	store, err := NewStore(t.TempDir(), CompressionNone)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	_, err = store.Read("nope")
	if err == nil || errors.Is(err, ErrEmptyArtifact) {
		t.Errorf("expected read error, got %v", err)
	}
}

func TestStoreWritten(t *testing.T) {
	store, err := NewStore(t.TempDir(), CompressionNone)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if _, err := store.Write("Battery", nil); err != nil {
		t.Fatal(err)
	}
	logPath, err := store.WriteLog("/x/MegaRAID_Incremental_Log_1.txt", "\nseqNum 1  ")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(logPath) != "GetEventsToAlilog-MegaRAID_Incremental_Log_1.txt" {
		t.Errorf("unexpected log path %q", logPath)
	}

	if len(store.Written()) != 2 {
		t.Errorf("expected 2 written files, got %v", store.Written())
	}
}
