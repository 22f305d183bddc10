package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "keeps newlines",
			input: "a\nb\n",
			want:  []string{"a\n", "b\n"},
		},
		{
			name:  "last line without newline",
			input: "a\nb",
			want:  []string{"a\n", "b"},
		},
		{
			name:  "crlf normalized",
			input: "a\r\nb\r\n",
			want:  []string{"a\n", "b\n"},
		},
		{
			name:  "empty input",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadLines(strings.NewReader(tt.input))
			if err != nil {
				t.Fatalf("ReadLines() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ReadLines() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.SequenceMarker != "seqNum" {
		t.Errorf("expected marker seqNum, got %q", cfg.SequenceMarker)
	}
	if cfg.LineSeparator != "  " {
		t.Errorf("expected double space separator, got %q", cfg.LineSeparator)
	}
}
