package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestComponentField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(zerolog.ConsoleWriter{Out: &bytes.Buffer{}})
	SetLevel(zerolog.DebugLevel)

	log := For("loop")
	log.Debug().Int("axes", 3).Msg("starting")

	out := buf.String()
	if !strings.Contains(out, `"component":"loop"`) {
		t.Errorf("Expected component field in output, got %s", out)
	}
	if !strings.Contains(out, `"axes":3`) {
		t.Errorf("Expected axes field in output, got %s", out)
	}
}

func TestChainedCall(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(zerolog.ConsoleWriter{Out: &bytes.Buffer{}})
	SetLevel(zerolog.InfoLevel)

	For("format").Info().Str("file", "a.raw").Msg("mapped")
	For("format").Debug().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, `"file":"a.raw"`) {
		t.Errorf("Expected chained event in output, got %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug event to be filtered at info level, got %s", out)
	}
}
