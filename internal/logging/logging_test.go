package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		raw    string
		want   zerolog.Level
		wantOK bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, true},
		{" WARN ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"loud", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestVerboseEnablesDebug(t *testing.T) {
	t.Setenv(EnvLogLevel, "")

	var buf bytes.Buffer
	quiet := NewWithWriter(&buf, "test", false)
	quiet.Debug().Msg("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("debug message should be filtered when not verbose")
	}

	buf.Reset()
	loud := NewWithWriter(&buf, "test", true)
	loud.Debug().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected debug message, got %q", buf.String())
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "test", true)
	logger.Info().Msg("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected env level to suppress info, got %q", buf.String())
	}
}
