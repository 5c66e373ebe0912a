package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  LogLevel
	}{
		{name: "debug lower", input: "debug", want: LevelDebug},
		{name: "info upper", input: "INFO", want: LevelInfo},
		{name: "warn mixed", input: "WaRn", want: LevelWarn},
		{name: "error", input: "error", want: LevelError},
		{name: "fatal", input: "fatal", want: LevelFatal},
		{name: "trim spaces", input: "  debug  ", want: LevelDebug},
		{name: "unknown fallback", input: "verbose", want: LevelInfo},
		{name: "empty fallback", input: "", want: LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Fatalf("ParseLevel(%q)=%v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTeeRespectsPerSinkLevel(t *testing.T) {
	var console, file bytes.Buffer
	l := NewLoggerTo(&console, LevelInfo)
	l.Tee(&file, LevelDebug)

	l.Debug("segment %d placed", 3)
	l.Info("job %s done", "abc")

	if strings.Contains(console.String(), "segment 3 placed") {
		t.Fatalf("console should not receive debug lines: %q", console.String())
	}
	if !strings.Contains(file.String(), "[DEBUG]") || !strings.Contains(file.String(), "segment 3 placed") {
		t.Fatalf("file sink missing debug line: %q", file.String())
	}
	if !strings.Contains(console.String(), "[INFO]") || !strings.Contains(console.String(), "logger_level_test.go") {
		t.Fatalf("console line missing level or caller: %q", console.String())
	}
}
