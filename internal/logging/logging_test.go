package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSetupConsoleLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(Options{Level: "warn", Console: &buf})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	defer cleanup()

	logger.Info("hidden")
	logger.Warn("shown", "table", "accounts")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "table=accounts") {
		t.Errorf("warn record missing: %s", out)
	}
}

func TestSetupFileSink(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "edusync.log")

	logger, cleanup, err := Setup(Options{Level: "debug", Console: &console, File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("Setup() failed: %v", err)
	}
	logger.With("mode", "delta").Debug("table synced", "records", 3)
	cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("log file is not JSON: %v\n%s", err, data)
	}
	if rec["msg"] != "table synced" || rec["mode"] != "delta" || rec["records"] != float64(3) {
		t.Errorf("unexpected record: %v", rec)
	}
	if !strings.Contains(console.String(), "table synced") {
		t.Errorf("console missing record: %s", console.String())
	}
}

func TestSetupRejectsBadLevel(t *testing.T) {
	if _, _, err := Setup(Options{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
