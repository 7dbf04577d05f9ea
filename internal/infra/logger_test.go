package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	cfg := &Config{}
	cfg.Logging.Level = "warn"
	cfg.Logging.Dir = t.TempDir()

	var console bytes.Buffer
	logger := newLogger(cfg, &console)

	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info must be filtered at warn level")
	}
	logger.Warn("book drained", slog.Int64("type_id", 34))

	var rec map[string]any
	if err := json.Unmarshal(console.Bytes(), &rec); err != nil {
		t.Fatalf("console output is not JSON: %v (%q)", err, console.String())
	}
	if rec["msg"] != "book drained" || rec["type_id"] != float64(34) {
		t.Errorf("record = %v", rec)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Logging.Dir, "mmsim.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	if !bytes.Contains(data, []byte("book drained")) {
		t.Errorf("log file = %q", data)
	}
}
