package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLevelsSplitByStream(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logger, err := newLogger(Config{Level: "info"}, zapcore.AddSync(&stdout), zapcore.AddSync(&stderr))
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("served")
	logger.Error("failed")
	logger.Sync()

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug entry written at info level")
	}
	if !strings.Contains(stdout.String(), "served") || strings.Contains(stdout.String(), "failed") {
		t.Errorf("unexpected stdout: %s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "failed") || strings.Contains(stderr.String(), "served") {
		t.Errorf("unexpected stderr: %s", stderr.String())
	}

	var entry map[string]any
	line := strings.SplitN(stdout.String(), "\n", 2)[0]
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("entry is not json: %v", err)
	}
	if ts, ok := entry["ts"].(string); !ok || !strings.Contains(ts, "T") {
		t.Errorf("expected RFC3339 timestamp, got %v", entry["ts"])
	}
}

func TestInvalidLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bodytype.log")
	cfg := DefaultConfig()
	cfg.Level = "warn"
	cfg.File = path

	var stdout, stderr bytes.Buffer
	logger, err := newLogger(cfg, zapcore.AddSync(&stdout), zapcore.AddSync(&stderr))
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("skipped")
	logger.Warn("kept")
	logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "kept") || strings.Contains(string(data), "skipped") {
		t.Errorf("unexpected file contents: %s", data)
	}
}
