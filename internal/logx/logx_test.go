package logx

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	logger, err := NewLogger("warn", false, LogRotationConfig{Filename: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hidden by level")
	logger.Warn("visible warning")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "visible warning" || entry["ts"] == nil {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLoggerBadLevelFallsBack(t *testing.T) {
	logger, err := NewLogger("loud", true, LogRotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if !logger.Core().Enabled(0) || logger.Core().Enabled(-1) {
		t.Error("unknown level must fall back to info")
	}
}
