package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/thesyncim/transcode/internal/config"
	"github.com/thesyncim/transcode/internal/logging"
)

func TestNewJSONLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "transcode.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("segment uploaded", zap.Uint32("sequence", 3), zap.String("name", "clip-240p.3.webm"))
	logger.Sync() //nolint:errcheck

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(content, &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", content)
	}
	if entry["msg"] != "segment uploaded" || entry["level"] != "debug" || entry["name"] != "clip-240p.3.webm" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["sequence"] != float64(3) {
		t.Fatalf("unexpected sequence: %v", entry["sequence"])
	}
}

func TestConsoleLoggerFiltersByLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "transcode.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("preview render failed", zap.Error(os.ErrClosed))
	logger.Sync() //nolint:errcheck

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(content)
	if strings.Contains(out, "hidden") {
		t.Fatalf("info entry written at warn level: %q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "preview render failed") {
		t.Fatalf("missing warn entry: %q", out)
	}
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "transcode.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "invalid", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) || !logger.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected info level")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for xml format")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "error"
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	if logger.Core().Enabled(zap.WarnLevel) {
		t.Fatal("expected error level")
	}
	if _, err := logging.NewFromConfig(nil); err != nil {
		t.Fatalf("NewFromConfig(nil) returned error: %v", err)
	}
}
