package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "out.log")

	logger, err := newLogger(&console, logPath, false)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("scanning ports")
	_ = logger.Sync()

	if !strings.Contains(console.String(), "scanning ports") {
		t.Fatalf("console missing message: %q", console.String())
	}
	if strings.Contains(console.String(), "hidden") {
		t.Fatalf("debug message logged at info level")
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"scanning ports"`) {
		t.Fatalf("log file missing JSON line: %q", string(data))
	}
}

func TestNewLogger_VerboseEnablesDebug(t *testing.T) {
	var console bytes.Buffer
	logger, err := newLogger(&console, "", true)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("probe failed")
	_ = logger.Sync()
	if !strings.Contains(console.String(), "probe failed") {
		t.Fatalf("debug message missing: %q", console.String())
	}
}

func TestNewLogger_BadPath(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "dir", "out.log")
	if _, err := newLogger(&bytes.Buffer{}, bad, false); err == nil {
		t.Fatalf("expected error for unwritable log path")
	}
}
