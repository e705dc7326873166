package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"officeradar/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	cfg := &config.LogConfig{
		Server: config.LogSettings{
			Path:  serverLog,
			Level: "DEBUG",
		},
		Requests: config.LogSettings{
			Path:  requestLog,
			Level: "INFO",
		},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(serverLog); os.IsNotExist(err) {
		t.Error("Server log file not created")
	}
	if _, err := os.Stat(requestLog); os.IsNotExist(err) {
		t.Error("Request log file not created")
	}

	if RequestLogger == nil {
		t.Error("RequestLogger was not initialized")
	}
}

func TestInitRotatesPreviousLogs(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	if err := os.WriteFile(serverLog, []byte("old run\n"), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "INFO"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
	}

	cleanup, err := Init(cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer cleanup()

	rotated, err := os.ReadFile(serverLog + ".old")
	if err != nil {
		t.Fatalf("rotated log missing: %v", err)
	}
	if string(rotated) != "old run\n" {
		t.Errorf("rotated log content = %q", rotated)
	}
}

func TestRingWriterKeepsMostRecent(t *testing.T) {
	ring := NewRingWriter(3)
	for i := 1; i <= 5; i++ {
		if _, err := fmt.Fprintf(ring, "line %d\n", i); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	lines := ring.Lines(0)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	want := []string{"line 3", "line 4", "line 5"}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("lines[%d] = %q, want %q", i, line, want[i])
		}
	}
}

func TestRingWriterLinesLimit(t *testing.T) {
	ring := NewRingWriter(10)
	if _, err := ring.Write([]byte("a\nb\nc\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := ring.Lines(2)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "b" || lines[1] != "c" {
		t.Errorf("lines = %v, want [b c]", lines)
	}
}

func TestRingWriterSkipsBlankLines(t *testing.T) {
	ring := NewRingWriter(5)
	if _, err := ring.Write([]byte("one\n\n   \ntwo\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := ring.Lines(0)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %v", lines)
	}
}
