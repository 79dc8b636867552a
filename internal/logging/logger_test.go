package logging

import (
	"io"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesToBuffer(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard)

	logger.Info("task started", map[string]string{"pid": "42"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != LevelInfo {
		t.Fatalf("expected info level, got %q", entry.Level)
	}
	if entry.Message != "task started" {
		t.Fatalf("expected message task started, got %q", entry.Message)
	}
	if entry.Context["pid"] != "42" {
		t.Fatalf("expected context pid=42, got %v", entry.Context)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelWarning, io.Discard)

	logger.Info("info", nil)
	logger.Warn("warn", nil)

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != LevelWarning {
		t.Fatalf("expected warning level, got %q", entries[0].Level)
	}
}

func TestLoggerWithMergesBaseContext(t *testing.T) {
	buffer := NewLogBuffer(10)
	logger := NewLoggerWithOutput(buffer, LevelInfo, io.Discard).With(map[string]string{"component": "watcher"})

	logger.Info("change detected", map[string]string{"path": "/tmp/a"})

	entries := buffer.List()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	context := entries[0].Context
	if context["component"] != "watcher" || context["path"] != "/tmp/a" {
		t.Fatalf("expected merged context, got %v", context)
	}
}

func TestLoggerSubscribeReceivesEntries(t *testing.T) {
	logger := NewLoggerWithOutput(NewLogBuffer(10), LevelInfo, io.Discard)
	output, cancel := logger.Subscribe()
	defer cancel()

	logger.Info("restarting", nil)

	select {
	case entry := <-output:
		if entry.Message != "restarting" {
			t.Fatalf("expected restarting entry, got %q", entry.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log entry")
	}
}

func TestFormatEntrySortsContextKeys(t *testing.T) {
	entry := LogEntry{
		Level:   LevelError,
		Message: "task failed",
		Context: map[string]string{"error": "exit status 1", "attempt": "3"},
	}

	formatted := formatEntry(entry)
	if !strings.HasPrefix(formatted, `level=error msg="task failed"`) {
		t.Fatalf("unexpected prefix: %q", formatted)
	}
	if strings.Index(formatted, "attempt=") > strings.Index(formatted, "error=") {
		t.Fatalf("expected sorted context keys: %q", formatted)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input    string
		expected Level
		ok       bool
	}{
		{input: "debug", expected: LevelDebug, ok: true},
		{input: "WARN", expected: LevelWarning, ok: true},
		{input: " info ", expected: LevelInfo, ok: true},
		{input: "fatal", expected: "", ok: false},
	}

	for _, testCase := range cases {
		level, ok := ParseLevel(testCase.input)
		if ok != testCase.ok || level != testCase.expected {
			t.Fatalf("parse %q: expected (%q, %v), got (%q, %v)", testCase.input, testCase.expected, testCase.ok, level, ok)
		}
	}
}
