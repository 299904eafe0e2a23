// ABOUTME: Tests for logger setup
// ABOUTME: Tests level parsing, console output and file output
package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   Level
		want zapcore.Level
	}{
		{DebugLevel, zapcore.DebugLevel},
		{InfoLevel, zapcore.InfoLevel},
		{WarnLevel, zapcore.WarnLevel},
		{ErrorLevel, zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConsoleLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: WarnLevel, Console: &buf})
	if err != nil {
		t.Fatal(err)
	}

	l.Info("quiet")
	l.Warn("loud")
	l.Sync()

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "loud") {
		t.Error("warn should be logged")
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "stemdeck.log")
	l, err := New(Config{Level: DebugLevel, OutputPath: path})
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("to file", String("track", "drums"))
	l.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"track":"drums"`) {
		t.Errorf("expected JSON field in %s", data)
	}
}

func TestInitReplacesGlobal(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Init(Config{Level: InfoLevel, Console: &buf}); err != nil {
		t.Fatal(err)
	}
	defer Init(Config{})

	Info("hello", Int("n", 1))
	Sync()
	if !strings.Contains(buf.String(), "hello") {
		t.Error("global logger not installed")
	}
}
