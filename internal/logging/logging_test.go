package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]zapcore.Level{
		"":      zapcore.WarnLevel,
		"DEBUG": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		" warn": zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Fatalf("expected an error for an unknown level")
	}
}

func TestNew_WritesJSONToConsole(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log, err := New(Options{Level: "info", Console: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Debug("hidden")
	log.Info("Expanded types", zap.Int("types", 3))
	_ = log.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one entry, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"ts", "level", "msg", "caller", "types"} {
		if _, ok := entry[k]; !ok {
			t.Fatalf("missing %q in %v", k, entry)
		}
	}
	if entry["level"] != "info" || entry["msg"] != "Expanded types" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNew_TeesToFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "ramlenhance.log")
	var buf bytes.Buffer
	log, err := New(Options{Level: "warn", File: path, Console: &buf})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	log.Warn("Type expansion failed", zap.String("type", "Pet"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"type":"Pet"`) {
		t.Fatalf("file entry missing: %q", data)
	}
	if !strings.Contains(buf.String(), `"type":"Pet"`) {
		t.Fatalf("console entry missing: %q", buf.String())
	}
}
