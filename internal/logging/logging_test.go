package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
		hasError bool
	}{
		{"debug", LevelDebug, false},
		{"DEBUG", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"invalid", LevelInfo, true},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			level, err := ParseLevel(test.input)
			if test.hasError && err == nil {
				t.Error("expected error, got nil")
			}
			if !test.hasError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !test.hasError && level != test.expected {
				t.Errorf("expected %v, got %v", test.expected, level)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Errorf("ParseFormat(JSON) = %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{
		LevelDebug: "debug",
		LevelInfo:  "info",
		LevelWarn:  "warn",
		LevelError: "error",
	} {
		if got := LevelString(level); got != want {
			t.Errorf("LevelString(%v) = %q, want %q", level, got, want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("expected default level Info, got %v", cfg.Level)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected default output stderr, got %s", cfg.Output)
	}
	if !strings.HasSuffix(cfg.FilePath, filepath.Join("binderd", "binderd.log")) {
		t.Errorf("unexpected default log path %s", cfg.FilePath)
	}
}

func TestJSONFormatWithComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Format = FormatJSON
	cfg.Writer = &buf

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.WithComponent("engine").Info("hello", "profile_id", "p1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["component"] != "engine" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["profile_id"] != "p1" {
		t.Errorf("profile_id = %v", entry["profile_id"])
	}
}

func TestRedaction(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("commit", "token", ".secretword", "hotkey", "ctrl+alt+b", "content", "/tp 1")

	out := buf.String()
	if strings.Contains(out, "secretword") || strings.Contains(out, "/tp 1") {
		t.Errorf("typed text leaked: %s", out)
	}
	if !strings.Contains(out, "ctrl+alt+b") {
		t.Errorf("hotkey should not be redacted: %s", out)
	}
}

func TestShouldRedact(t *testing.T) {
	for key, want := range map[string]bool{
		"token":       true,
		"Content":     true,
		"db_password": true,
		"hotkey":      false,
		"hotkey_id":   false,
		"bind_id":     false,
		"trigger":     false,
	} {
		if got := shouldRedact(key); got != want {
			t.Errorf("shouldRedact(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = filepath.Join(t.TempDir(), "logs", "binderd.log")

	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Info("written to file")
	if err := l.Sync(); err != nil {
		t.Errorf("Sync: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	data, err := os.ReadFile(cfg.FilePath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestFileRotatorRotation(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		FilePath:   filepath.Join(dir, "test.log"),
		MaxSize:    1,
		MaxBackups: 2,
		MaxAge:     7,
		Compress:   false,
	}
	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}

	chunk := bytes.Repeat([]byte("x"), 400*1024)
	for i := 0; i < 8; i++ {
		if _, err := r.Write(chunk); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	backups, err := r.Backups()
	if err != nil {
		t.Fatalf("Backups: %v", err)
	}
	if len(backups) == 0 || len(backups) > 2 {
		t.Errorf("expected 1-2 backups after pruning, got %d: %v", len(backups), backups)
	}
	info, err := os.Stat(cfg.FilePath)
	if err != nil {
		t.Fatalf("stat current: %v", err)
	}
	if info.Size() > 1024*1024 {
		t.Errorf("current log exceeds max size: %d", info.Size())
	}
}

func TestFileRotatorCompress(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{
		FilePath:   filepath.Join(dir, "c.log"),
		MaxSize:    1,
		MaxBackups: 5,
		Compress:   true,
	}
	r, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("NewFileRotator: %v", err)
	}
	chunk := bytes.Repeat([]byte("y"), 700*1024)
	r.Write(chunk)
	r.Write(chunk)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	gz, _ := filepath.Glob(filepath.Join(dir, "c-*.log.gz"))
	if len(gz) != 1 {
		t.Errorf("expected one compressed backup, got %v", gz)
	}
}

func TestCrashHandler(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Writer = &buf
	l, _ := New(cfg)

	h := NewCrashHandler(t.TempDir(), "1.2.3", "test", l.Logger)
	panicked := h.Recover(map[string]any{"op": "commit"}, func() {
		panic("boom")
	})
	if !panicked {
		t.Fatal("expected panic to be reported")
	}
	if h.Recover(nil, func() {}) {
		t.Error("no panic expected")
	}

	reports, err := h.Reports()
	if err != nil {
		t.Fatalf("Reports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	r := reports[0]
	if r.PanicValue != "boom" || r.Version != "1.2.3" || r.Component != "test" {
		t.Errorf("unexpected report: %+v", r)
	}
	if r.Context["op"] != "commit" {
		t.Errorf("context not kept: %v", r.Context)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}

	if err := h.Cleanup(-time.Second); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	reports, _ = h.Reports()
	if len(reports) != 0 {
		t.Errorf("expected reports removed, got %d", len(reports))
	}
}
