package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// capture routes the logger to a buffer with a fixed clock for one test.
func capture(t *testing.T, level Level, format Format) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer

	std.mu.Lock()
	prevLevel, prevFormat, prevOut, prevNow := std.level, std.format, std.out, std.now
	std.level, std.format, std.out, std.file = level, format, &buf, nil
	std.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }
	std.mu.Unlock()

	t.Cleanup(func() {
		Close()
		std.mu.Lock()
		std.level, std.format, std.out, std.now = prevLevel, prevFormat, prevOut, prevNow
		std.mu.Unlock()
	})
	return &buf
}

func TestLevelString(t *testing.T) {
	tests := map[Level]string{
		LevelDebug: "DEBUG",
		LevelInfo:  "INFO",
		LevelWarn:  "WARN",
		LevelError: "ERROR",
		Level(42):  "UNKNOWN",
		Level(-1):  "UNKNOWN",
	}
	for level, want := range tests {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", int(level), got, want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"  INFO ", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"Error", LevelError, false},
		{"verbose", LevelInfo, true},
		{"", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatText, "text": FormatText, " JSON ": FormatJSON} {
		got, err := ParseFormat(input)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) expected error")
	}
}

func TestTextLine(t *testing.T) {
	buf := capture(t, LevelDebug, FormatText)

	Info("sync: merged %s (%d subjects)", "list-1", 3)

	want := "2024-03-01T12:30:00.000Z INFO sync: merged list-1 (3 subjects)\n"
	if buf.String() != want {
		t.Errorf("line = %q, want %q", buf.String(), want)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, LevelWarn, FormatText)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn")
	Error("shown error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below threshold written:\n%s", out)
	}
	if !strings.Contains(out, "WARN shown warn") || !strings.Contains(out, "ERROR shown error") {
		t.Errorf("messages at threshold missing:\n%s", out)
	}

	SetLevel(LevelError)
	if GetLevel() != LevelError {
		t.Errorf("GetLevel() = %v after SetLevel(LevelError)", GetLevel())
	}
}

func TestJSONLine(t *testing.T) {
	buf := capture(t, LevelInfo, FormatText)
	SetFormat(FormatJSON)

	Warn("listsvc: rejected write to %s", "abc")
	Info("no component here")
	Info("Sync: capitalised prefix is not a component")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}

	var first map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	want := map[string]string{
		"time":      "2024-03-01T12:30:00.000Z",
		"level":     "WARN",
		"component": "listsvc",
		"msg":       "rejected write to abc",
	}
	for k, v := range want {
		if first[k] != v {
			t.Errorf("%s = %q, want %q", k, first[k], v)
		}
	}

	for _, line := range lines[1:] {
		var m map[string]string
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		if _, ok := m["component"]; ok {
			t.Errorf("unexpected component in %s", line)
		}
	}
}

func TestSplitComponent(t *testing.T) {
	tests := []struct {
		msg, component, text string
	}{
		{"sync: done", "sync", "done"},
		{"store: watch: nested", "store", "watch: nested"},
		{"list_svc: x", "list_svc", "x"},
		{": empty", "", ": empty"},
		{"two words: no", "", "two words: no"},
		{"plain", "", "plain"},
	}
	for _, tt := range tests {
		c, text := splitComponent(tt.msg)
		if c != tt.component || text != tt.text {
			t.Errorf("splitComponent(%q) = %q, %q", tt.msg, c, text)
		}
	}
}

func TestLogFileMirrorsOutput(t *testing.T) {
	buf := capture(t, LevelInfo, FormatText)
	path := filepath.Join(t.TempDir(), "blsync.log")

	if err := SetRotatingLogFile(path, FileOptions{MaxSizeMB: 1, MaxBackups: 1}); err != nil {
		t.Fatalf("SetRotatingLogFile() unexpected error: %v", err)
	}
	Info("daemon: started")
	Close()
	Close() // second close is a no-op

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(b), "daemon: started") || !strings.Contains(buf.String(), "daemon: started") {
		t.Errorf("file %q, output %q", b, buf.String())
	}
}

func TestSetLogFileReplacesPrevious(t *testing.T) {
	capture(t, LevelInfo, FormatText)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.log")
	second := filepath.Join(dir, "second.log")

	if err := SetLogFile(first); err != nil {
		t.Fatal(err)
	}
	Info("to first")
	if err := SetLogFile(second); err != nil {
		t.Fatal(err)
	}
	Info("to second")
	Close()

	a, _ := os.ReadFile(first)
	b, _ := os.ReadFile(second)
	if strings.Contains(string(a), "to second") || !strings.Contains(string(b), "to second") {
		t.Errorf("first=%q second=%q", a, b)
	}
}

func TestSetLogFileErrors(t *testing.T) {
	capture(t, LevelInfo, FormatText)

	if err := SetLogFile(filepath.Join(t.TempDir(), "missing", "x.log")); err == nil {
		t.Error("SetLogFile() into a missing directory should fail")
	}

	notDir := filepath.Join(t.TempDir(), "file")
	os.WriteFile(notDir, nil, 0644)
	if err := SetLogFile(filepath.Join(notDir, "x.log")); err == nil {
		t.Error("SetLogFile() under a regular file should fail")
	}
}

func TestWriter(t *testing.T) {
	buf := capture(t, LevelInfo, FormatText)

	w := Writer(LevelWarn)
	n, err := w.Write([]byte("listsvc: migrate: OK 00001_create_lists.sql\n"))
	if err != nil || n == 0 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	w.Write([]byte("\n"))
	Writer(LevelDebug).Write([]byte("filtered"))

	out := buf.String()
	if strings.Count(out, "\n") != 1 || !strings.Contains(out, "WARN listsvc: migrate: OK") {
		t.Errorf("Writer output = %q", out)
	}
}

func TestConcurrentLogging(t *testing.T) {
	buf := capture(t, LevelInfo, FormatText)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				Info("worker %d line %d", n, j)
			}
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 200 {
		t.Errorf("got %d lines, want 200", got)
	}
}
