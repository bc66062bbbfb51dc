// Package logger is the process-wide leveled logger used by the daemon, the
// list service and the CLI. Messages conventionally start with a component
// prefix such as "sync: " or "listsvc: ".
//
// Output goes to stderr and, optionally, to a size-rotated log file. Lines
// are plain text by default or JSON objects for log shippers.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the upper-case name of l.
func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a string to a Level.
// Accepts: debug, info, warn, error (case-insensitive).
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q: valid levels are debug, info, warn, error", s)
	}
}

// Format selects the line encoding.
type Format int

const (
	// FormatText writes "<time> <LEVEL> <message>".
	FormatText Format = iota
	// FormatJSON writes one object per line with time, level, component
	// and msg fields.
	FormatJSON
)

// ParseFormat converts "text" or "json" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q: valid formats are text, json", s)
	}
}

// FileOptions controls rotation of the log file.
type FileOptions struct {
	MaxSizeMB  int  // rotate after this many megabytes
	MaxBackups int  // rotated files to keep, 0 keeps all
	MaxAgeDays int  // days to keep rotated files, 0 keeps forever
	Compress   bool // gzip rotated files
}

// DefaultFileOptions are used by SetLogFile.
var DefaultFileOptions = FileOptions{
	MaxSizeMB:  10,
	MaxBackups: 3,
	MaxAgeDays: 28,
}

const timeLayout = "2006-01-02T15:04:05.000Z"

type logger struct {
	mu     sync.Mutex
	level  Level
	format Format
	out    io.Writer
	file   io.WriteCloser
	now    func() time.Time
}

var std = &logger{
	level: LevelInfo,
	out:   os.Stderr,
	now:   time.Now,
}

// SetLevel sets the minimum level that is written.
func SetLevel(level Level) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.level = level
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.level
}

// SetFormat switches between text and JSON lines.
func SetFormat(f Format) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.format = f
}

// SetOutput replaces the primary writer, stderr by default.
func SetOutput(w io.Writer) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.out = w
}

// SetLogFile mirrors output to path with DefaultFileOptions.
func SetLogFile(path string) error {
	return SetRotatingLogFile(path, DefaultFileOptions)
}

// SetRotatingLogFile mirrors output to path, rotating it per opts. Any
// previously configured file is closed. The parent directory must exist.
func SetRotatingLogFile(path string, opts FileOptions) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to open log file: %s is not a directory", dir)
	}

	f := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	// lumberjack opens lazily; force it so permission errors surface here.
	if _, err := f.Write(nil); err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	std.mu.Lock()
	defer std.mu.Unlock()
	if std.file != nil {
		std.file.Close()
	}
	std.file = f
	return nil
}

// Close closes the log file, if any.
func Close() {
	std.mu.Lock()
	defer std.mu.Unlock()
	if std.file != nil {
		std.file.Close()
		std.file = nil
	}
}

func (l *logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	line := l.encode(level, fmt.Sprintf(format, args...))
	io.WriteString(l.out, line)
	if l.file != nil {
		io.WriteString(l.file, line)
	}
}

func (l *logger) encode(level Level, msg string) string {
	ts := l.now().UTC().Format(timeLayout)
	if l.format == FormatText {
		return ts + " " + level.String() + " " + msg + "\n"
	}

	component, text := splitComponent(msg)
	b, err := json.Marshal(struct {
		Time      string `json:"time"`
		Level     string `json:"level"`
		Component string `json:"component,omitempty"`
		Msg       string `json:"msg"`
	}{ts, level.String(), component, text})
	if err != nil {
		return ts + " " + level.String() + " " + msg + "\n"
	}
	return string(b) + "\n"
}

// splitComponent separates a leading "component: " prefix. The component
// must be a single lower-case word.
func splitComponent(msg string) (string, string) {
	i := strings.Index(msg, ": ")
	if i <= 0 {
		return "", msg
	}
	for _, r := range msg[:i] {
		if (r < 'a' || r > 'z') && r != '-' && r != '_' {
			return "", msg
		}
	}
	return msg[:i], msg[i+2:]
}

// Debug logs at debug level.
func Debug(format string, args ...interface{}) { std.log(LevelDebug, format, args...) }

// Info logs at info level.
func Info(format string, args ...interface{}) { std.log(LevelInfo, format, args...) }

// Warn logs at warn level.
func Warn(format string, args ...interface{}) { std.log(LevelWarn, format, args...) }

// Error logs at error level.
func Error(format string, args ...interface{}) { std.log(LevelError, format, args...) }

// levelWriter logs each Write as one message.
type levelWriter struct {
	level Level
}

func (w levelWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimRight(string(p), "\n"); msg != "" {
		std.log(w.level, "%s", msg)
	}
	return len(p), nil
}

// Writer returns an io.Writer that logs everything written to it at level,
// for libraries that expect a writer.
func Writer(level Level) io.Writer {
	return levelWriter{level: level}
}
