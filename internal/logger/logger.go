// Package logger formats slog records as single lines and writes them to a
// size-rotated file, optionally mirrored to the console:
//
//	2006-01-02T15:04:05.000Z [LEVEL] message | key=value, key2=value2
//
// Two levels extend the slog set: TRACE (-8) below DEBUG for per-tick
// diagnostics, and FAIL (12) above ERROR for conditions that stop the daemon.
package logger

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Levels
// ///////////////////////////////////////////////

const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelFail  slog.Level = 12
)

// levels is ordered by severity. A record takes the name of the first entry
// at or above its level.
var levels = []struct {
	level slog.Level
	name  string
}{
	{LevelTrace, "TRACE"},
	{LevelDebug, "DEBUG"},
	{LevelInfo, "INFO"},
	{LevelWarn, "WARN"},
	{LevelError, "ERROR"},
	{LevelFail, "FAIL"},
}

func levelName(l slog.Level) string {
	for _, e := range levels {
		if l <= e.level {
			return e.name
		}
	}
	return "FAIL"
}

// ParseLevel maps a case-insensitive level name to its slog.Level. Unknown
// names map to INFO.
func ParseLevel(s string) slog.Level {
	for _, e := range levels {
		if strings.EqualFold(s, e.name) {
			return e.level
		}
	}
	return LevelInfo
}

// ///////////////////////////////////////////////
// Handler
// ///////////////////////////////////////////////

const timeFormat = "2006-01-02T15:04:05.000Z"

// newline is CRLF on Windows so the log opens cleanly in Notepad.
var newline = func() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}()

// output is shared by a Handler and every handler derived from it, so
// lines from loggers built with With never interleave.
type output struct {
	mu sync.Mutex
	w  io.Writer
}

// Handler is a slog.Handler producing the single-line format above.
type Handler struct {
	out   *output
	level slog.Level
	// prefix holds attributes added with WithAttrs, already rendered.
	prefix string
	// group is the dotted key prefix from WithGroup.
	group string
}

// NewHandler returns a Handler writing records at or above level to w.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	return &Handler{out: &output{w: w}, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.UTC().Format(timeFormat))
		b.WriteByte(' ')
	}
	b.WriteByte('[')
	b.WriteString(levelName(r.Level))
	b.WriteString("] ")
	b.WriteString(r.Message)

	attrs := h.prefix
	r.Attrs(func(a slog.Attr) bool {
		attrs = appendAttr(attrs, h.group, a)
		return true
	})
	if attrs != "" {
		b.WriteString(" | ")
		b.WriteString(attrs)
	}
	b.WriteString(newline)

	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	_, err := io.WriteString(h.out.w, b.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	for _, a := range attrs {
		next.prefix = appendAttr(next.prefix, h.group, a)
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = joinKey(h.group, name)
	return &next
}

// appendAttr renders a as key=value onto s. Group values are flattened
// into dotted keys; empty attributes are dropped.
func appendAttr(s, group string, a slog.Attr) string {
	v := a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return s
	}
	if v.Kind() == slog.KindGroup {
		sub := joinKey(group, a.Key)
		if a.Key == "" {
			sub = group
		}
		for _, ga := range v.Group() {
			s = appendAttr(s, sub, ga)
		}
		return s
	}
	if s != "" {
		s += ", "
	}
	return s + joinKey(group, a.Key) + "=" + formatValue(v)
}

func joinKey(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

// formatValue quotes strings that would be ambiguous in the "k=v, k=v"
// layout.
func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString && (s == "" || strings.ContainsAny(s, " ,=|\"\n")) {
		return strconv.Quote(s)
	}
	return s
}

// ///////////////////////////////////////////////
// Logger Constructor
// ///////////////////////////////////////////////

// Options configures [NewLogger].
type Options struct {
	// Path is the log file, rotated by size.
	Path  string
	Level slog.Level
	// MaxSizeMB is the rotation threshold.
	MaxSizeMB int
	// Console, when non-nil, receives a copy of every line.
	Console io.Writer
}

// NewLogger returns a logger writing to a rotating file and, optionally,
// the console. Close the returned io.Closer on exit.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, fmt.Errorf("log path is empty")
	}
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: 3,
		MaxAge:     28,
	}
	var w io.Writer = file
	if opts.Console != nil {
		w = io.MultiWriter(file, opts.Console)
	}
	return slog.New(NewHandler(w, opts.Level)), file, nil
}

// Trace logs msg at [LevelTrace].
func Trace(logger *slog.Logger, msg string, args ...any) {
	logger.Log(context.Background(), LevelTrace, msg, args...)
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// ReadTail returns the last n lines of the file at path, oldest first,
// joined with "\n".
func ReadTail(path string, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("line count must be positive, got %d", n)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	tail := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(tail) == n {
			copy(tail, tail[1:])
			tail = tail[:n-1]
		}
		tail = append(tail, strings.TrimSuffix(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("reading log file: %w", err)
	}
	return strings.Join(tail, "\n"), nil
}
