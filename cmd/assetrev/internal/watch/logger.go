package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

// ChangeType represents the type of file change.
type ChangeType string

const (
	ChangeAdded    ChangeType = "+"
	ChangeModified ChangeType = "~"
	ChangeDeleted  ChangeType = "-"
)

// Logger handles watch mode output formatting.
type Logger struct {
	writer  io.Writer
	isTTY   bool
	verbose bool
	noColor bool
	jsonOut bool

	mu    sync.Mutex
	stats Stats
}

// Stats tracks statistics for the watch session.
type Stats struct {
	Builds    int       `json:"builds"`
	Errors    int       `json:"errors"`
	StartTime time.Time `json:"start_time"`
	LastBuild time.Time `json:"last_build,omitzero"`
}

// LoggerConfig configures the logger.
type LoggerConfig struct {
	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// BuildSummary is what the logger reports after a rebuild.
type BuildSummary struct {
	Added    int
	Updated  int
	Deleted  int
	Failed   int
	Duration time.Duration
}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggerConfig) *Logger {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	isTTY := false
	if f, ok := writer.(*os.File); ok {
		isTTY = term.IsTerminal(int(f.Fd()))
	}

	return &Logger{
		writer:  writer,
		isTTY:   isTTY,
		verbose: cfg.Verbose,
		noColor: cfg.NoColor,
		jsonOut: cfg.JSON,
		stats:   Stats{StartTime: time.Now()},
	}
}

// Ready logs the initial ready message.
func (l *Logger) Ready(root string, classes []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":   "ready",
			"path":    root,
			"classes": classes,
		})
		return
	}

	l.printf("assetrev: watching %s\n", root)
	if len(classes) > 0 {
		l.printf("assetrev: classes: ")
		for i, c := range classes {
			if i > 0 {
				l.printf(", ")
			}
			l.printf("%s", c)
		}
		l.println()
	}
	l.println("assetrev: ready")
	l.println()
}

// FileChanged logs a file change event. Text output only shows it in
// verbose mode.
func (l *Logger) FileChanged(path string, change ChangeType) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":  "file_changed",
			"path":   path,
			"change": string(change),
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}

	if l.verbose {
		l.printf("[%s] %s %s\n", l.timestamp(), l.colorize(string(change), change), path)
	}
}

// Building logs that a rebuild is starting.
func (l *Logger) Building(paths []string) {
	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "building",
			"paths": paths,
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	if len(paths) == 1 {
		l.printf("[%s] rebuilding after change to %s...\n", l.timestamp(), paths[0])
	} else {
		l.printf("[%s] rebuilding after %d changes...\n", l.timestamp(), len(paths))
	}
}

// Built logs a completed rebuild.
func (l *Logger) Built(s BuildSummary) {
	l.mu.Lock()
	l.stats.Builds++
	l.stats.LastBuild = time.Now()
	l.mu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":       "built",
			"added":       s.Added,
			"updated":     s.Updated,
			"deleted":     s.Deleted,
			"failed":      s.Failed,
			"duration_ms": s.Duration.Milliseconds(),
			"time":        time.Now().Format(time.RFC3339),
		})
		return
	}

	mark := l.colorize("✓", ChangeAdded)
	if s.Failed > 0 {
		mark = l.colorize("!", ChangeModified)
	}
	l.printf("[%s] %s manifest: %d added, %d updated, %d deleted",
		l.timestamp(), mark, s.Added, s.Updated, s.Deleted)
	if s.Failed > 0 {
		l.printf(", %d failed", s.Failed)
	}
	l.printf(" (%s)\n", s.Duration.Round(time.Millisecond))
}

// Error logs an error.
func (l *Logger) Error(err error) {
	l.mu.Lock()
	l.stats.Errors++
	l.mu.Unlock()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event": "error",
			"error": err.Error(),
			"time":  time.Now().Format(time.RFC3339),
		})
		return
	}

	xmark := l.colorize("✗", ChangeDeleted)
	l.printf("[%s] %s error: %v\n", l.timestamp(), xmark, err)
}

// Shutdown logs the shutdown message with statistics.
func (l *Logger) Shutdown() {
	stats := l.Stats()

	if l.jsonOut {
		l.writeJSON(map[string]any{
			"event":    "shutdown",
			"builds":   stats.Builds,
			"errors":   stats.Errors,
			"duration": time.Since(stats.StartTime).String(),
		})
		return
	}

	l.println()
	l.printf("assetrev: shutting down (%d builds, %d errors)\n", stats.Builds, stats.Errors)
}

// Stats returns the current watch statistics.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Logger) timestamp() string {
	return time.Now().Format("15:04:05")
}

// colorize applies ANSI color codes based on change type.
func (l *Logger) colorize(s string, change ChangeType) string {
	if l.noColor || !l.isTTY {
		return s
	}

	var color string
	switch change {
	case ChangeAdded:
		color = "\033[32m"
	case ChangeModified:
		color = "\033[33m"
	case ChangeDeleted:
		color = "\033[31m"
	default:
		return s
	}
	return color + s + "\033[0m"
}

func (l *Logger) writeJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l.println(`{"event":"internal_error","error":"json marshal failed"}`)
		return
	}
	l.println(string(data))
}

// printf and println ignore write errors; output is informational.
func (l *Logger) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(l.writer, format, args...)
}

func (l *Logger) println(args ...any) {
	_, _ = fmt.Fprintln(l.writer, args...)
}
