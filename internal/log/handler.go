package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Log formats accepted by --log-format.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// HandlerOptions configures the log handler.
type HandlerOptions struct {
	Level     slog.Leveler
	Format    string // FormatText or FormatJSON
	Output    io.Writer
	AddSource bool
}

// ParseFormat normalizes a --log-format value.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown log format %q (want %s or %s)", s, FormatText, FormatJSON)
}

// NewHandler creates the handler for opts. Output defaults to stderr so
// command output on stdout stays machine-readable.
func NewHandler(opts HandlerOptions) slog.Handler {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: replaceAttr,
	}

	if opts.Format == FormatJSON {
		return slog.NewJSONHandler(opts.Output, handlerOpts)
	}
	return slog.NewTextHandler(opts.Output, handlerOpts)
}

// pathKeys are attributes that carry filesystem paths. They are shown
// relative to the project base when one is set.
var pathKeys = map[string]bool{
	"path":     true,
	"root":     true,
	"manifest": true,
	"socket":   true,
	"log":      true,
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch {
	case a.Key == slog.LevelKey:
		if level, ok := a.Value.Any().(slog.Level); ok {
			a.Value = slog.StringValue(LevelName(level))
		}
	case pathKeys[a.Key] && a.Value.Kind() == slog.KindString:
		a.Value = slog.StringValue(relativeToBase(a.Value.String()))
	}
	return a
}

// relativeToBase shortens absolute paths under the project base.
func relativeToBase(p string) string {
	dir := base.Load()
	if dir == nil || *dir == "" || !filepath.IsAbs(p) {
		return p
	}
	rel, err := filepath.Rel(*dir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return filepath.ToSlash(rel)
}
