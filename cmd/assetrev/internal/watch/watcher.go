package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/build"
	"github.com/albertocavalcante/assetrev/cmd/assetrev/internal/kinds"
)

// DefaultDebounce is used when Config.Debounce is not positive.
const DefaultDebounce = 500 * time.Millisecond

// ErrWatchLimitReached is returned when the OS watch limit is exceeded.
var ErrWatchLimitReached = errors.New("filesystem watch limit reached")

// Config configures the watcher.
type Config struct {
	// Root is the output root producers write finished assets into.
	Root    string
	Builder *build.Builder

	// Kinds restricts rebuild triggers to files of these asset kinds
	// (nil = anything an asset class matches).
	Kinds    []string
	Debounce time.Duration

	// BuildOnStart runs one build before watching.
	BuildOnStart bool

	// OnBuild, if set, is called after every rebuild with the changed
	// paths that triggered it (nil for the initial build).
	OnBuild func(paths []string, res *build.Result, err error)

	Writer  io.Writer
	Verbose bool
	NoColor bool
	JSON    bool
}

// Watcher rebuilds the manifest when matching files appear under Root.
type Watcher struct {
	config     Config
	fsWatcher  *fsnotify.Watcher
	debouncer  *Debouncer
	logger     *Logger
	extensions map[string]bool

	ctx context.Context

	// buildMu prevents overlapping rebuilds.
	buildMu sync.Mutex
}

// New creates a new watcher with the given configuration.
func New(cfg Config) (*Watcher, error) {
	if cfg.Builder == nil {
		return nil, errors.New("watch: builder is required")
	}
	if cfg.Root == "" {
		cfg.Root = cfg.Builder.Options().Root
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	var extensions map[string]bool
	if len(cfg.Kinds) > 0 {
		extensions = kinds.ExtensionSet(cfg.Kinds)
	}

	w := &Watcher{
		config:     cfg,
		fsWatcher:  fsWatcher,
		extensions: extensions,
		logger: NewLogger(LoggerConfig{
			Writer:  cfg.Writer,
			Verbose: cfg.Verbose,
			NoColor: cfg.NoColor,
			JSON:    cfg.JSON,
		}),
		ctx: context.Background(),
	}
	return w, nil
}

// Run starts the watch loop. It blocks until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.ctx = ctx

	if err := os.MkdirAll(w.config.Root, 0o755); err != nil {
		return fmt.Errorf("failed to create output root: %w", err)
	}

	w.debouncer = NewDebouncer(w.config.Debounce, w.rebuild)
	defer w.debouncer.Stop()

	if w.config.BuildOnStart {
		w.rebuild(nil)
	}

	if err := w.addRecursive(w.config.Root); err != nil {
		return fmt.Errorf("failed to watch output root: %w", err)
	}

	classes := make([]string, 0, len(w.config.Builder.Options().Classes))
	for _, c := range w.config.Builder.Options().Classes {
		classes = append(classes, c.Name)
	}
	w.logger.Ready(w.config.Root, classes)

	for {
		select {
		case <-ctx.Done():
			w.logger.Shutdown()
			return nil

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error(err)
		}
	}
}

// Stats returns the session statistics.
func (w *Watcher) Stats() Stats {
	return w.logger.Stats()
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if w.config.Verbose {
					w.logger.Error(fmt.Errorf("permission denied: %s", path))
				}
				return nil
			}
			w.logger.Error(fmt.Errorf("walk error at %s: %w", path, err))
			return nil
		}

		if !d.IsDir() {
			return nil
		}
		if path != w.config.Root && kinds.IsIgnoredDir(d.Name()) {
			return filepath.SkipDir
		}

		if err := w.fsWatcher.Add(path); err != nil {
			if isWatchLimitError(err) {
				return fmt.Errorf("%w at %s: %w\n"+
					"Increase limit with: sudo sysctl fs.inotify.max_user_watches=524288",
					ErrWatchLimitReached, path, err)
			}
			if w.config.Verbose {
				w.logger.Error(fmt.Errorf("failed to watch %s: %w", path, err))
			}
		}
		return nil
	})
}

// isWatchLimitError checks if an error is due to inotify watch limits.
func isWatchLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left on device") ||
		strings.Contains(errStr, "too many open files")
}

// handleEvent processes a single filesystem event. Removals never trigger
// a build: the manifest keeps entries for sources that disappear.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if kinds.IsIgnoredDir(filepath.Base(path)) {
				return
			}
			if err := w.addRecursive(path); err != nil {
				w.logger.Error(fmt.Errorf("failed to watch new directory %s: %w", path, err))
			}
			// Files written before the watch was added produce no events.
			w.queueExisting(path)
			return
		}
	}

	var change ChangeType
	switch {
	case event.Has(fsnotify.Create):
		change = ChangeAdded
	case event.Has(fsnotify.Write):
		change = ChangeModified
	default:
		return
	}

	logical, ok := w.logical(path)
	if !ok {
		return
	}
	w.logger.FileChanged(logical, change)
	w.debouncer.Add(logical)
}

// queueExisting queues matching files already present in a new directory.
func (w *Watcher) queueExisting(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && kinds.IsIgnoredDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if logical, ok := w.logical(path); ok {
			w.logger.FileChanged(logical, ChangeAdded)
			w.debouncer.Add(logical)
		}
		return nil
	})
}

// logical maps an absolute path to its logical path, reporting whether
// it should trigger a rebuild.
func (w *Watcher) logical(path string) (string, bool) {
	if w.extensions != nil && !w.extensions[strings.ToLower(filepath.Ext(path))] {
		return "", false
	}
	rel, err := filepath.Rel(w.config.Root, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	if !w.config.Builder.Matches(rel) {
		return "", false
	}
	return rel, true
}

// rebuild is called when the debouncer flushes.
func (w *Watcher) rebuild(paths []string) {
	w.buildMu.Lock()
	defer w.buildMu.Unlock()

	if w.ctx.Err() != nil {
		return
	}
	if len(paths) > 0 {
		w.logger.Building(paths)
	}

	res, err := w.config.Builder.Run(w.ctx)
	if errors.Is(err, context.Canceled) {
		return
	}
	if w.config.OnBuild != nil {
		w.config.OnBuild(paths, res, err)
	}
	if err != nil {
		w.logger.Error(fmt.Errorf("build failed: %w", err))
		return
	}

	for _, f := range res.Failed {
		w.logger.Error(f)
	}
	w.logger.Built(BuildSummary{
		Added:    len(res.Changes.Added),
		Updated:  len(res.Changes.Updated),
		Deleted:  len(res.Deleted),
		Failed:   len(res.Failed),
		Duration: res.Duration,
	})
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}
