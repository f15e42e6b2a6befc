package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/assetrev/internal/log"
	"github.com/albertocavalcante/assetrev/pkg/revision"
)

var errOutsideRoot = errors.New("path escapes the output root")

// Prune deletes the stale physical files under root. Files that are the
// current value of any key in current are never deleted, whatever stale
// says. Missing files are skipped. Other failures are returned as
// *revision.DeleteError values and never stop the loop.
func Prune(root string, stale []string, current *revision.Manifest) (deleted []string, errs []error) {
	logger := log.Component("prune")
	live := current.Values()

	for _, p := range stale {
		if _, ok := live[p]; ok {
			logger.Debug("keeping file still referenced by manifest", "path", p)
			continue
		}
		removed, err := removeUnder(root, p)
		if err != nil {
			logger.Warn("failed to delete stale file", "path", p, "error", err)
			errs = append(errs, err)
			continue
		}
		if !removed {
			logger.Debug("stale file already gone", "path", p)
			continue
		}
		logger.Info("deleted stale file", "path", p)
		deleted = append(deleted, p)
	}
	return deleted, errs
}

// removeUnder deletes the slash-separated path rel under root. It reports
// false without error when the file does not exist.
func removeUnder(root, rel string) (bool, error) {
	full, err := underRoot(root, rel)
	if err != nil {
		return false, &revision.DeleteError{Path: rel, Err: err}
	}
	if err := os.Remove(full); err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, &revision.DeleteError{Path: rel, Err: err}
	}
	return true, nil
}

// underRoot joins a manifest path onto root, rejecting absolute paths and
// paths that climb out of root.
func underRoot(root, rel string) (string, error) {
	if rel == "" || path.IsAbs(rel) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", errOutsideRoot, rel)
	}
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", errOutsideRoot, rel)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
