// Package filex contains filesystem helpers shared by the upload core and
// the retrieval path.
package filex

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates dir (and parents) if it does not exist yet.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

// Within reports whether target is root itself or lies below it. Both
// paths are cleaned first; no symlinks are resolved, callers that need that
// pass the output of filepath.EvalSymlinks.
//
// The check is done per path element, so "/srv/up" does not contain
// "/srv/upload2".
func Within(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// StrictlyWithin is Within without the root itself.
func StrictlyWithin(root, target string) bool {
	return filepath.Clean(root) != filepath.Clean(target) && Within(root, target)
}

// RemoveIfExists removes path and reports whether anything was removed.
// A missing file is not an error.
func RemoveIfExists(path string) (bool, error) {
	err := os.Remove(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("remove %s: %w", path, err)
}
