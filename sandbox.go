package main

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathTraversalError is returned when a path still carries parent-directory
// segments after full resolution. It is fatal to the single operation that
// used the path, never to the session.
type PathTraversalError struct {
	Path string
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("invalid path %q: contains parent directory references", e.Path)
}

// NormalizePath returns the canonical absolute form of path. Relative
// segments are resolved and symlinks followed before the traversal check, so
// the check cannot be bypassed by encoding ".." indirectly. The canonical
// form is the key every other component uses for "is this file already in
// context".
//
// Note this only guarantees the absence of residual traversal segments; it
// deliberately does not enforce a root prefix.
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", &PathTraversalError{Path: path}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", path, err)
	}
	abs = filepath.Clean(abs)

	// Follow symlinks so a link cannot smuggle a ".." past the check. For
	// paths that do not exist yet, resolve the deepest existing ancestor
	// and re-attach the remainder.
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		parent := filepath.Dir(abs)
		realParent, evalErr := filepath.EvalSymlinks(parent)
		if evalErr != nil {
			resolved = abs
		} else {
			resolved = filepath.Join(realParent, filepath.Base(abs))
		}
	}

	for _, seg := range strings.Split(resolved, string(filepath.Separator)) {
		if seg == ".." {
			return "", &PathTraversalError{Path: path}
		}
	}

	return resolved, nil
}
