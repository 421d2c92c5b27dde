package main

import (
	"fmt"
	"log/slog"
	"strings"
)

// SnippetNotFoundError is returned when the original snippet does not occur
// in the target file. It carries both sides of the mismatch so the caller
// can surface them for diagnosis; there is no automatic retry or fuzzy
// matching.
type SnippetNotFoundError struct {
	Path    string
	Snippet string
	Content string
}

func (e *SnippetNotFoundError) Error() string {
	return fmt.Sprintf("original snippet not found in %s", e.Path)
}

// AmbiguousEditError is returned when the original snippet occurs more than
// once. Silent replacement of the wrong occurrence is worse than refusing
// the edit, so no mutation is performed.
type AmbiguousEditError struct {
	Path        string
	Occurrences int
}

func (e *AmbiguousEditError) Error() string {
	return fmt.Sprintf("multiple occurrences (%d) of snippet found in %s - ambiguous edit", e.Occurrences, e.Path)
}

// ApplyEdit replaces exactly one literal occurrence of originalSnippet with
// newSnippet in the file at path and writes the result through the store.
// On any failure the file is byte-identical to before the call.
func (s *FileStore) ApplyEdit(path, originalSnippet, newSnippet string) error {
	content, err := ReadLocalFile(path)
	if err != nil {
		return err
	}

	switch occurrences := strings.Count(content, originalSnippet); {
	case occurrences == 0:
		return &SnippetNotFoundError{Path: path, Snippet: originalSnippet, Content: content}
	case occurrences > 1:
		return &AmbiguousEditError{Path: path, Occurrences: occurrences}
	}

	updated := strings.Replace(content, originalSnippet, newSnippet, 1)
	if _, err := s.CreateFile(path, updated); err != nil {
		return err
	}

	slog.Debug("diff edit applied", "path", path)
	s.ledger.AppendNote(fmt.Sprintf("File operation: Applied diff edit to '%s'", path))
	return nil
}
