package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// maxFileContentChars is the ceiling on a single write, counted in
// characters (code points), not bytes.
const maxFileContentChars = 5_000_000

// ContentTooLargeError is returned when a write exceeds the content ceiling.
// The target file is left untouched.
type ContentTooLargeError struct {
	Path string
	Size int
}

func (e *ContentTooLargeError) Error() string {
	return fmt.Sprintf("file content for %q exceeds %d character limit (%d characters)",
		e.Path, maxFileContentChars, e.Size)
}

// ReadLocalFile returns the text content of a local file.
func ReadLocalFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FileStore reads and writes file bytes for validated paths. Every
// successful write records a confirmation note and a fresh file snapshot in
// the ledger, keyed by the canonical path, so subsequent turns see the
// post-write content.
type FileStore struct {
	ledger *Ledger
}

// NewFileStore creates a store bound to the given ledger.
func NewFileStore(ledger *Ledger) *FileStore {
	return &FileStore{ledger: ledger}
}

// CreateFile creates or fully overwrites the file at path. Missing parent
// directories are created. No partial-write state is observable: the size
// and sandbox checks happen before any byte is written.
func (s *FileStore) CreateFile(path, content string) (string, error) {
	canonical, err := NormalizePath(path)
	if err != nil {
		return "", err
	}

	if size := utf8.RuneCountInString(content); size > maxFileContentChars {
		return "", &ContentTooLargeError{Path: path, Size: size}
	}

	dir := filepath.Dir(canonical)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(canonical, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", canonical, err)
	}
	slog.Debug("file written", "path", canonical, "bytes", len(content))

	s.ledger.AppendNote(fmt.Sprintf("File operation: Created/updated file at '%s'", canonical))
	s.ledger.RefreshFileContext(canonical, content)

	return canonical, nil
}
