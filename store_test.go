package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() (*FileStore, *Ledger) {
	ledger := NewLedger("sys")
	return NewFileStore(ledger), ledger
}

func TestCreateFileRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	store, ledger := newTestStore()

	path := filepath.Join(tmp, "hello.txt")
	canonical, err := store.CreateFile(path, "hello world")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(canonical))

	data, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	// The write must leave a confirmation note and a fresh snapshot.
	assert.True(t, ledger.HasFileContext(canonical))
	found := false
	for _, msg := range ledger.Messages() {
		if strings.Contains(messageText(msg), "File operation: Created/updated file at") {
			found = true
		}
	}
	assert.True(t, found, "expected a file operation note in the ledger")
}

func TestCreateFileMakesParentDirectories(t *testing.T) {
	tmp := t.TempDir()
	store, _ := newTestStore()

	path := filepath.Join(tmp, "a", "b", "c", "deep.txt")
	canonical, err := store.CreateFile(path, "nested")
	require.NoError(t, err)

	data, err := os.ReadFile(canonical)
	require.NoError(t, err)
	assert.Equal(t, "nested", string(data))
}

func TestCreateFileOverwriteRefreshesSnapshot(t *testing.T) {
	tmp := t.TempDir()
	store, ledger := newTestStore()

	path := filepath.Join(tmp, "f.txt")
	canonical, err := store.CreateFile(path, "v1")
	require.NoError(t, err)
	lenAfterFirst := ledger.Len()

	_, err = store.CreateFile(path, "v2")
	require.NoError(t, err)

	// One more note, zero more snapshots.
	assert.Equal(t, lenAfterFirst+1, ledger.Len())
	assert.Equal(t, []string{canonical}, ledger.FileContextPaths())

	snapshot := ""
	for _, msg := range ledger.Messages() {
		if isFileContextEntry(msg) {
			snapshot = messageText(msg)
		}
	}
	assert.Contains(t, snapshot, "v2")
	assert.NotContains(t, snapshot, "v1")
}

func TestCreateFileRejectsOversizedContent(t *testing.T) {
	tmp := t.TempDir()
	store, _ := newTestStore()

	path := filepath.Join(tmp, "big.txt")
	_, err := store.CreateFile(path, strings.Repeat("x", maxFileContentChars+1))

	var tooLarge *ContentTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, maxFileContentChars+1, tooLarge.Size)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "oversized write must not touch the filesystem")
}

func TestCreateFileOversizedLeavesExistingFileUntouched(t *testing.T) {
	tmp := t.TempDir()
	store, _ := newTestStore()

	path := filepath.Join(tmp, "keep.txt")
	require.NoError(t, os.WriteFile(path, []byte("precious"), 0o644))

	_, err := store.CreateFile(path, strings.Repeat("x", maxFileContentChars+1))
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "precious", string(data))
}

func TestCreateFileAtLimitSucceeds(t *testing.T) {
	tmp := t.TempDir()
	store, _ := newTestStore()

	path := filepath.Join(tmp, "exact.txt")
	_, err := store.CreateFile(path, strings.Repeat("x", maxFileContentChars))
	assert.NoError(t, err)
}

func TestCreateFileLimitCountsRunesNotBytes(t *testing.T) {
	tmp := t.TempDir()
	store, _ := newTestStore()

	// Two bytes per rune. Counted in bytes this would be double the limit;
	// counted in characters it fits exactly.
	path := filepath.Join(tmp, "multibyte.txt")
	_, err := store.CreateFile(path, strings.Repeat("é", maxFileContentChars))
	require.NoError(t, err)

	_, err = store.CreateFile(path, strings.Repeat("é", maxFileContentChars+1))
	var tooLarge *ContentTooLargeError
	require.True(t, errors.As(err, &tooLarge))
	assert.Equal(t, maxFileContentChars+1, tooLarge.Size, "Size reports characters, not bytes")
}

func TestReadLocalFileMissing(t *testing.T) {
	_, err := ReadLocalFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
