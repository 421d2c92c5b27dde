package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

func newTestSession(t *testing.T, responses []string) *Session {
	t.Helper()
	llm := fake.NewFakeLLM(responses)
	cfg := &Config{LLM: LLMConfig{Provider: "fake", Model: "fake-model"}}
	sess, err := NewSession(llm, cfg, RepoInfo{}, func(any) {})
	require.NoError(t, err)
	return sess
}

func TestNewSessionSeedsSystemPrompt(t *testing.T) {
	sess := newTestSession(t, nil)

	require.Equal(t, 1, sess.Ledger().Len())
	sys := messageText(sess.Ledger().Messages()[0])
	assert.Contains(t, sys, "Kodo")
	assert.Contains(t, sys, "assistant_reply")
	assert.NotEmpty(t, sess.ID)
}

func TestAskParsesStructuredResponse(t *testing.T) {
	payload := `{"assistant_reply": "hi there"}`
	sess := newTestSession(t, []string{payload})

	resp, diagnostics := sess.Ask(context.Background(), "hello")

	assert.Empty(t, diagnostics)
	assert.Equal(t, "hi there", resp.AssistantReply)
	assert.Equal(t, "hello", sess.FirstPrompt)

	// The serialized payload, not the bare reply, goes into history.
	msgs := sess.Ledger().Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, llms.ChatMessageTypeAI, last.Role)
	assert.Equal(t, payload, messageText(last))
}

func TestAskMalformedResponseFallsBack(t *testing.T) {
	sess := newTestSession(t, []string{"Sure, I'll edit that file for you!"})

	resp, _ := sess.Ask(context.Background(), "hello")

	assert.Contains(t, resp.AssistantReply, "Failed to parse")
	assert.Empty(t, resp.FilesToCreate)
	assert.Empty(t, resp.FilesToEdit)

	// No assistant reply is recorded; the dangling user message is dropped
	// by the next compaction.
	msgs := sess.Ledger().Messages()
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[len(msgs)-1].Role)
}

func TestAskValidatesEditPaths(t *testing.T) {
	tmp := t.TempDir()
	real := filepath.Join(tmp, "real.txt")
	require.NoError(t, os.WriteFile(real, []byte("alpha"), 0o644))
	ghost := filepath.Join(tmp, "ghost.txt")

	payload := `{"assistant_reply": "editing", "files_to_edit": [` +
		`{"path": "` + ghost + `", "original_snippet": "a", "new_snippet": "b"},` +
		`{"path": "` + real + `", "original_snippet": "alpha", "new_snippet": "beta"}]}`
	sess := newTestSession(t, []string{payload})

	resp, diagnostics := sess.Ask(context.Background(), "fix it")

	require.Len(t, resp.FilesToEdit, 1)
	require.Len(t, diagnostics, 1)
	assert.Contains(t, diagnostics[0], "ghost.txt")
}

func TestApplyCreatesWritesFiles(t *testing.T) {
	tmp := t.TempDir()
	sess := newTestSession(t, nil)

	var created []string
	sess.notify = func(m any) {
		if v, ok := m.(fileCreatedMsg); ok {
			created = append(created, string(v))
		}
	}

	sess.ApplyCreates([]FileToCreate{
		{Path: filepath.Join(tmp, "one.txt"), Content: "1"},
		{Path: filepath.Join(tmp, "two.txt"), Content: "2"},
	})

	assert.Len(t, created, 2)
	data, err := os.ReadFile(filepath.Join(tmp, "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestApplyEditsContainsFailures(t *testing.T) {
	tmp := t.TempDir()
	real := filepath.Join(tmp, "ok.txt")
	require.NoError(t, os.WriteFile(real, []byte("old"), 0o644))

	sess := newTestSession(t, nil)

	var failed, applied int
	sess.notify = func(m any) {
		switch m.(type) {
		case editFailedMsg:
			failed++
		case editAppliedMsg:
			applied++
		}
	}

	sess.ApplyEdits([]FileToEdit{
		{Path: real, OriginalSnippet: "missing", NewSnippet: "x"},
		{Path: real, OriginalSnippet: "old", NewSnippet: "new"},
	})

	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, applied)
	data, _ := os.ReadFile(real)
	assert.Equal(t, "new", string(data), "the failing edit must not block its sibling")
}

func TestGuessFilesInMessage(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)

	tests := []struct {
		name    string
		message string
		want    int
	}{
		{"plain prose", "please explain how channels work", 0},
		{"extension token", "look at main.go and tell me", 1},
		{"quoted path", `open 'config.toml' please`, 1},
		{"slash path", "check src/handler.py now", 1},
		{"duplicates collapse", "main.go and main.go again", 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := guessedUnique(guessFilesInMessage(tc.message))
			assert.Len(t, got, tc.want)
		})
	}
}

func TestInjectGuessedFilesSkipsUnreadable(t *testing.T) {
	tmp := t.TempDir()
	t.Chdir(tmp)
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "real.md"), []byte("# doc"), 0o644))

	sess := newTestSession(t, nil)
	sess.injectGuessedFiles("compare real.md with ghost.md")

	paths := sess.Ledger().FileContextPaths()
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Base(paths[0]), "real.md")
}

func TestAddFileToContext(t *testing.T) {
	tmp := t.TempDir()
	file := filepath.Join(tmp, "ctx.txt")
	require.NoError(t, os.WriteFile(file, []byte("snapshot me"), 0o644))

	sess := newTestSession(t, nil)
	canonical, err := sess.AddFileToContext(file)
	require.NoError(t, err)
	assert.True(t, sess.Ledger().HasFileContext(canonical))

	_, err = sess.AddFileToContext(filepath.Join(tmp, "missing.txt"))
	assert.Error(t, err)
}
