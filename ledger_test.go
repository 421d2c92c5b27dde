package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func userMsg(text string) llms.MessageContent {
	return llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(text)},
	}
}

func TestNewLedgerSeedsSystemPrompt(t *testing.T) {
	l := NewLedger("be helpful")
	require.Equal(t, 1, l.Len())
	assert.Equal(t, llms.ChatMessageTypeSystem, l.Messages()[0].Role)
	assert.Equal(t, "be helpful", messageText(l.Messages()[0]))
}

func TestAppendFileContextIdempotent(t *testing.T) {
	l := NewLedger("sys")

	added := l.AppendFileContext("/tmp/a.txt", "hello")
	assert.True(t, added)
	assert.Equal(t, 2, l.Len())

	added = l.AppendFileContext("/tmp/a.txt", "different content")
	assert.False(t, added, "second injection for the same path must be a no-op")
	assert.Equal(t, 2, l.Len())

	// The original snapshot wins; AppendFileContext never refreshes.
	assert.Contains(t, messageText(l.Messages()[1]), "hello")
	assert.True(t, l.HasFileContext("/tmp/a.txt"))
	assert.False(t, l.HasFileContext("/tmp/b.txt"))
}

func TestRefreshFileContextReplacesInPlace(t *testing.T) {
	l := NewLedger("sys")
	l.AppendFileContext("/tmp/a.txt", "v1")
	l.AppendFileContext("/tmp/b.txt", "other")

	l.RefreshFileContext("/tmp/a.txt", "v2")

	assert.Equal(t, 3, l.Len(), "refresh must not add a second entry")
	assert.Contains(t, messageText(l.Messages()[1]), "v2")
	assert.Equal(t, []string{"/tmp/a.txt", "/tmp/b.txt"}, l.FileContextPaths(),
		"refresh must preserve injection order")
}

func TestRefreshFileContextAppendsWhenMissing(t *testing.T) {
	l := NewLedger("sys")
	l.RefreshFileContext("/tmp/new.txt", "content")
	assert.True(t, l.HasFileContext("/tmp/new.txt"))
	assert.Equal(t, 2, l.Len())
}

func TestCompactAndRebuildOrdering(t *testing.T) {
	l := NewLedger("sys")
	l.AppendFileContext("/tmp/a.txt", "aaa")
	l.messages = append(l.messages, userMsg("first question"))
	l.AppendAssistantReply(`{"assistant_reply":"first answer"}`)
	l.AppendNote("File operation: Created/updated file at '/tmp/x.txt'")
	l.AppendFileContext("/tmp/b.txt", "bbb")
	l.messages = append(l.messages, userMsg("second question"))
	l.AppendAssistantReply(`{"assistant_reply":"second answer"}`)

	l.CompactAndRebuild("third question")

	msgs := l.Messages()
	require.Equal(t, 8, len(msgs))

	assert.Equal(t, "sys", messageText(msgs[0]))
	assert.True(t, isFileContextEntry(msgs[1]))
	assert.Contains(t, messageText(msgs[1]), "/tmp/a.txt")
	assert.True(t, isFileContextEntry(msgs[2]))
	assert.Contains(t, messageText(msgs[2]), "/tmp/b.txt")

	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[3].Role)
	assert.Equal(t, "first question", messageText(msgs[3]))
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[4].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[5].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, msgs[6].Role)

	assert.Equal(t, llms.ChatMessageTypeHuman, msgs[7].Role)
	assert.Equal(t, "third question", messageText(msgs[7]))

	// Operation notes are plain system messages and must not survive.
	for _, msg := range msgs {
		if msg.Role == llms.ChatMessageTypeSystem && !isFileContextEntry(msg) {
			assert.NotContains(t, messageText(msg), "File operation")
		}
	}
}

func TestCompactAndRebuildDropsUnpairedUserMessage(t *testing.T) {
	l := NewLedger("sys")
	l.messages = append(l.messages, userMsg("answered"))
	l.AppendAssistantReply(`{"assistant_reply":"yes"}`)
	l.messages = append(l.messages, userMsg("never answered"))

	l.CompactAndRebuild("next")

	for _, msg := range l.Messages()[:l.Len()-1] {
		assert.NotEqual(t, "never answered", messageText(msg))
	}
	last := l.Messages()[l.Len()-1]
	assert.Equal(t, "next", messageText(last))
}

func TestCompactAndRebuildStable(t *testing.T) {
	l := NewLedger("sys")
	l.AppendFileContext("/tmp/a.txt", "aaa")
	l.messages = append(l.messages, userMsg("q1"))
	l.AppendAssistantReply("a1")

	l.CompactAndRebuild("q2")
	l.AppendAssistantReply("a2")
	firstLen := l.Len()

	// A second compaction over an already-compacted history must not lose
	// or duplicate anything beyond the new trailing user message.
	l.CompactAndRebuild("q3")
	assert.Equal(t, firstLen+1, l.Len())
	assert.Equal(t, []string{"/tmp/a.txt"}, l.FileContextPaths())
}

func TestFileContextPathsExtraction(t *testing.T) {
	l := NewLedger("sys")
	assert.Empty(t, l.FileContextPaths())

	l.AppendFileContext("/srv/app/main.go", "package main")
	paths := l.FileContextPaths()
	require.Equal(t, 1, len(paths))
	assert.Equal(t, "/srv/app/main.go", paths[0])
}

func TestContextTokensGrowsWithContent(t *testing.T) {
	l := NewLedger("sys")
	before := l.ContextTokens()
	l.AppendFileContext("/tmp/big.txt", strings.Repeat("word ", 200))
	assert.Greater(t, l.ContextTokens(), before)
}
