package main

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// fileContextPrefix marks a system message that carries a file snapshot.
// Compaction recognizes these by prefix, so the exact wording is load-bearing.
const fileContextPrefix = "Content of file '"

// Ledger owns the ordered message history sent to the backend each turn.
// The first message is always the fixed system instruction; it is never
// removed or reordered. No other component keeps a separate copy.
type Ledger struct {
	messages []llms.MessageContent
}

// NewLedger creates a ledger seeded with the fixed system instruction.
func NewLedger(systemPrompt string) *Ledger {
	return &Ledger{
		messages: []llms.MessageContent{{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		}},
	}
}

// Messages returns the message sequence for the outgoing backend call.
func (l *Ledger) Messages() []llms.MessageContent {
	return l.messages
}

// Len returns the number of messages in the ledger.
func (l *Ledger) Len() int {
	return len(l.messages)
}

// messageText flattens the text parts of a message into one string.
func messageText(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

func fileContextMarker(canonicalPath string) string {
	return fileContextPrefix + canonicalPath + "'"
}

func isFileContextEntry(msg llms.MessageContent) bool {
	return msg.Role == llms.ChatMessageTypeSystem &&
		strings.HasPrefix(messageText(msg), fileContextPrefix)
}

// HasFileContext reports whether a snapshot for the canonical path is
// already present.
func (l *Ledger) HasFileContext(canonicalPath string) bool {
	marker := fileContextMarker(canonicalPath)
	for _, msg := range l.messages {
		if msg.Role == llms.ChatMessageTypeSystem && strings.Contains(messageText(msg), marker) {
			return true
		}
	}
	return false
}

// AppendFileContext inserts a file snapshot keyed by the canonical path.
// Duplicate injection is an idempotent no-op; the return value reports
// whether an entry was added. An injected snapshot is not refreshed on
// later turns unless explicitly re-added via RefreshFileContext.
func (l *Ledger) AppendFileContext(canonicalPath, content string) bool {
	if l.HasFileContext(canonicalPath) {
		return false
	}
	l.appendSystem(fmt.Sprintf("%s:\n\n%s", fileContextMarker(canonicalPath), content))
	return true
}

// RefreshFileContext replaces the snapshot for the canonical path in place,
// or appends one if none exists. Writes go through here so later turns see
// post-write content without ever holding two entries for one path.
func (l *Ledger) RefreshFileContext(canonicalPath, content string) {
	marker := fileContextMarker(canonicalPath)
	body := fmt.Sprintf("%s:\n\n%s", marker, content)
	for i, msg := range l.messages {
		if msg.Role == llms.ChatMessageTypeSystem && strings.Contains(messageText(msg), marker) {
			l.messages[i] = llms.MessageContent{
				Role:  llms.ChatMessageTypeSystem,
				Parts: []llms.ContentPart{llms.TextPart(body)},
			}
			return
		}
	}
	l.appendSystem(body)
}

// AppendNote records a file-operation confirmation. Notes are plain system
// messages, not file-context entries, so compaction drops them.
func (l *Ledger) AppendNote(text string) {
	l.appendSystem(text)
}

func (l *Ledger) appendSystem(text string) {
	l.messages = append(l.messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeSystem,
		Parts: []llms.ContentPart{llms.TextPart(text)},
	})
}

// AppendAssistantReply appends the exact serialized structured output, not
// the human-readable reply alone, so history replay reconstructs prior
// proposed actions verbatim.
func (l *Ledger) AppendAssistantReply(serialized string) {
	l.messages = append(l.messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeAI,
		Parts: []llms.ContentPart{llms.TextPart(serialized)},
	})
}

// CompactAndRebuild rebuilds the ledger before an outgoing call as:
// [initial system message] + [file-context entries, original order] +
// [paired user/assistant messages, original order] + [new user message].
// An odd trailing user message with no paired reply is dropped, so the
// outgoing context never contains a malformed alternating-role sequence.
func (l *Ledger) CompactAndRebuild(newUserText string) {
	system := l.messages[0]

	var fileContexts []llms.MessageContent
	var turns []llms.MessageContent
	for _, msg := range l.messages[1:] {
		switch {
		case isFileContextEntry(msg):
			fileContexts = append(fileContexts, msg)
		case msg.Role == llms.ChatMessageTypeHuman || msg.Role == llms.ChatMessageTypeAI:
			turns = append(turns, msg)
		}
	}

	// Only complete user/assistant pairs survive the rebuild.
	if len(turns)%2 != 0 {
		turns = turns[:len(turns)-1]
	}

	rebuilt := make([]llms.MessageContent, 0, 2+len(fileContexts)+len(turns))
	rebuilt = append(rebuilt, system)
	rebuilt = append(rebuilt, fileContexts...)
	rebuilt = append(rebuilt, turns...)
	rebuilt = append(rebuilt, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(newUserText)},
	})
	l.messages = rebuilt
}

// FileContextPaths lists the canonical paths currently in context, in
// injection order.
func (l *Ledger) FileContextPaths() []string {
	var paths []string
	for _, msg := range l.messages {
		if !isFileContextEntry(msg) {
			continue
		}
		text := messageText(msg)
		rest := strings.TrimPrefix(text, fileContextPrefix)
		if end := strings.Index(rest, "'"); end >= 0 {
			paths = append(paths, rest[:end])
		}
	}
	return paths
}

// ContextTokens estimates the token footprint of the current ledger.
func (l *Ledger) ContextTokens() int {
	total := 0
	for _, msg := range l.messages {
		total += estimateTokens(messageText(msg))
	}
	return total
}
