package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// NotifyFunc receives presentation events from the session. The frontend
// decides how to render them; the session never touches the terminal.
type NotifyFunc func(any)

// notification messages
type streamStartMsg struct{}
type streamChunkMsg string
type reasoningMsg string
type streamCompleteMsg struct{}
type diagnosticMsg string
type fileCreatedMsg string
type editAppliedMsg string

//go:embed prompts/system_prompt.tmpl
var systemPromptTemplate string

// recognizedExtensions drive the free-text file guessing heuristic. It is a
// best-effort convenience, not a security boundary.
var recognizedExtensions = []string{".css", ".html", ".js", ".ts", ".py", ".go", ".json", ".md", ".toml", ".yaml", ".yml", ".txt"}

// Session drives one interactive conversation: it owns the ledger, applies
// proposed actions through the file store, and talks to the backend.
// Strictly turn-sequential; nothing mutates the ledger while a call is
// outstanding.
type Session struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`
	FirstPrompt string    `json:"first_prompt"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	WorkingDir  string    `json:"working_dir"`

	ledger *Ledger
	store  *FileStore
	llm    llms.Model
	config *LLMConfig
	notify NotifyFunc

	accumulated strings.Builder
}

// NewSession builds a session with the rendered system prompt as the fixed
// first ledger entry.
func NewSession(llm llms.Model, cfg *Config, repoInfo RepoInfo, notify NotifyFunc) (*Session, error) {
	workingDir, _ := os.Getwd()

	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now(),
		WorkingDir: workingDir,
		llm:        llm,
		notify:     notify,
	}
	s.LastUpdated = s.CreatedAt

	if cfg != nil {
		s.config = &cfg.LLM
		s.Provider = cfg.LLM.Provider
		s.Model = cfg.LLM.Model
	} else {
		s.config = &LLMConfig{}
	}
	if s.config.MaxTokens <= 0 {
		s.config.MaxTokens = 8000
	}

	pt := prompts.PromptTemplate{
		Template:       systemPromptTemplate,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
		InputVariables: []string{},
		PartialVariables: map[string]any{
			"Env": buildEnvBlock(repoInfo),
		},
	}
	sys, err := pt.Format(map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("formatting system prompt: %w", err)
	}

	s.ledger = NewLedger(sys)
	s.store = NewFileStore(s.ledger)
	return s, nil
}

// Ledger exposes the session's message history to the frontend and the
// persistence layer.
func (s *Session) Ledger() *Ledger {
	return s.ledger
}

// Store exposes the file store bound to this session's ledger.
func (s *Session) Store() *FileStore {
	return s.store
}

func (s *Session) send(m any) {
	if s.notify != nil {
		s.notify(m)
	}
}

// AddFileToContext reads the file and injects a snapshot into the ledger.
// It returns the canonical path used as the context key.
func (s *Session) AddFileToContext(rawPath string) (string, error) {
	canonical, err := NormalizePath(rawPath)
	if err != nil {
		return "", err
	}
	content, err := ReadLocalFile(canonical)
	if err != nil {
		return "", err
	}
	s.ledger.AppendFileContext(canonical, content)
	return canonical, nil
}

// guessFilesInMessage scans free text for path-like tokens: words carrying a
// recognized extension or a path separator. Over- and under-matching are
// both expected; unresolvable guesses are skipped.
func guessFilesInMessage(message string) []string {
	var paths []string
	for _, word := range strings.Fields(message) {
		word = strings.Trim(word, `'",`)
		if word == "" {
			continue
		}
		candidate := false
		for _, ext := range recognizedExtensions {
			if strings.Contains(word, ext) {
				candidate = true
				break
			}
		}
		if !candidate && !strings.Contains(word, string(os.PathSeparator)) {
			continue
		}
		canonical, err := NormalizePath(word)
		if err != nil {
			continue
		}
		paths = append(paths, canonical)
	}
	return paths
}

// injectGuessedFiles adds every readable guessed file to the context.
// Unreadable guesses are silently skipped apart from a diagnostic.
func (s *Session) injectGuessedFiles(message string) {
	for _, path := range guessedUnique(guessFilesInMessage(message)) {
		if s.ledger.HasFileContext(path) {
			continue
		}
		content, err := ReadLocalFile(path)
		if err != nil {
			s.send(diagnosticMsg(fmt.Sprintf("cannot read guessed file %q: %v", path, err)))
			slog.Debug("guessed file skipped", "path", path, "error", err)
			continue
		}
		s.ledger.AppendFileContext(path, content)
		slog.Debug("guessed file injected", "path", path)
	}
}

func guessedUnique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var out []string
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Ask runs one backend turn: compact the ledger, inject guessed file
// context, stream the call, then parse and validate the structured payload.
// Backend and parse failures come back as reply-only responses; they never
// kill the session. The returned diagnostics describe dropped edits.
func (s *Session) Ask(ctx context.Context, prompt string) (*AssistantResponse, []string) {
	if s.FirstPrompt == "" {
		s.FirstPrompt = prompt
	}

	// Compaction runs once per outgoing turn, before anything else touches
	// the ledger.
	s.ledger.CompactAndRebuild(prompt)
	s.injectGuessedFiles(prompt)

	slog.Debug("outgoing context", "messages", s.ledger.Len(), "tokens", s.ledger.ContextTokens())

	s.accumulated.Reset()
	s.send(streamStartMsg{})

	streamingFunc := func(ctx context.Context, chunk []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.accumulated.Write(chunk)
		s.send(streamChunkMsg(chunk))
		return nil
	}

	resp, err := s.llm.GenerateContent(ctx, s.ledger.Messages(),
		llms.WithMaxTokens(s.config.MaxTokens),
		llms.WithJSONMode(),
		llms.WithStreamingFunc(streamingFunc),
	)
	if err != nil {
		// The unanswered user message is dropped by the next compaction.
		slog.Error("backend call failed", "error", err)
		s.send(streamCompleteMsg{})
		return fallbackResponse(fmt.Sprintf("Backend error: %v", err)), nil
	}
	if len(resp.Choices) == 0 {
		s.send(streamCompleteMsg{})
		return fallbackResponse("Backend error: empty response choices"), nil
	}
	choice := resp.Choices[0]

	// Reasoning fragments are shown before the structured payload is parsed.
	if choice.ReasoningContent != "" {
		s.send(reasoningMsg(choice.ReasoningContent))
	}
	s.send(streamCompleteMsg{})

	final := s.accumulated.String()
	if strings.TrimSpace(final) == "" {
		final = choice.Content
	}

	parsed, parseErr := ParseAssistantResponse(final)
	if parseErr != nil {
		slog.Error("malformed structured response", "error", parseErr)
		return fallbackResponse("Failed to parse structured response from assistant"), nil
	}

	diagnostics := ValidateEdits(parsed, s.ledger)

	// The raw serialized payload goes into history, not the reply alone.
	s.ledger.AppendAssistantReply(final)
	s.LastUpdated = time.Now()

	return parsed, diagnostics
}

// ApplyCreates applies every proposed create unconditionally. A failing
// create is reported and never aborts its siblings.
func (s *Session) ApplyCreates(creates []FileToCreate) {
	for _, f := range creates {
		canonical, err := s.store.CreateFile(f.Path, f.Content)
		if err != nil {
			s.send(diagnosticMsg(fmt.Sprintf("could not create %q: %v", f.Path, err)))
			slog.Warn("create failed", "path", f.Path, "error", err)
			continue
		}
		s.send(fileCreatedMsg(canonical))
	}
}

// ApplyEdits applies confirmed edits one by one. Each failure is contained
// to its own edit; snippet mismatches surface both sides for diagnosis.
func (s *Session) ApplyEdits(edits []FileToEdit) {
	for _, e := range edits {
		if err := s.store.ApplyEdit(e.Path, e.OriginalSnippet, e.NewSnippet); err != nil {
			s.send(editFailedMsg{Edit: e, Err: err})
			slog.Warn("edit failed", "path", e.Path, "error", err)
			continue
		}
		s.send(editAppliedMsg(e.Path))
	}
}

// editFailedMsg carries the failed edit and its error so the frontend can
// show the expected snippet next to the actual content.
type editFailedMsg struct {
	Edit FileToEdit
	Err  error
}
