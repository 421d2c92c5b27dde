package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// FileToCreate is a proposed new file.
type FileToCreate struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileToEdit is a proposed snippet replacement in an existing file.
type FileToEdit struct {
	Path            string `json:"path"`
	OriginalSnippet string `json:"original_snippet"`
	NewSnippet      string `json:"new_snippet"`
}

// AssistantResponse is the structured payload the backend is constrained to.
// Absent action arrays are treated as empty. It lives for one turn: only its
// serialized form persists in the ledger.
type AssistantResponse struct {
	AssistantReply string         `json:"assistant_reply"`
	FilesToCreate  []FileToCreate `json:"files_to_create,omitempty"`
	FilesToEdit    []FileToEdit   `json:"files_to_edit,omitempty"`
}

// MalformedResponseError is returned when the backend output is not valid
// structured data. Recoverable: the session loop answers with a reply-only
// fallback instead of dying.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("failed to parse structured response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// ParseAssistantResponse decodes the backend's final payload into an
// AssistantResponse. The decode is schema-checked: unknown fields are
// rejected rather than silently ignored.
func ParseAssistantResponse(raw string) (*AssistantResponse, error) {
	var resp AssistantResponse
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return nil, &MalformedResponseError{Err: err}
	}
	return &resp, nil
}

// ValidateEdits re-validates every proposed edit's path through the sandbox
// and makes sure the target file's current content is in the ledger, so the
// backend has seen the same file the edit targets. Invalid entries are
// dropped with a warning diagnostic; the survivors and the reply are still
// delivered. The returned diagnostics are in drop order.
func ValidateEdits(resp *AssistantResponse, ledger *Ledger) []string {
	if len(resp.FilesToEdit) == 0 {
		return nil
	}

	var diagnostics []string
	valid := resp.FilesToEdit[:0]
	for _, edit := range resp.FilesToEdit {
		canonical, err := NormalizePath(edit.Path)
		if err != nil {
			diag := fmt.Sprintf("skipping edit with invalid path %q: %v", edit.Path, err)
			slog.Warn("edit dropped", "path", edit.Path, "reason", err)
			diagnostics = append(diagnostics, diag)
			continue
		}

		if !ledger.HasFileContext(canonical) {
			content, err := ReadLocalFile(canonical)
			if err != nil {
				diag := fmt.Sprintf("skipping edit for unreadable file %q: %v", edit.Path, err)
				slog.Warn("edit dropped", "path", canonical, "reason", err)
				diagnostics = append(diagnostics, diag)
				continue
			}
			ledger.AppendFileContext(canonical, content)
		}

		edit.Path = canonical
		valid = append(valid, edit)
	}
	resp.FilesToEdit = valid

	return diagnostics
}

// fallbackResponse wraps an error as a reply-only response so the session
// survives backend and parse failures.
func fallbackResponse(reason string) *AssistantResponse {
	return &AssistantResponse{AssistantReply: reason}
}
