package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/truncate"

	"github.com/okanot/kodo/storage"
)

// sessionToData converts the runtime session into its persistable form.
func sessionToData(s *Session, repoInfo RepoInfo) *storage.SessionData {
	return &storage.SessionData{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt,
		LastUpdated: s.LastUpdated,
		FirstPrompt: s.FirstPrompt,
		Provider:    s.Provider,
		Model:       s.Model,
		WorkingDir:  s.WorkingDir,
		Branch:      repoInfo.Branch,
		Messages:    s.Ledger().Messages(),
	}
}

// sessionPersister autosaves the session after each completed turn. A nil
// persister is valid and does nothing, so persistence failures at startup
// degrade to an in-memory session.
type sessionPersister struct {
	store    *storage.SessionStore
	repoInfo RepoInfo
}

func newSessionPersister(config *Config, repoInfo RepoInfo) *sessionPersister {
	if config == nil || !config.Session.Enabled {
		return nil
	}

	db, err := storage.InitDB(config.Storage.DatabasePath)
	if err != nil {
		slog.Warn("session persistence disabled", "error", err)
		return nil
	}

	store := storage.NewSessionStore(db, &storage.SessionConfig{
		Enabled:     config.Session.Enabled,
		MaxSessions: config.Session.MaxSessions,
		MaxAgeDays:  config.Session.MaxAgeDays,
	})

	if err := store.CleanupOldSessions(); err != nil {
		slog.Warn("session cleanup failed", "error", err)
	}

	return &sessionPersister{store: store, repoInfo: repoInfo}
}

func (p *sessionPersister) save(s *Session) {
	if p == nil || s == nil || s.FirstPrompt == "" {
		return
	}
	if err := p.store.SaveSession(sessionToData(s, p.repoInfo)); err != nil {
		slog.Warn("session autosave failed", "error", err)
	}
}

// printHistory renders saved sessions as a table for the history command.
func printHistory(config *Config, allDirs bool, limit int) error {
	db, err := storage.InitDB(config.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening session database: %w", err)
	}
	defer db.Close()

	store := storage.NewSessionStore(db, nil)

	workingDir := ""
	if !allDirs {
		workingDir, _ = os.Getwd()
	}

	sessions, err := store.ListSessions(workingDir, limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no saved sessions")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("WHEN", "MODEL", "MSGS", "BRANCH", "FIRST PROMPT")

	for _, s := range sessions {
		t.Row(
			s.LastUpdated.Format("2006-01-02 15:04"),
			s.Model,
			fmt.Sprintf("%d", s.MessageCount),
			s.Branch,
			truncate.StringWithTail(s.FirstPrompt, 48, "…"),
		)
	}
	fmt.Println(t.Render())
	return nil
}
