package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/reflow/wordwrap"
)

const consoleWidth = 100

var (
	bannerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	reasoningStyle = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("13"))
	pathStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	tableHeader    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
)

// Console is the interactive line-oriented frontend. It reads prompts,
// renders session notifications, and gates edits behind a confirmation
// prompt. Creates apply without confirmation.
type Console struct {
	session  *Session
	registry CommandRegistry
	config   *Config
	reader   *bufio.Reader
	renderer *glamour.TermRenderer
	quitting bool

	// afterTurn runs once a turn fully settles, actions included. Used for
	// session autosave.
	afterTurn func()
}

// NewConsole builds the frontend. The markdown renderer is best-effort;
// when it cannot be constructed replies are printed as plain text.
func NewConsole(config *Config) *Console {
	c := &Console{
		registry: NewCommandRegistry(),
		config:   config,
		reader:   bufio.NewReader(os.Stdin),
	}

	if config == nil || config.UI.MarkdownEnabled {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(consoleWidth-4),
		)
		if err != nil {
			slog.Warn("markdown renderer unavailable", "error", err)
		} else {
			c.renderer = renderer
		}
	}

	return c
}

// Bind attaches the session the console drives. Done separately from
// construction because the session needs the console's Notify.
func (c *Console) Bind(session *Session) {
	c.session = session
}

// Notify renders session events as they arrive.
func (c *Console) Notify(m any) {
	switch v := m.(type) {
	case streamStartMsg:
		fmt.Print(infoStyle.Render("thinking..."))
	case streamChunkMsg:
		// The raw payload is structured data, not prose. The reply is
		// rendered after parsing; chunks only feed the debug log.
		slog.Debug("stream chunk", "bytes", len(v))
	case streamCompleteMsg:
		fmt.Print("\r\033[2K")
	case reasoningMsg:
		fmt.Println(reasoningStyle.Render(wordwrap.String(string(v), consoleWidth)))
	case diagnosticMsg:
		c.printError(string(v))
	case fileCreatedMsg:
		c.printInfo("wrote " + pathStyle.Render(string(v)))
	case editAppliedMsg:
		c.printInfo("edited " + pathStyle.Render(string(v)))
	case editFailedMsg:
		c.renderFailedEdit(v)
	}
}

func (c *Console) printInfo(s string) {
	fmt.Println(infoStyle.Render(s))
}

func (c *Console) printError(s string) {
	fmt.Println(errorStyle.Render(s))
}

// Banner prints the startup header with version and repository info.
func (c *Console) Banner(repoInfo RepoInfo) {
	fmt.Println(bannerStyle.Render(fmt.Sprintf("kodo v%s", kodoVersion())))
	if repoInfo.IsRepo {
		c.printInfo(fmt.Sprintf("repo %s (branch %s)", repoInfo.ProjectRoot, repoInfo.Branch))
	}
	c.printInfo("type /help for commands, exit or quit to leave")
	fmt.Println()
}

// Run drives the interactive loop until exit, quit, or EOF.
func (c *Console) Run(ctx context.Context) error {
	for !c.quitting {
		fmt.Print(promptStyle.Render("> "))
		line, err := c.reader.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if isExitCommand(line) {
			break
		}

		if strings.HasPrefix(line, "/") || strings.HasPrefix(line, ":") {
			c.dispatchCommand(line)
			continue
		}

		c.RunTurn(ctx, line)
	}
	return nil
}

func (c *Console) dispatchCommand(line string) {
	fields := strings.Fields(line)
	cmd, matches, found := c.registry.FindCommand(fields[0])
	if !found {
		if len(matches) > 1 {
			c.printError(fmt.Sprintf("ambiguous command %q: %s", fields[0], strings.Join(matches, ", ")))
		} else {
			c.printError(fmt.Sprintf("unknown command %q, try /help", fields[0]))
		}
		return
	}
	if err := cmd.Handler(c, fields[1:]); err != nil {
		c.printError(err.Error())
	}
}

// RunTurn sends one prompt through the session and applies the proposed
// actions: creates unconditionally, edits after confirmation.
func (c *Console) RunTurn(ctx context.Context, prompt string) {
	resp, diagnostics := c.session.Ask(ctx, prompt)
	for _, d := range diagnostics {
		c.printError(d)
	}

	c.renderReply(resp.AssistantReply)

	if len(resp.FilesToCreate) > 0 {
		c.session.ApplyCreates(resp.FilesToCreate)
	}

	if len(resp.FilesToEdit) > 0 {
		c.renderProposedEdits(resp.FilesToEdit)
		if c.confirm("apply these edits? [y/N] ") {
			c.session.ApplyEdits(resp.FilesToEdit)
		} else {
			c.printInfo("edits discarded")
		}
	}

	if c.afterTurn != nil {
		c.afterTurn()
	}
}

func (c *Console) renderReply(reply string) {
	if reply == "" {
		return
	}
	if c.renderer != nil {
		if out, err := c.renderer.Render(reply); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(wordwrap.String(reply, consoleWidth))
}

// renderProposedEdits shows each pending edit in a table so the user can
// judge before confirming.
func (c *Console) renderProposedEdits(edits []FileToEdit) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeader
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("FILE", "ORIGINAL", "REPLACEMENT")

	for _, e := range edits {
		t.Row(e.Path, truncateSnippet(e.OriginalSnippet), truncateSnippet(e.NewSnippet))
	}
	fmt.Println(t.Render())
}

func truncateSnippet(s string) string {
	const max = 60
	s = strings.ReplaceAll(s, "\n", "⏎")
	if len(s) > max {
		return s[:max-1] + "…"
	}
	return s
}

// renderFailedEdit shows both sides of a snippet mismatch so the user can
// see why the edit was refused.
func (c *Console) renderFailedEdit(m editFailedMsg) {
	c.printError(fmt.Sprintf("edit to %s failed: %v", m.Edit.Path, m.Err))

	var notFound *SnippetNotFoundError
	if errors.As(m.Err, &notFound) {
		c.printInfo("expected snippet:")
		fmt.Println(wordwrap.String(notFound.Snippet, consoleWidth))
		c.printInfo("actual content:")
		fmt.Println(wordwrap.String(notFound.Content, consoleWidth))
	}
}

func (c *Console) confirm(prompt string) bool {
	fmt.Print(promptStyle.Render(prompt))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
