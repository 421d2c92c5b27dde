package main

import (
	"fmt"
	"strings"

	"github.com/yargevad/filepathx"
)

// Command represents a slash command
type Command struct {
	Name        string
	Description string
	Handler     func(*Console, []string) error
}

// CommandRegistry holds all available commands
type CommandRegistry struct {
	Commands map[string]Command
	order    []string
}

func normalizeCommandName(name string) string {
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, ":") {
		return "/" + strings.TrimPrefix(name, ":")
	}
	return name
}

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() CommandRegistry {
	registry := CommandRegistry{
		Commands: make(map[string]Command),
	}

	registry.RegisterCommand("/add", "Add files to the conversation context (usage: /add <path-or-glob> ...)", handleAddCommand)
	registry.RegisterCommand("/context", "Show context usage details", handleContextCommand)
	registry.RegisterCommand("/help", "Show available commands", handleHelpCommand)
	registry.RegisterCommand("/quit", "Quit the application", handleQuitCommand)

	return registry
}

// RegisterCommand registers a new command
func (cr *CommandRegistry) RegisterCommand(name, description string, handler func(*Console, []string) error) {
	normalized := normalizeCommandName(name)
	if normalized == "" {
		return
	}
	if _, exists := cr.Commands[normalized]; !exists {
		cr.order = append(cr.order, normalized)
	}
	cr.Commands[normalized] = Command{
		Name:        normalized,
		Description: description,
		Handler:     handler,
	}
}

// FindCommand finds a command by name or unambiguous prefix.
func (cr CommandRegistry) FindCommand(prefix string) (exactMatch Command, matches []string, found bool) {
	normalized := normalizeCommandName(prefix)
	if normalized == "" {
		return Command{}, nil, false
	}

	if cmd, exists := cr.Commands[normalized]; exists {
		return cmd, []string{normalized}, true
	}

	var matchedCommands []string
	searchPrefix := strings.TrimPrefix(normalized, "/")

	for _, cmdName := range cr.order {
		if strings.HasPrefix(strings.TrimPrefix(cmdName, "/"), searchPrefix) {
			matchedCommands = append(matchedCommands, cmdName)
		}
	}

	if len(matchedCommands) == 1 {
		return cr.Commands[matchedCommands[0]], matchedCommands, true
	}

	return Command{}, matchedCommands, false
}

// GetAllCommands returns all registered commands in registration order
func (cr CommandRegistry) GetAllCommands() []Command {
	var commands []Command
	for _, name := range cr.order {
		if cmd, ok := cr.Commands[name]; ok {
			commands = append(commands, cmd)
		}
	}
	return commands
}

// isExitCommand reports whether the input asks to leave the session. Bare
// "exit" and "quit" work without a slash, case-insensitively.
func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", "/quit", "/exit":
		return true
	}
	return false
}

// Command handlers

// handleAddCommand expands each argument as a glob (supporting ** via
// filepathx) and adds every match to the session context. Arguments that
// match nothing are treated as literal paths so the error names the file.
func handleAddCommand(c *Console, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: /add <path-or-glob> ...")
	}

	for _, arg := range args {
		matches, err := filepathx.Glob(arg)
		if err != nil || len(matches) == 0 {
			matches = []string{arg}
		}
		for _, match := range matches {
			canonical, err := c.session.AddFileToContext(match)
			if err != nil {
				c.printError(fmt.Sprintf("could not add %q: %v", match, err))
				continue
			}
			c.printInfo(fmt.Sprintf("added %s to context", canonical))
		}
	}
	return nil
}

// handleContextCommand prints an estimated token count and the files
// currently snapshotted in the context.
func handleContextCommand(c *Console, args []string) error {
	ledger := c.session.Ledger()
	c.printInfo(fmt.Sprintf("context: %d messages, ~%d tokens", ledger.Len(), ledger.ContextTokens()))

	paths := ledger.FileContextPaths()
	if len(paths) == 0 {
		c.printInfo("no files in context")
		return nil
	}
	for _, p := range paths {
		c.printInfo("  " + p)
	}
	return nil
}

func handleHelpCommand(c *Console, args []string) error {
	for _, cmd := range c.registry.GetAllCommands() {
		c.printInfo(fmt.Sprintf("%-10s %s", cmd.Name, cmd.Description))
	}
	c.printInfo("exit/quit  Leave the session")
	return nil
}

func handleQuitCommand(c *Console, args []string) error {
	c.quitting = true
	return nil
}
