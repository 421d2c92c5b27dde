package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	isatty "github.com/mattn/go-isatty"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
	"github.com/tmc/langchaingo/llms/openai"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

type runCmd struct{}

type versionCmd struct{}

type historyCmd struct {
	All   bool `help:"List sessions from every directory, not just the current one"`
	Limit int  `default:"20" help:"Maximum number of sessions to list"`
}

type loginCmd struct {
	Provider string `arg:"" optional:"" default:"openai" help:"Provider to store credentials for"`
	Model    string `help:"Model to record in the user config"`
}

type logoutCmd struct {
	Provider string `arg:"" optional:"" default:"openai" help:"Provider to remove credentials for"`
}

var cli struct {
	Version versionCmd `cmd:"version" help:"Print version information"`
	History historyCmd `cmd:"history" help:"List saved sessions"`
	Login   loginCmd   `cmd:"login" help:"Store an API key in the OS keyring"`
	Logout  logoutCmd  `cmd:"logout" help:"Remove the stored API key from the OS keyring"`
	Prompt  string     `short:"p" help:"Run one prompt non-interactively and exit"`
	Debug   bool       `help:"Enable debug logging"`
	Run     runCmd     `cmd:"" default:"1" help:"Run the interactive session"`
}

// Update the version as part of the version release process
var version = "0.1.0"

// logLevel is adjustable after startup so the config file can raise or
// lower verbosity once it is loaded.
var logLevel = new(slog.LevelVar)

func initLogger() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("failed to get user home directory: %w", err))
	}

	logDir := filepath.Join(homeDir, ".local", "share", "kodo")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		panic(fmt.Errorf("failed to create log directory %s: %w", logDir, err))
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "kodo.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	logLevel.Set(slog.LevelInfo)
	if cli.Debug {
		logLevel.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, opts)))
}

// applyLogLevel honors the configured log level unless --debug already
// forced debug verbosity.
func applyLogLevel(config *Config) {
	if cli.Debug || config == nil {
		return
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(config.Logging.Level)); err == nil {
		logLevel.Set(level)
	}
}

func (v versionCmd) Run() error {
	fmt.Printf("kodo v%s\n", kodoVersion())
	return nil
}

func (h historyCmd) Run() error {
	config, err := LoadConfig()
	if err != nil {
		return err
	}
	return printHistory(config, h.All, h.Limit)
}

func (l loginCmd) Run() error {
	fmt.Print("API key: ")
	reader := bufio.NewReader(os.Stdin)
	key, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading API key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty API key")
	}

	model := l.Model
	if model == "" {
		model = defaultConfig().LLM.Model
	}

	if err := UpdateUserLLMAuth(l.Provider, key, model); err != nil {
		return err
	}
	fmt.Printf("credentials stored for provider %s\n", l.Provider)
	return nil
}

func (l logoutCmd) Run() error {
	if err := DeleteAPIKeyFromKeyring(l.Provider); err != nil {
		return err
	}
	fmt.Printf("credentials removed for provider %s\n", l.Provider)
	return nil
}

func (r *runCmd) Run() error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Println("This program requires a terminal to run.")
		fmt.Println("Use -p for non-interactive prompts.")
		return nil
	}

	config, err := LoadConfig()
	if err != nil {
		slog.Warn("using default config", "error", err)
		defaults := defaultConfig()
		config = &defaults
	}
	applyLogLevel(config)

	llm, err := getLLMClient(config)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w (run 'kodo login' to store an API key)", err)
	}

	repoInfo := GetRepoInfo()

	console := NewConsole(config)
	sess, err := NewSession(llm, config, repoInfo, console.Notify)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	console.Bind(sess)

	persister := newSessionPersister(config, repoInfo)
	console.afterTurn = func() { persister.save(sess) }

	console.Banner(repoInfo)
	return console.Run(context.Background())
}

// runOneShot sends a single prompt through a fresh session and exits.
func runOneShot(prompt string) error {
	config, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyLogLevel(config)

	llm, err := getLLMClient(config)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w (run 'kodo login' to store an API key)", err)
	}

	repoInfo := GetRepoInfo()
	console := NewConsole(config)
	sess, err := NewSession(llm, config, repoInfo, console.Notify)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	console.Bind(sess)

	resp, diagnostics := sess.Ask(context.Background(), prompt)
	for _, d := range diagnostics {
		console.printError(d)
	}
	console.renderReply(resp.AssistantReply)
	sess.ApplyCreates(resp.FilesToCreate)

	// Edits need a confirmation and there is nobody to ask; list them and
	// leave the files alone.
	if len(resp.FilesToEdit) > 0 {
		console.renderProposedEdits(resp.FilesToEdit)
		console.printInfo("proposed edits skipped in non-interactive mode")
	}

	persister := newSessionPersister(config, repoInfo)
	persister.save(sess)
	return nil
}

func main() {
	ctx := kong.Parse(&cli)

	initLogger()

	if cli.Prompt != "" {
		if err := runOneShot(cli.Prompt); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// getLLMClient creates an LLM client based on the configuration. The
// default backend is the deepseek API, reached through the openai-compatible
// client with a custom base URL.
func getLLMClient(config *Config) (llms.Model, error) {
	switch config.LLM.Provider {
	case "fake":
		return fake.NewFakeLLM([]string{}), nil
	case "openai":
		if config.LLM.APIKey == "" {
			return nil, fmt.Errorf("missing API key: set DEEPSEEK_API_KEY or run 'kodo login'")
		}

		opts := []openai.Option{
			openai.WithModel(config.LLM.Model),
			openai.WithToken(config.LLM.APIKey),
		}
		if config.LLM.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.LLM.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.LLM.Provider)
	}
}
