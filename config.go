package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	koanftoml "github.com/knadh/koanf/parsers/toml/v2"
	koanfenv "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
)

// Config represents the application configuration structure
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Logging LoggingConfig `koanf:"logging"`
	UI      UIConfig      `koanf:"ui"`
	LLM     LLMConfig     `koanf:"llm"`
	Session SessionConfig `koanf:"session"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	DatabasePath string `koanf:"database_path"` // Path to SQLite database
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// LLMConfig holds LLM configuration
type LLMConfig struct {
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	APIKey    string `koanf:"api_key"`
	BaseURL   string `koanf:"base_url"`
	MaxTokens int    `koanf:"max_tokens"`
}

// UIConfig holds UI-specific configuration
type UIConfig struct {
	MarkdownEnabled bool `koanf:"markdown_enabled"`
}

// SessionConfig holds session persistence configuration
type SessionConfig struct {
	Enabled     bool `koanf:"enabled"`
	MaxSessions int  `koanf:"max_sessions"`
	MaxAgeDays  int  `koanf:"max_age_days"`
}

// defaultConfig returns the configuration populated with sensible defaults.
func defaultConfig() Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".local", "share", "kodo")

	return Config{
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dataDir, "kodo.sqlite"),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		UI: UIConfig{
			MarkdownEnabled: true,
		},
		LLM: LLMConfig{
			Provider:  "openai",
			Model:     "deepseek-reasoner",
			BaseURL:   "https://api.deepseek.com",
			MaxTokens: 8000,
		},
		Session: SessionConfig{
			Enabled:     true,
			MaxSessions: 50,
			MaxAgeDays:  30,
		},
	}
}

// LoadConfig loads configuration from multiple sources: user config, project
// config, environment variables, then keyring for the API key. Later sources
// override earlier ones.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Failed to get user home directory: %v", err)
	} else {
		userConfigPath := filepath.Join(homeDir, ".config", "kodo", "conf.toml")
		if _, err := os.Stat(userConfigPath); err == nil {
			if err := k.Load(file.Provider(userConfigPath), koanftoml.Parser()); err != nil {
				log.Printf("Failed to load user config from %s: %v", userConfigPath, err)
			}
		}
	}

	projectConfigPath := filepath.Join(".agents", "kodo.toml")
	if _, err := os.Stat(projectConfigPath); err == nil {
		if err := k.Load(file.Provider(projectConfigPath), koanftoml.Parser()); err != nil {
			log.Printf("Failed to load project config from %s: %v", projectConfigPath, err)
		}
	}

	// Environment variables with prefix "KODO_" override config values,
	// e.g. KODO_LLM_MODEL=deepseek-chat overrides llm.model.
	if err := k.Load(koanfenv.Provider(".", koanfenv.Opt{
		Prefix: "KODO_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, "KODO_")), "_", ".")
			return key, value
		},
	}), nil); err != nil {
		log.Printf("Failed to load environment variables: %v", err)
	}

	// DEEPSEEK_API_KEY is the conventional variable for the default backend.
	if k.String("llm.api_key") == "" {
		if deepseekKey := os.Getenv("DEEPSEEK_API_KEY"); deepseekKey != "" {
			if err := k.Set("llm.api_key", deepseekKey); err != nil {
				log.Printf("Failed to set API key from environment: %v", err)
			}
		}
	}
	if k.String("llm.provider") == "openai" && k.String("llm.api_key") == "" {
		if openaiKey := os.Getenv("OPENAI_API_KEY"); openaiKey != "" {
			if err := k.Set("llm.api_key", openaiKey); err != nil {
				log.Printf("Failed to set OpenAI API key from environment: %v", err)
			}
		}
	}

	config := defaultConfig()
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Keyring is the last resort so plaintext config and env still win.
	if config.LLM.APIKey == "" {
		if key, err := GetAPIKeyFromKeyring(config.LLM.Provider); err == nil && key != "" {
			config.LLM.APIKey = key
		}
	}

	if !k.Exists("session.enabled") {
		config.Session.Enabled = true
	}

	return &config, nil
}

// UpdateUserLLMAuth persists login credentials: the API key goes to the OS
// keyring, the provider and model to ~/.config/kodo/conf.toml. When the
// keyring is unavailable the key falls back to the config file with 0600
// permissions.
func UpdateUserLLMAuth(provider, apiKey, model string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home dir: %w", err)
	}
	cfgDir := filepath.Join(homeDir, ".config", "kodo")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	cfgPath := filepath.Join(cfgDir, "conf.toml")

	keyInFile := false
	if err := SaveAPIKeyToKeyring(provider, apiKey); err != nil {
		log.Printf("Warning: failed to save API key to keyring, falling back to file storage: %v", err)
		keyInFile = true
	}

	k := koanf.New(".")
	if _, err := os.Stat(cfgPath); err == nil {
		if err := k.Load(file.Provider(cfgPath), koanftoml.Parser()); err != nil {
			return fmt.Errorf("failed to load existing user config: %w", err)
		}
	}

	if err := k.Set("llm.provider", provider); err != nil {
		return fmt.Errorf("failed to update provider: %w", err)
	}
	if err := k.Set("llm.model", model); err != nil {
		return fmt.Errorf("failed to update model: %w", err)
	}
	if keyInFile {
		if err := k.Set("llm.api_key", apiKey); err != nil {
			return fmt.Errorf("failed to update api key: %w", err)
		}
	} else if k.Exists("llm.api_key") {
		k.Delete("llm.api_key")
	}

	data, err := k.Marshal(koanftoml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(cfgPath, data, 0o600)
}
