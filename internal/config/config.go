package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for briefbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Server   ServerConfig   `json:"server"`
	Slack    SlackConfig    `json:"slack"`
	Gemini   GeminiConfig   `json:"gemini"`
	Store    StoreConfig    `json:"store"`
	Dispatch DispatchConfig `json:"dispatch"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"` // debug | info | warn | error
}

type ServerConfig struct {
	Host             string `json:"host,omitempty"`
	Port             int    `json:"port"`
	EventsPath       string `json:"eventsPath"`
	InteractionsPath string `json:"interactionsPath"`
}

type SlackConfig struct {
	BotToken        string `json:"botToken"`
	SigningSecret   string `json:"signingSecret"`
	TriggerReaction string `json:"triggerReaction"` // reaction that starts the summary workflow
	FailureReaction string `json:"failureReaction"` // reaction added when a workflow fails
}

type GeminiConfig struct {
	APIKey     string `json:"apiKey"`
	APIBase    string `json:"apiBase,omitempty"`
	Model      string `json:"model"`
	PromptFile string `json:"promptFile,omitempty"` // optional YAML prompt overrides
}

type StoreConfig struct {
	DBPath string `json:"dbPath"`
	// Ledger selects the deduplication tier: "memory" is per-process and
	// resets on restart; "sqlite" is shared across instances.
	Ledger                  string `json:"ledger"`
	MemoryRetentionMinutes  int    `json:"memoryRetentionMinutes"`
	DurableRetentionMinutes int    `json:"durableRetentionMinutes"`
}

type DispatchConfig struct {
	// TimeoutSeconds bounds total per-event workflow time. Kept under the
	// typical webhook sender's retry ceiling.
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// DefaultConfigDir returns the default config directory (~/.briefbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".briefbot"
	}
	return filepath.Join(home, ".briefbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = expandPath(cfg.Store.DBPath)
	cfg.Gemini.PromptFile = expandPath(cfg.Gemini.PromptFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

// Validate checks value ranges and required relationships.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}
	if !strings.HasPrefix(cfg.Server.EventsPath, "/") {
		return fmt.Errorf("server.eventsPath must start with /, got %q", cfg.Server.EventsPath)
	}
	if !strings.HasPrefix(cfg.Server.InteractionsPath, "/") {
		return fmt.Errorf("server.interactionsPath must start with /, got %q", cfg.Server.InteractionsPath)
	}
	switch cfg.Store.Ledger {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("store.ledger must be \"memory\" or \"sqlite\", got %q", cfg.Store.Ledger)
	}
	if cfg.Store.MemoryRetentionMinutes < 1 {
		return fmt.Errorf("store.memoryRetentionMinutes must be >= 1, got %d", cfg.Store.MemoryRetentionMinutes)
	}
	if cfg.Store.DurableRetentionMinutes < 1 {
		return fmt.Errorf("store.durableRetentionMinutes must be >= 1, got %d", cfg.Store.DurableRetentionMinutes)
	}
	if cfg.Dispatch.TimeoutSeconds < 1 {
		return fmt.Errorf("dispatch.timeoutSeconds must be >= 1, got %d", cfg.Dispatch.TimeoutSeconds)
	}
	if cfg.Slack.TriggerReaction == "" {
		return fmt.Errorf("slack.triggerReaction must not be empty")
	}
	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("general.logLevel must be debug|info|warn|error, got %q", cfg.General.LogLevel)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		if len(groups) >= 3 {
			defaultVal = groups[2]
		}
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
