package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	ScoringContent = "content"
	ScoringFormat  = "format"

	DefaultOpenAIModel      = "gpt-4-turbo"
	DefaultAnthropicModel   = "claude-3-opus-20240229"
	DefaultMaxTokens        = 4096
	DefaultTurnTimeout      = "120s"
	DefaultScoring          = ScoringFormat
	DefaultSummarizer       = ProviderOpenAI
	DefaultSnapshotSchedule = "0 0 3 * * *"
	DefaultTranscriptName   = "chat_history.txt"
	DefaultDatabaseName     = "turns.db"
	DefaultTelegramTimeout  = 30
	DefaultHistoryLimit     = 10
)

// ErrMissingCredentials is returned by Validate when either backend has no API key.
var ErrMissingCredentials = errors.New("missing API keys: set OPENAI_API_KEY and CLAUDE_API_KEY (or ANTHROPIC_API_KEY)")

type Config struct {
	Providers  ProvidersConfig  `json:"providers"`
	Agent      AgentConfig      `json:"agent"`
	Memory     MemoryConfig     `json:"memory"`
	Transcript TranscriptConfig `json:"transcript"`
	Channels   ChannelsConfig   `json:"channels"`
}

type ProvidersConfig struct {
	OpenAI    ProviderConfig `json:"openai"`
	Anthropic ProviderConfig `json:"anthropic"`
}

type ProviderConfig struct {
	APIKey    string `json:"apiKey"`
	BaseURL   string `json:"baseUrl,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"maxTokens"`
}

type AgentConfig struct {
	Scoring     string   `json:"scoring"`               // "content" or "format"
	Order       []string `json:"order"`                 // first entry wins ties
	TurnTimeout string   `json:"turnTimeout,omitempty"` // Go duration
}

type MemoryConfig struct {
	Summarizer       string `json:"summarizer"`
	SnapshotSchedule string `json:"snapshotSchedule,omitempty"`
}

type TranscriptConfig struct {
	Path   string `json:"path,omitempty"`
	DBPath string `json:"dbPath,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			OpenAI: ProviderConfig{
				Model:     DefaultOpenAIModel,
				MaxTokens: DefaultMaxTokens,
			},
			Anthropic: ProviderConfig{
				Model:     DefaultAnthropicModel,
				MaxTokens: DefaultMaxTokens,
			},
		},
		Agent: AgentConfig{
			Scoring:     DefaultScoring,
			Order:       []string{ProviderAnthropic, ProviderOpenAI},
			TurnTimeout: DefaultTurnTimeout,
		},
		Memory: MemoryConfig{
			Summarizer:       DefaultSummarizer,
			SnapshotSchedule: DefaultSnapshotSchedule,
		},
		Transcript: TranscriptConfig{
			Path:   filepath.Join(ConfigDir(), DefaultTranscriptName),
			DBPath: filepath.Join(ConfigDir(), "data", DefaultDatabaseName),
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".mealmatch")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// EnvPath is the optional dotenv file holding the two provider keys.
func EnvPath() string {
	return filepath.Join(ConfigDir(), "keys", ".env")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	dotenv, err := godotenv.Read(EnvPath())
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", EnvPath(), err)
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}

	// Environment variable overrides
	if key := lookup("OPENAI_API_KEY"); key != "" {
		cfg.Providers.OpenAI.APIKey = key
	}
	if key := lookup("CLAUDE_API_KEY"); key != "" {
		cfg.Providers.Anthropic.APIKey = key
	}
	if key := lookup("ANTHROPIC_API_KEY"); key != "" && cfg.Providers.Anthropic.APIKey == "" {
		cfg.Providers.Anthropic.APIKey = key
	}
	if url := os.Getenv("OPENAI_BASE_URL"); url != "" {
		cfg.Providers.OpenAI.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" {
		cfg.Providers.Anthropic.BaseURL = url
	}
	if scoring := os.Getenv("MEALMATCH_SCORING"); scoring != "" {
		cfg.Agent.Scoring = scoring
	}
	if summarizer := os.Getenv("MEALMATCH_SUMMARIZER"); summarizer != "" {
		cfg.Memory.Summarizer = summarizer
	}
	if token := os.Getenv("MEALMATCH_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("MEALMATCH_DB_PATH"); dbPath != "" {
		cfg.Transcript.DBPath = dbPath
	}
	if path := os.Getenv("MEALMATCH_TRANSCRIPT"); path != "" {
		cfg.Transcript.Path = path
	}

	defaults := DefaultConfig()
	if cfg.Providers.OpenAI.Model == "" {
		cfg.Providers.OpenAI.Model = DefaultOpenAIModel
	}
	if cfg.Providers.Anthropic.Model == "" {
		cfg.Providers.Anthropic.Model = DefaultAnthropicModel
	}
	if cfg.Agent.Scoring == "" {
		cfg.Agent.Scoring = DefaultScoring
	}
	if len(cfg.Agent.Order) == 0 {
		cfg.Agent.Order = defaults.Agent.Order
	}
	if cfg.Agent.TurnTimeout == "" {
		cfg.Agent.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.Memory.Summarizer == "" {
		cfg.Memory.Summarizer = DefaultSummarizer
	}
	if cfg.Memory.SnapshotSchedule == "" {
		cfg.Memory.SnapshotSchedule = DefaultSnapshotSchedule
	}
	if cfg.Transcript.Path == "" {
		cfg.Transcript.Path = defaults.Transcript.Path
	}
	if cfg.Transcript.DBPath == "" {
		cfg.Transcript.DBPath = defaults.Transcript.DBPath
	}

	return cfg, nil
}

// Validate checks the settings a chat session cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Providers.OpenAI.APIKey) == "" || strings.TrimSpace(c.Providers.Anthropic.APIKey) == "" {
		return ErrMissingCredentials
	}
	if len(c.Agent.Order) != 2 {
		return fmt.Errorf("agent.order must name exactly two providers, got %d", len(c.Agent.Order))
	}
	seen := map[string]bool{}
	for _, name := range c.Agent.Order {
		if !isProvider(name) {
			return fmt.Errorf("agent.order: unknown provider %q", name)
		}
		if seen[name] {
			return fmt.Errorf("agent.order: provider %q listed twice", name)
		}
		seen[name] = true
	}
	if !isProvider(c.Memory.Summarizer) {
		return fmt.Errorf("memory.summarizer: unknown provider %q", c.Memory.Summarizer)
	}
	if _, err := c.TurnTimeout(); err != nil {
		return err
	}
	return nil
}

// TurnTimeout parses agent.turnTimeout; zero disables the bound.
func (c *Config) TurnTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Agent.TurnTimeout)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("agent.turnTimeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("agent.turnTimeout must not be negative")
	}
	return d, nil
}

// Provider returns the settings for the named backend.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case ProviderOpenAI:
		return c.Providers.OpenAI, true
	case ProviderAnthropic:
		return c.Providers.Anthropic, true
	}
	return ProviderConfig{}, false
}

func isProvider(name string) bool {
	return name == ProviderOpenAI || name == ProviderAnthropic
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
