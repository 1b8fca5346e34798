package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearKeyEnv(t *testing.T) {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CLAUDE_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("ANTHROPIC_BASE_URL", "")
	t.Setenv("MEALMATCH_SCORING", "")
	t.Setenv("MEALMATCH_SUMMARIZER", "")
	t.Setenv("MEALMATCH_TELEGRAM_TOKEN", "")
	t.Setenv("MEALMATCH_DB_PATH", "")
	t.Setenv("MEALMATCH_TRANSCRIPT", "")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}
	if cfg.Providers.OpenAI.Model != DefaultOpenAIModel {
		t.Errorf("openai model = %q, want %q", cfg.Providers.OpenAI.Model, DefaultOpenAIModel)
	}
	if cfg.Providers.Anthropic.Model != DefaultAnthropicModel {
		t.Errorf("anthropic model = %q, want %q", cfg.Providers.Anthropic.Model, DefaultAnthropicModel)
	}
	if cfg.Agent.Scoring != ScoringFormat {
		t.Errorf("scoring = %q, want %q", cfg.Agent.Scoring, ScoringFormat)
	}
	if len(cfg.Agent.Order) != 2 || cfg.Agent.Order[0] != ProviderAnthropic || cfg.Agent.Order[1] != ProviderOpenAI {
		t.Errorf("order = %v, want [anthropic openai]", cfg.Agent.Order)
	}
	if cfg.Memory.Summarizer != ProviderOpenAI {
		t.Errorf("summarizer = %q, want openai", cfg.Memory.Summarizer)
	}
	if cfg.Memory.SnapshotSchedule != DefaultSnapshotSchedule {
		t.Errorf("snapshotSchedule = %q", cfg.Memory.SnapshotSchedule)
	}
	if cfg.Transcript.Path == "" || cfg.Transcript.DBPath == "" {
		t.Error("transcript paths should not be empty")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Providers.OpenAI.Model != DefaultOpenAIModel {
		t.Errorf("expected default model %q, got %q", DefaultOpenAIModel, cfg.Providers.OpenAI.Model)
	}
	if cfg.Transcript.Path != filepath.Join(tmpDir, ".mealmatch", DefaultTranscriptName) {
		t.Errorf("transcript path = %q", cfg.Transcript.Path)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	cfgDir := filepath.Join(tmpDir, ".mealmatch")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"providers": map[string]any{
			"openai": map[string]any{
				"apiKey":    "sk-openai",
				"model":     "gpt-4o",
				"maxTokens": 2048,
			},
			"anthropic": map[string]any{
				"apiKey": "sk-ant",
			},
		},
		"agent": map[string]any{
			"scoring": "content",
			"order":   []string{"openai", "anthropic"},
		},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Providers.OpenAI.Model != "gpt-4o" {
		t.Errorf("openai model = %q, want gpt-4o", cfg.Providers.OpenAI.Model)
	}
	if cfg.Providers.OpenAI.MaxTokens != 2048 {
		t.Errorf("maxTokens = %d, want 2048", cfg.Providers.OpenAI.MaxTokens)
	}
	if cfg.Providers.Anthropic.APIKey != "sk-ant" {
		t.Errorf("anthropic apiKey = %q, want sk-ant", cfg.Providers.Anthropic.APIKey)
	}
	if cfg.Providers.Anthropic.Model != DefaultAnthropicModel {
		t.Errorf("anthropic model = %q, want default", cfg.Providers.Anthropic.Model)
	}
	if cfg.Agent.Scoring != ScoringContent {
		t.Errorf("scoring = %q, want content", cfg.Agent.Scoring)
	}
	if cfg.Agent.Order[0] != ProviderOpenAI {
		t.Errorf("order = %v, want openai first", cfg.Agent.Order)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	tests := []struct {
		name          string
		envKey        string
		envVal        string
		wantOpenAI    string
		wantAnthropic string
	}{
		{"OPENAI_API_KEY", "OPENAI_API_KEY", "openai-key", "openai-key", ""},
		{"CLAUDE_API_KEY", "CLAUDE_API_KEY", "claude-key", "", "claude-key"},
		{"ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY", "anthropic-key", "", "anthropic-key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearKeyEnv(t)
			t.Setenv(tt.envKey, tt.envVal)

			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig error: %v", err)
			}
			if cfg.Providers.OpenAI.APIKey != tt.wantOpenAI {
				t.Errorf("openai apiKey = %q, want %q", cfg.Providers.OpenAI.APIKey, tt.wantOpenAI)
			}
			if cfg.Providers.Anthropic.APIKey != tt.wantAnthropic {
				t.Errorf("anthropic apiKey = %q, want %q", cfg.Providers.Anthropic.APIKey, tt.wantAnthropic)
			}
		})
	}
}

func TestLoadConfig_EnvPriority(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	// CLAUDE_API_KEY takes priority over ANTHROPIC_API_KEY
	t.Setenv("CLAUDE_API_KEY", "claude-wins")
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-loses")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Providers.Anthropic.APIKey != "claude-wins" {
		t.Errorf("apiKey = %q, want claude-wins", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadConfig_DotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	keysDir := filepath.Join(tmpDir, ".mealmatch", "keys")
	os.MkdirAll(keysDir, 0755)
	os.WriteFile(filepath.Join(keysDir, ".env"), []byte("OPENAI_API_KEY=file-openai\nCLAUDE_API_KEY=file-claude\n"), 0600)

	t.Setenv("OPENAI_API_KEY", "env-openai")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Providers.OpenAI.APIKey != "env-openai" {
		t.Errorf("openai apiKey = %q, environment should win over .env", cfg.Providers.OpenAI.APIKey)
	}
	if cfg.Providers.Anthropic.APIKey != "file-claude" {
		t.Errorf("anthropic apiKey = %q, want file-claude", cfg.Providers.Anthropic.APIKey)
	}
}

func TestLoadConfig_MealmatchEnv(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	t.Setenv("MEALMATCH_SCORING", "content")
	t.Setenv("MEALMATCH_SUMMARIZER", "anthropic")
	t.Setenv("MEALMATCH_TELEGRAM_TOKEN", "tg-token")
	t.Setenv("MEALMATCH_DB_PATH", "/tmp/turns.db")
	t.Setenv("MEALMATCH_TRANSCRIPT", "/tmp/chat.txt")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:8080/v1")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Scoring != "content" {
		t.Errorf("scoring = %q", cfg.Agent.Scoring)
	}
	if cfg.Memory.Summarizer != "anthropic" {
		t.Errorf("summarizer = %q", cfg.Memory.Summarizer)
	}
	if cfg.Channels.Telegram.Token != "tg-token" {
		t.Errorf("telegram token = %q", cfg.Channels.Telegram.Token)
	}
	if cfg.Transcript.DBPath != "/tmp/turns.db" {
		t.Errorf("db path = %q", cfg.Transcript.DBPath)
	}
	if cfg.Transcript.Path != "/tmp/chat.txt" {
		t.Errorf("transcript path = %q", cfg.Transcript.Path)
	}
	if cfg.Providers.OpenAI.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("openai baseURL = %q", cfg.Providers.OpenAI.BaseURL)
	}
}

func TestSaveConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "test-key"

	if err := SaveConfig(cfg); err != nil {
		t.Fatalf("SaveConfig error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, ".mealmatch", "config.json"))
	if err != nil {
		t.Fatalf("read saved config: %v", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if loaded.Providers.OpenAI.APIKey != "test-key" {
		t.Errorf("saved apiKey = %q, want test-key", loaded.Providers.OpenAI.APIKey)
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfgDir := filepath.Join(tmpDir, ".mealmatch")
	os.MkdirAll(cfgDir, 0755)
	os.WriteFile(filepath.Join(cfgDir, "config.json"), []byte("invalid json"), 0644)

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfig_EmptyFieldsFallBack(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	clearKeyEnv(t)

	cfgDir := filepath.Join(tmpDir, ".mealmatch")
	os.MkdirAll(cfgDir, 0755)

	testCfg := map[string]any{
		"agent":  map[string]any{"scoring": "", "order": []string{}},
		"memory": map[string]any{"summarizer": ""},
	}
	data, _ := json.MarshalIndent(testCfg, "", "  ")
	os.WriteFile(filepath.Join(cfgDir, "config.json"), data, 0644)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.Agent.Scoring != DefaultScoring {
		t.Errorf("scoring = %q, want default", cfg.Agent.Scoring)
	}
	if len(cfg.Agent.Order) != 2 {
		t.Errorf("order = %v, want default", cfg.Agent.Order)
	}
	if cfg.Memory.Summarizer != DefaultSummarizer {
		t.Errorf("summarizer = %q, want default", cfg.Memory.Summarizer)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Providers.OpenAI.APIKey = "o"
		cfg.Providers.Anthropic.APIKey = "a"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate error: %v", err)
	}

	missing := valid()
	missing.Providers.Anthropic.APIKey = "  "
	if err := missing.Validate(); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("err = %v, want ErrMissingCredentials", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"one provider", func(c *Config) { c.Agent.Order = []string{"openai"} }},
		{"unknown provider", func(c *Config) { c.Agent.Order = []string{"openai", "gemini"} }},
		{"duplicate provider", func(c *Config) { c.Agent.Order = []string{"openai", "openai"} }},
		{"unknown summarizer", func(c *Config) { c.Memory.Summarizer = "local" }},
		{"bad timeout", func(c *Config) { c.Agent.TurnTimeout = "soon" }},
		{"negative timeout", func(c *Config) { c.Agent.TurnTimeout = "-1s" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTurnTimeout(t *testing.T) {
	cfg := DefaultConfig()
	d, err := cfg.TurnTimeout()
	if err != nil {
		t.Fatalf("TurnTimeout error: %v", err)
	}
	if d != 120*time.Second {
		t.Errorf("timeout = %v, want 120s", d)
	}

	cfg.Agent.TurnTimeout = ""
	if d, _ := cfg.TurnTimeout(); d != 0 {
		t.Errorf("empty timeout = %v, want 0", d)
	}
}

func TestProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Anthropic.APIKey = "a"
	p, ok := cfg.Provider(ProviderAnthropic)
	if !ok || p.APIKey != "a" {
		t.Errorf("Provider(anthropic) = %+v, %v", p, ok)
	}
	if _, ok := cfg.Provider("gemini"); ok {
		t.Error("expected unknown provider to report false")
	}
}
