package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/viant/scy/cred/secret"
	"gopkg.in/yaml.v3"

	"antbot/internal/domain"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"

	DefaultDeployment = "gpt-4"
	DefaultAPIVersion = "2024-02-15-preview"
	DefaultContainer  = "antbot-docs"
	DefaultObject     = "manual.pdf"
	DefaultStorageURL = "file://localhost/var/lib/antbot"
)

// StorageConfig locates the manual in object storage.
type StorageConfig struct {
	URL       string `yaml:"url" toml:"url"`
	Container string `yaml:"container" toml:"container"`
	Object    string `yaml:"object" toml:"object"`
}

// LLMConfig configures the hosted chat completion service.
// APIKeySecret is a scy secret resource; when it is set, APIKey is the expansion template.
type LLMConfig struct {
	Provider     string `yaml:"provider" toml:"provider"`
	Endpoint     string `yaml:"endpoint" toml:"endpoint"`
	APIKey       string `yaml:"api_key,omitempty" toml:"api_key"`
	APIKeySecret string `yaml:"api_key_secret,omitempty" toml:"api_key_secret"`
	Deployment   string `yaml:"deployment" toml:"deployment"`
	APIVersion   string `yaml:"api_version" toml:"api_version"`
	TimeoutSecs  int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// ChunkerConfig configures how the manual is split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size" toml:"chunk_size"`
	Overlap   int `yaml:"overlap" toml:"overlap"`
}

// RetrievalConfig selects the ranker and how many chunks feed the prompt.
type RetrievalConfig struct {
	Ranker string `yaml:"ranker" toml:"ranker"`
	TopK   int    `yaml:"top_k" toml:"top_k"`
}

type PromptConfig struct {
	Language string `yaml:"language" toml:"language"`
}

type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences" toml:"max_sentences"`
}

// LogConfig configures slog output. An empty File logs to stderr.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	File   string `yaml:"file,omitempty" toml:"file"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string `yaml:"addr" toml:"addr"`
	SessionIdleMins int    `yaml:"session_idle_mins" toml:"session_idle_mins"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	LLM        LLMConfig        `yaml:"llm" toml:"llm"`
	Chunker    ChunkerConfig    `yaml:"chunker" toml:"chunker"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" toml:"retrieval"`
	Prompt     PromptConfig     `yaml:"prompt" toml:"prompt"`
	Summarizer SummarizerConfig `yaml:"summarizer" toml:"summarizer"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Server     ServerConfig     `yaml:"server" toml:"server"`
}

// Load reads a config from a YAML or TOML file (by extension) and applies
// environment overrides. If the file does not exist, defaults are used.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	case strings.EqualFold(filepath.Ext(path), ".toml"):
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./antbot.yaml and ./antbot.toml first, then ~/.config/antbot/config.yaml.
// If none exists, it writes defaults to ~/.config/antbot/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	for _, cwdPath := range []string{"antbot.yaml", "antbot.toml"} {
		if _, err := os.Stat(cwdPath); err == nil {
			cfg, err := Load(cwdPath)
			return cfg, cwdPath, err
		}
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	if err := Save(userPath, defaultConfig()); err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		defer f.Close()
		return toml.NewEncoder(f).Encode(cfg)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports missing settings that make the assistant unusable.
func (c *AppConfig) Validate() error {
	var missing []string
	for _, ch := range c.Check() {
		if !ch.OK {
			missing = append(missing, ch.Name)
		}
	}
	if c.LLM.Provider != ProviderAzure && c.LLM.Provider != ProviderOpenAI {
		return fmt.Errorf("unknown llm provider %q: %w", c.LLM.Provider, domain.ErrConfiguration)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s: %w", strings.Join(missing, ", "), domain.ErrConfiguration)
	}
	return nil
}

// Check is the presence status of one setting.
type Check struct {
	Name string
	OK   bool
}

// Check lists the settings required to answer questions and whether each is present.
func (c *AppConfig) Check() []Check {
	checks := []Check{
		{Name: "storage url", OK: c.Storage.URL != ""},
		{Name: "storage container", OK: c.Storage.Container != ""},
		{Name: "storage object", OK: c.Storage.Object != ""},
	}
	if c.LLM.Provider == ProviderAzure {
		checks = append(checks, Check{Name: "llm endpoint", OK: c.LLM.Endpoint != ""})
	}
	checks = append(checks,
		Check{Name: "llm api key", OK: c.LLM.APIKey != "" || c.LLM.APIKeySecret != ""},
		Check{Name: "llm deployment", OK: c.LLM.Deployment != ""},
	)
	return checks
}

// ResolveAPIKey returns the API key, expanding it from the configured scy secret when present.
func (c *AppConfig) ResolveAPIKey(ctx context.Context) (string, error) {
	ref := strings.TrimSpace(c.LLM.APIKeySecret)
	if ref == "" {
		if c.LLM.APIKey == "" {
			return "", fmt.Errorf("llm api key is empty: %w", domain.ErrConfiguration)
		}
		return c.LLM.APIKey, nil
	}
	tmpl := c.LLM.APIKey
	if tmpl == "" {
		tmpl = "${Password}"
	}
	sec, err := secret.New().Lookup(ctx, secret.Resource(ref))
	if err != nil {
		return "", fmt.Errorf("lookup secret %q: %w", ref, err)
	}
	key := sec.Expand(tmpl)
	if key == "" || key == tmpl {
		return "", fmt.Errorf("secret %q did not expand the api key: %w", ref, domain.ErrConfiguration)
	}
	return key, nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "antbot", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Storage:    StorageConfig{URL: DefaultStorageURL, Container: DefaultContainer, Object: DefaultObject},
		LLM:        LLMConfig{Provider: ProviderAzure, Deployment: DefaultDeployment, APIVersion: DefaultAPIVersion, TimeoutSecs: 60},
		Chunker:    ChunkerConfig{ChunkSize: 1000, Overlap: 200},
		Retrieval:  RetrievalConfig{Ranker: "lexical", TopK: 3},
		Prompt:     PromptConfig{Language: "ko"},
		Summarizer: SummarizerConfig{MaxSentences: 3},
		Log:        LogConfig{Level: "info", Format: "text"},
		Server:     ServerConfig{Addr: ":8080", SessionIdleMins: 60},
	}
}

var envOverrides = []struct {
	name  string
	field func(*AppConfig) *string
}{
	{"AZURE_OPENAI_ENDPOINT", func(c *AppConfig) *string { return &c.LLM.Endpoint }},
	{"AZURE_OPENAI_API_KEY", func(c *AppConfig) *string { return &c.LLM.APIKey }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *AppConfig) *string { return &c.LLM.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *AppConfig) *string { return &c.LLM.APIVersion }},
	{"AZURE_BLOB_CONTAINER_NAME", func(c *AppConfig) *string { return &c.Storage.Container }},
	{"ANTBOT_STORAGE_URL", func(c *AppConfig) *string { return &c.Storage.URL }},
	{"ANTBOT_OBJECT", func(c *AppConfig) *string { return &c.Storage.Object }},
	{"LOG_LEVEL", func(c *AppConfig) *string { return &c.Log.Level }},
}

func applyEnv(cfg *AppConfig) {
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.name)); v != "" {
			*o.field(cfg) = v
		}
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = ProviderAzure
	}
	if cfg.LLM.Deployment == "" {
		cfg.LLM.Deployment = DefaultDeployment
	}
	if cfg.LLM.APIVersion == "" {
		cfg.LLM.APIVersion = DefaultAPIVersion
	}
	if cfg.LLM.TimeoutSecs <= 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.Storage.Container == "" {
		cfg.Storage.Container = DefaultContainer
	}
	if cfg.Chunker.ChunkSize <= 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.Ranker == "" {
		cfg.Retrieval.Ranker = "lexical"
	}
	if cfg.Prompt.Language == "" {
		cfg.Prompt.Language = "ko"
	}
	if cfg.Summarizer.MaxSentences <= 0 {
		cfg.Summarizer.MaxSentences = 3
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.SessionIdleMins <= 0 {
		cfg.Server.SessionIdleMins = 60
	}
}
