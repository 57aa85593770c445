package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for tripbot.
type Config struct {
	General  GeneralConfig  `yaml:"general"`
	LLM      LLMConfig      `yaml:"llm"`
	AMap     AMapConfig     `yaml:"amap"`
	Baidu    BaiduConfig    `yaml:"baidu"`
	Intents  IntentsConfig  `yaml:"intents"`
	Profiles ProfilesConfig `yaml:"profiles"`
	History  HistoryConfig  `yaml:"history"`
	Channels ChannelsConfig `yaml:"channels"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Agent    AgentConfig    `yaml:"agent"`
}

type GeneralConfig struct {
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`         // "text" | "json"
	LogFile       string `yaml:"logFile,omitempty"` // stderr when empty
	DisplayName   string `yaml:"displayName"`
	SystemPrompt  string `yaml:"systemPrompt"`
	DefaultUserID string `yaml:"defaultUserID"`
}

type LLMConfig struct {
	Provider       string  `yaml:"provider"` // "openai" | "deepseek" | "ollama"
	APIBase        string  `yaml:"apiBase,omitempty"`
	APIKey         string  `yaml:"apiKey,omitempty"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"maxTokens"`
	TimeoutSeconds int     `yaml:"timeoutSeconds"`
	MaxRetries     int     `yaml:"maxRetries"`
}

type AMapConfig struct {
	APIKey         string `yaml:"apiKey,omitempty"`
	BaseURL        string `yaml:"baseURL,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	MaxRetries     int    `yaml:"maxRetries"`
}

type BaiduConfig struct {
	APIKey         string `yaml:"apiKey,omitempty"`
	SecretKey      string `yaml:"secretKey,omitempty"`
	BaseURL        string `yaml:"baseURL,omitempty"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

type IntentsConfig struct {
	RulesFile string `yaml:"rulesFile,omitempty"` // embedded defaults when empty
}

type ProfilesConfig struct {
	Backend string `yaml:"backend"` // "memory" | "sqlite"
	DBPath  string `yaml:"dbPath"`
}

type HistoryConfig struct {
	Archive bool   `yaml:"archive"`
	DBPath  string `yaml:"dbPath"`
}

type ChannelsConfig struct {
	CLI       CLIConfig       `yaml:"cli"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Telegram  TelegramConfig  `yaml:"telegram"`
}

type CLIConfig struct {
	Enabled bool `yaml:"enabled"`
}

type WebSocketConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	Path           string   `yaml:"path"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Token     string   `yaml:"token,omitempty"`
	AllowFrom []string `yaml:"allowFrom,omitempty"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type AgentConfig struct {
	MaxConcurrent      int `yaml:"maxConcurrent"`
	TurnTimeoutSeconds int `yaml:"turnTimeoutSeconds"`
}

// DefaultConfigDir returns the default config directory (~/.tripbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tripbot"
	}
	return filepath.Join(home, ".tripbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads the YAML file at path over Defaults, expands ${VAR}
// references, overlays TRIPBOT_* secrets from the environment and
// validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefaults is Load, except that a missing file yields the defaults
// (still with the environment overlay applied).
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Defaults()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		cfg.expandPaths()
		return cfg, Validate(cfg)
	}
	return cfg, err
}

// Parse decodes YAML config data. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func (c *Config) expandPaths() {
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Profiles.DBPath = ExpandPath(c.Profiles.DBPath)
	c.History.DBPath = ExpandPath(c.History.DBPath)
	c.Intents.RulesFile = ExpandPath(c.Intents.RulesFile)
}

// Secrets are credentials that may come from the environment instead of
// the config file, e.g. TRIPBOT_AMAP_API_KEY.
type Secrets struct {
	LLMAPIKey      string `envconfig:"LLM_API_KEY"`
	AMapAPIKey     string `envconfig:"AMAP_API_KEY"`
	BaiduAPIKey    string `envconfig:"BAIDU_API_KEY"`
	BaiduSecretKey string `envconfig:"BAIDU_SECRET_KEY"`
	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
}

const envPrefix = "tripbot"

// ApplyEnv overlays non-empty TRIPBOT_* secrets onto cfg.
func ApplyEnv(cfg *Config) error {
	var s Secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&cfg.LLM.APIKey, s.LLMAPIKey)
	overlay(&cfg.AMap.APIKey, s.AMapAPIKey)
	overlay(&cfg.Baidu.APIKey, s.BaiduAPIKey)
	overlay(&cfg.Baidu.SecretKey, s.BaiduSecretKey)
	overlay(&cfg.Channels.Telegram.Token, s.TelegramToken)
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		hasDefault := strings.Contains(match, ":-")

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values and reports every
// problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if strings.TrimSpace(cfg.General.DefaultUserID) == "" {
		errs = append(errs, "general.defaultUserID is required")
	}

	switch cfg.LLM.Provider {
	case "openai", "deepseek", "ollama":
	case "":
		errs = append(errs, "llm.provider is required")
	default:
		if cfg.LLM.APIBase == "" {
			errs = append(errs, fmt.Sprintf("llm.apiBase is required for OpenAI-compatible provider %q", cfg.LLM.Provider))
		}
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, "llm.maxTokens must be >= 0")
	}
	if cfg.LLM.TimeoutSeconds < 1 {
		errs = append(errs, "llm.timeoutSeconds must be >= 1")
	}
	if cfg.LLM.MaxRetries < 0 || cfg.AMap.MaxRetries < 0 {
		errs = append(errs, "maxRetries must be >= 0")
	}

	switch cfg.Profiles.Backend {
	case "memory":
	case "sqlite":
		if cfg.Profiles.DBPath == "" {
			errs = append(errs, "profiles.dbPath is required for the sqlite backend")
		}
	default:
		errs = append(errs, "profiles.backend must be one of: memory, sqlite")
	}
	if cfg.History.Archive && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history.archive is on")
	}

	ws := cfg.Channels.WebSocket
	if ws.Enabled && (ws.Port < 1 || ws.Port > 65535) {
		errs = append(errs, "channels.websocket.port must be between 1 and 65535")
	}
	if ws.Enabled && !strings.HasPrefix(ws.Path, "/") {
		errs = append(errs, "channels.websocket.path must start with /")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled (or set TRIPBOT_TELEGRAM_TOKEN)")
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, "metrics.path must start with /")
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 1 and 65535")
	}

	if cfg.Agent.MaxConcurrent < 1 || cfg.Agent.MaxConcurrent > 100 {
		errs = append(errs, "agent.maxConcurrent must be between 1 and 100")
	}
	if cfg.Agent.TurnTimeoutSeconds < 1 {
		errs = append(errs, "agent.turnTimeoutSeconds must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
