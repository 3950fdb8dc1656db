package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the threatlens server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Upload   UploadConfig   `yaml:"upload"`
	Cleanup  CleanupConfig  `yaml:"cleanup"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port              int    `yaml:"port"`
	Env               string `yaml:"env"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrationsDir   string        `yaml:"migrations_dir"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AIConfig struct {
	Provider       string          `yaml:"provider"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	OpenAI         OpenAIConfig    `yaml:"openai"`
	VLLM           VLLMConfig      `yaml:"vllm"`
	Gemini         GeminiConfig    `yaml:"gemini"`
	Ollama         OllamaConfig    `yaml:"ollama"`
	Anthropic      AnthropicConfig `yaml:"anthropic"`
}

type OpenAIConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	VisionModel string `yaml:"vision_model"`
	TextModel   string `yaml:"text_model"`
}

type VLLMConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AnalysisConfig tunes the two pipeline stages.
type AnalysisConfig struct {
	DiagramTokenBudget int           `yaml:"diagram_token_budget"`
	ThreatTokenBudget  int           `yaml:"threat_token_budget"`
	CategoryDelay      time.Duration `yaml:"category_delay"`
}

type UploadConfig struct {
	Dir      string `yaml:"dir"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type CleanupConfig struct {
	RetentionDays int           `yaml:"retention_days"`
	Interval      time.Duration `yaml:"interval"` // 0 disables the in-process worker
}

type AuthConfig struct {
	// APIKeyHashes are bcrypt hashes of accepted bearer keys. Empty disables auth.
	APIKeyHashes []string `yaml:"api_key_hashes"`
}

var validProviders = map[string]bool{
	"openai":    true,
	"vllm":      true,
	"gemini":    true,
	"ollama":    true,
	"anthropic": true,
}

// Load reads configuration from an optional YAML file (CONFIG_FILE) and then
// from environment variables, which take precedence, and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadMaintenance is Load for offline tools that only touch the database: the
// cache and AI provider settings are not required.
func LoadMaintenance() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Cleanup.RetentionDays < 0 {
		return nil, fmt.Errorf("CLEANUP_RETENTION_DAYS must not be negative")
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Env:               "development",
			RequestsPerMinute: 60,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			MigrationsDir:   "migrations",
		},
		AI: AIConfig{
			RequestTimeout: 120 * time.Second,
			OpenAI: OpenAIConfig{
				VisionModel: "gpt-4o",
				TextModel:   "gpt-4o",
			},
			VLLM: VLLMConfig{
				BaseURL: "http://localhost:8000/v1",
			},
			Gemini: GeminiConfig{
				Model: "gemini-2.0-flash",
			},
			Ollama: OllamaConfig{
				BaseURL: "http://localhost:11434",
				Model:   "llava",
			},
			Anthropic: AnthropicConfig{
				BaseURL: "https://api.anthropic.com",
				Model:   "claude-sonnet-4-5-20250929",
			},
		},
		Analysis: AnalysisConfig{
			DiagramTokenBudget: 4096,
			ThreatTokenBudget:  4096,
			CategoryDelay:      time.Second,
		},
		Upload: UploadConfig{
			Dir:      "uploads",
			MaxBytes: 10 << 20,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 7,
			Interval:      24 * time.Hour,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Server.Port = envInt("THREATLENS_PORT", c.Server.Port)
	c.Server.Env = envString("THREATLENS_ENV", c.Server.Env)
	c.Server.RequestsPerMinute = envInt("RATE_LIMIT_PER_MINUTE", c.Server.RequestsPerMinute)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envString("LOG_FORMAT", c.Log.Format)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = envDuration("DATABASE_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.MigrationsDir = envString("DATABASE_MIGRATIONS_DIR", c.Database.MigrationsDir)

	c.Redis.URL = envString("REDIS_URL", c.Redis.URL)

	c.AI.Provider = envString("AI_PROVIDER", c.AI.Provider)
	c.AI.RequestTimeout = envDurationSecs("AI_REQUEST_TIMEOUT_SECS", c.AI.RequestTimeout)
	c.AI.OpenAI.APIKey = envString("OPENAI_API_KEY", c.AI.OpenAI.APIKey)
	c.AI.OpenAI.BaseURL = envString("OPENAI_BASE_URL", c.AI.OpenAI.BaseURL)
	c.AI.OpenAI.VisionModel = envString("OPENAI_VISION_MODEL", c.AI.OpenAI.VisionModel)
	c.AI.OpenAI.TextModel = envString("OPENAI_TEXT_MODEL", c.AI.OpenAI.TextModel)
	c.AI.VLLM.BaseURL = envString("VLLM_BASE_URL", c.AI.VLLM.BaseURL)
	c.AI.VLLM.Model = envString("VLLM_MODEL", c.AI.VLLM.Model)
	c.AI.Gemini.APIKey = envString("GEMINI_API_KEY", c.AI.Gemini.APIKey)
	c.AI.Gemini.BaseURL = envString("GEMINI_BASE_URL", c.AI.Gemini.BaseURL)
	c.AI.Gemini.Model = envString("GEMINI_MODEL", c.AI.Gemini.Model)
	c.AI.Ollama.BaseURL = envString("OLLAMA_BASE_URL", c.AI.Ollama.BaseURL)
	c.AI.Ollama.Model = envString("OLLAMA_MODEL", c.AI.Ollama.Model)
	c.AI.Anthropic.APIKey = envString("ANTHROPIC_API_KEY", c.AI.Anthropic.APIKey)
	c.AI.Anthropic.BaseURL = envString("ANTHROPIC_BASE_URL", c.AI.Anthropic.BaseURL)
	c.AI.Anthropic.Model = envString("ANTHROPIC_MODEL", c.AI.Anthropic.Model)

	c.Analysis.DiagramTokenBudget = envInt("DIAGRAM_TOKEN_BUDGET", c.Analysis.DiagramTokenBudget)
	c.Analysis.ThreatTokenBudget = envInt("THREAT_TOKEN_BUDGET", c.Analysis.ThreatTokenBudget)
	c.Analysis.CategoryDelay = envDuration("THREAT_CATEGORY_DELAY", c.Analysis.CategoryDelay)

	c.Upload.Dir = envString("UPLOAD_DIR", c.Upload.Dir)
	c.Upload.MaxBytes = int64(envInt("UPLOAD_MAX_BYTES", int(c.Upload.MaxBytes)))

	c.Cleanup.RetentionDays = envInt("CLEANUP_RETENTION_DAYS", c.Cleanup.RetentionDays)
	c.Cleanup.Interval = envDuration("CLEANUP_INTERVAL", c.Cleanup.Interval)

	if v := os.Getenv("API_KEY_HASHES"); v != "" {
		c.Auth.APIKeyHashes = splitList(v)
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, vllm, gemini, ollama, anthropic; got %q", c.AI.Provider)
	}

	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "gemini" && c.AI.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is gemini")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}
	for name, u := range map[string]string{"VLLM_BASE_URL": c.AI.VLLM.BaseURL, "OLLAMA_BASE_URL": c.AI.Ollama.BaseURL} {
		if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.Analysis.DiagramTokenBudget <= 0 || c.Analysis.ThreatTokenBudget <= 0 {
		return fmt.Errorf("token budgets must be positive")
	}
	if c.Analysis.CategoryDelay < 0 {
		return fmt.Errorf("THREAT_CATEGORY_DELAY must not be negative")
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive")
	}
	if c.Cleanup.RetentionDays < 0 {
		return fmt.Errorf("CLEANUP_RETENTION_DAYS must not be negative")
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
