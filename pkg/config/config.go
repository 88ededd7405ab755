package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider    string  `yaml:"provider"` // googleai, openai or ollama
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"` // ollama only
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type ArchiveConfig struct {
	BaseURL       string  `yaml:"base_url"`
	MaxOffsetDays int     `yaml:"max_offset_days"`
	RateLimit     float64 `yaml:"rate_limit"` // requests per second
	Timeout       string  `yaml:"timeout"`
	MaxRetries    int     `yaml:"max_retries"`
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
	TTL string `yaml:"ttl"`
}

type UIConfig struct {
	HistorySize int `yaml:"history_size"`
}

type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Archive ArchiveConfig `yaml:"archive"`
	Cache   CacheConfig   `yaml:"cache"`
	UI      UIConfig      `yaml:"ui"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/waybackbot/config.yaml"),
			"/etc/waybackbot/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "googleai"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "openai":
			config.LLM.Model = "gpt-4o-mini"
		case "ollama":
			config.LLM.Model = "mistral"
		default:
			config.LLM.Model = "gemini-1.5-flash"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.4
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}

	if config.Archive.BaseURL == "" {
		config.Archive.BaseURL = "http://web.archive.org"
	}
	if config.Archive.MaxOffsetDays == 0 {
		config.Archive.MaxOffsetDays = 7
	}
	if config.Archive.RateLimit == 0 {
		config.Archive.RateLimit = 2.0
	}
	if config.Archive.Timeout == "" {
		config.Archive.Timeout = "30s"
	}
	if config.Archive.MaxRetries == 0 {
		config.Archive.MaxRetries = 3
	}

	if config.Cache.Dir == "" {
		config.Cache.Dir = "cache"
	}
	if config.Cache.TTL == "" {
		config.Cache.TTL = "2160h" // 90 days
	}

	if config.UI.HistorySize == 0 {
		config.UI.HistorySize = 10
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" && config.LLM.APIKey == "" {
		config.LLM.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && config.LLM.Provider == "openai" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if dir := os.Getenv("WAYBACK_CACHE_DIR"); dir != "" {
		config.Cache.Dir = dir
	}
}

// ArchiveTimeout returns the parsed archive request timeout.
func (c *Config) ArchiveTimeout() time.Duration {
	d, err := time.ParseDuration(c.Archive.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// CacheTTL returns the parsed cache retention window.
func (c *Config) CacheTTL() time.Duration {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 90 * 24 * time.Hour
	}
	return d
}
