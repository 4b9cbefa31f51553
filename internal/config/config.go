package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// WorkersEnv overrides Orchestrator.Workers when set to a positive integer.
const WorkersEnv = "PITCHRADAR_WORKERS"

type Config struct {
	LLM          LLM          `yaml:"llm"`
	Analysis     Analysis     `yaml:"analysis"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Search       Search       `yaml:"search"`
	Cache        Cache        `yaml:"cache"`
	Graph        Graph        `yaml:"graph"`
	LinkedIn     LinkedIn     `yaml:"linkedin"`
	Moderation   Moderation   `yaml:"moderation"`
	Storage      Storage      `yaml:"storage"`
	Output       Output       `yaml:"output"`
	Server       Server       `yaml:"server"`
	Logging      Logging      `yaml:"logging"`
}

type LLM struct {
	Provider     string  `yaml:"provider"`
	Model        string  `yaml:"model"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	BaseURL      string  `yaml:"base_url"`
	OllamaURL    string  `yaml:"ollama_url"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
	RateLimitRPM int     `yaml:"rate_limit_rpm"`
	Burst        int     `yaml:"burst"`
}

type Analysis struct {
	MaxInputChars int      `yaml:"max_input_chars"`
	Categories    []string `yaml:"categories"`
}

type Orchestrator struct {
	Workers     int           `yaml:"workers"`
	RunTimeout  time.Duration `yaml:"run_timeout"`
	TaskTimeout time.Duration `yaml:"task_timeout"`
}

type Search struct {
	News   NewsSearch   `yaml:"news"`
	Market MarketSearch `yaml:"market"`
}

type NewsSearch struct {
	Provider   string        `yaml:"provider"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	NumResults int           `yaml:"num_results"`
	RSSURL     string        `yaml:"rss_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type MarketSearch struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type Cache struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   Redis         `yaml:"redis"`
}

type Redis struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
}

type Graph struct {
	Enabled       bool `yaml:"enabled"`
	NewsPerEntity int  `yaml:"news_per_entity"`
	Workers       int  `yaml:"workers"`
}

type LinkedIn struct {
	Workers int `yaml:"workers"`
}

type Moderation struct {
	BlockUnsafe bool `yaml:"block_unsafe"`
}

type Storage struct {
	FileRoot string `yaml:"file_root"`
}

type Output struct {
	DataDir   string `yaml:"data_dir"`
	StoreRuns bool   `yaml:"store_runs"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// ConfigDir returns the XDG config directory for pitchradar.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "pitchradar")
}

// DataDir returns the XDG data directory for pitchradar.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "pitchradar")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/pitchradar/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'pitchradar init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the configuration used when no config file exists.
func Default() (*Config, error) {
	return parse(nil)
}

// parse parses YAML bytes into a Config, applying defaults and env overrides.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:     "gemini",
			Model:        "gemini-2.5-flash",
			APIKeyEnv:    "GEMINI_API_KEY",
			OllamaURL:    "http://localhost:11434",
			MaxTokens:    4096,
			Temperature:  0.3,
			RateLimitRPM: 120,
			Burst:        8,
		},
		Analysis: Analysis{MaxInputChars: 60000},
		Orchestrator: Orchestrator{
			RunTimeout:  5 * time.Minute,
			TaskTimeout: 2 * time.Minute,
		},
		Search: Search{
			News: NewsSearch{
				Provider:   "serpapi",
				APIKeyEnv:  "SERPAPI_API_KEY",
				NumResults: 5,
				RSSURL:     "https://news.google.com/rss/search",
				Timeout:    30 * time.Second,
			},
			Market: MarketSearch{
				Provider:  "perplexity",
				Model:     "sonar",
				APIKeyEnv: "PERPLEXITY_API_KEY",
				BaseURL:   "https://api.perplexity.ai",
				Timeout:   60 * time.Second,
			},
		},
		Cache: Cache{
			Backend: "memory",
			TTL:     time.Hour,
			Redis:   Redis{Addr: "localhost:6379", PasswordEnv: "REDIS_PASSWORD"},
		},
		Graph:    Graph{Enabled: true, NewsPerEntity: 3, Workers: 4},
		LinkedIn: LinkedIn{Workers: 4},
		Output:   Output{StoreRuns: true},
		Server:   Server{Host: "127.0.0.1", Port: 8080},
		Logging:  Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if v := os.Getenv(WorkersEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid %s: %q", WorkersEnv, v)
		}
		cfg.Orchestrator.Workers = n
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// GetFileRoot returns the directory backing file:// object URIs.
func (c *Config) GetFileRoot() string {
	if c.Storage.FileRoot != "" {
		return c.Storage.FileRoot
	}
	return filepath.Join(c.GetDataDir(), "objects")
}

// APIKey reads the secret named by envName, returning "" when unset.
func APIKey(envName string) string {
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
