package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Cloud   CloudConfig   `json:"cloud"`
	Tagger  TaggerConfig  `json:"tagger"`
	Image   ImageConfig   `json:"image"`
	History HistoryConfig `json:"history"`

	// APIKey comes from the environment only; it is never written to the
	// config file.
	APIKey string `json:"-"`
}

// CloudConfig holds configuration for the cloud analysis client
type CloudConfig struct {
	Endpoint       string `json:"endpoint"`
	Model          string `json:"model"`
	APIVersion     string `json:"api_version"`
	MaxTokens      int    `json:"max_tokens"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// TaggerConfig holds configuration for the on-device tag engine
type TaggerConfig struct {
	OllamaURL string `json:"ollama_url"`
	Model     string `json:"model"`
}

// ImageConfig holds configuration for image loading and model upload encoding
type ImageConfig struct {
	MaxDimension int `json:"max_dimension"`
	JPEGQuality  int `json:"jpeg_quality"`
}

// HistoryConfig holds configuration for the analysis history store
type HistoryConfig struct {
	Path string `json:"path"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Cloud: CloudConfig{
			Endpoint:       "https://api.anthropic.com/v1/messages",
			Model:          "claude-3-5-sonnet-20241022",
			APIVersion:     "2023-06-01",
			MaxTokens:      1000,
			TimeoutSeconds: 60,
		},
		Tagger: TaggerConfig{
			OllamaURL: "http://localhost:11434",
			Model:     "llava",
		},
		Image: ImageConfig{
			MaxDimension: 1536,
			JPEGQuality:  85,
		},
		History: HistoryConfig{
			Path: defaultHistoryPath(),
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path if it exists, then environment overrides (a .env file is honored when
// present).
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := LoadFromFile(path)
			if err != nil {
				return nil, err
			}
			config = loaded
		}
	}

	_ = godotenv.Load()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnv overlays environment variables onto the configuration.
func (c *Config) applyEnv() {
	if v := os.Getenv("DAMAGE_ANALYZER_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("DAMAGE_ANALYZER_ENDPOINT"); v != "" {
		c.Cloud.Endpoint = v
	}
	if v := os.Getenv("DAMAGE_ANALYZER_MODEL"); v != "" {
		c.Cloud.Model = v
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		c.Tagger.OllamaURL = v
	}
	if v := os.Getenv("DAMAGE_ANALYZER_TAGGER_MODEL"); v != "" {
		c.Tagger.Model = v
	}
	if v := os.Getenv("DAMAGE_ANALYZER_HISTORY_DB"); v != "" {
		c.History.Path = v
	}
	if v := os.Getenv("DAMAGE_ANALYZER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cloud.TimeoutSeconds = n
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cloud.Endpoint == "" {
		return fmt.Errorf("cloud.endpoint cannot be empty")
	}

	if c.Cloud.Model == "" {
		return fmt.Errorf("cloud.model cannot be empty")
	}

	if c.Cloud.MaxTokens < 1 {
		return fmt.Errorf("cloud.max_tokens must be positive")
	}

	if c.Cloud.TimeoutSeconds < 1 {
		return fmt.Errorf("cloud.timeout_seconds must be positive")
	}

	if c.Image.JPEGQuality < 1 || c.Image.JPEGQuality > 100 {
		return fmt.Errorf("image.jpeg_quality must be between 1 and 100")
	}

	if c.Image.MaxDimension < 0 {
		return fmt.Errorf("image.max_dimension cannot be negative")
	}

	if c.History.Path == "" {
		return fmt.Errorf("history.path cannot be empty")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "damage-analyzer", "config.json")
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./damage-analyzer.db"
	}
	return filepath.Join(home, ".local", "share", "damage-analyzer", "history.db")
}
