package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/driftlock/dispatch-proxy/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Server    models.ServerConfig              `yaml:"server"`
	Auth      models.AuthConfig                `yaml:"auth"`
	Dispatch  models.DispatchConfig            `yaml:"dispatch"`
	Providers map[string]models.ProviderConfig `yaml:"providers"`
	Redis     *models.RedisConfig              `yaml:"redis,omitempty"`
	Database  *models.DatabaseConfig           `yaml:"database,omitempty"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Normalize provider map keys to lowercase for case-insensitive lookups
	if config.Providers != nil {
		normalized := make(map[string]models.ProviderConfig, len(config.Providers))
		for key, value := range config.Providers {
			normalized[strings.ToLower(key)] = value
		}
		config.Providers = normalized
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fmt.Printf("Loaded environment variables from %s\n", envFile)
			}
		}
	}
}

// Validate checks invariants that cannot be expressed in the YAML schema.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Dispatch.Profiles))
	for _, profile := range c.Dispatch.Profiles {
		if profile.Provider == "" || profile.Model == "" {
			return fmt.Errorf("profile %q: provider and model are required", profile.Key())
		}
		if profile.CostPerInputUnit < 0 || profile.CostPerOutputUnit < 0 {
			return fmt.Errorf("profile %q: costs must be non-negative", profile.Key())
		}
		if _, dup := seen[profile.Key()]; dup {
			return fmt.Errorf("duplicate profile %q", profile.Key())
		}
		seen[profile.Key()] = struct{}{}
	}

	threshold := c.Dispatch.Cache.SemanticThreshold
	if threshold != 0 && (threshold <= 0 || threshold > 1) {
		return fmt.Errorf("invalid semantic threshold %.2f; must be in (0.0, 1.0]", threshold)
	}
	return nil
}

// GetProviderConfig returns the configuration for a specific provider
func (c *Config) GetProviderConfig(provider string) (models.ProviderConfig, bool) {
	cfg, exists := c.Providers[strings.ToLower(provider)]
	return cfg, exists
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
