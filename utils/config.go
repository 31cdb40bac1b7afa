package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	AppName  string         `json:"app_name" yaml:"app_name"`
	LMStudio LMStudioConfig `json:"lmstudio" yaml:"lmstudio"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Vision   VisionConfig   `json:"vision" yaml:"vision"`
	Tools    ToolsConfig    `json:"tools" yaml:"tools"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// LMStudioConfig represents the local inference endpoint configuration
type LMStudioConfig struct {
	BaseURL     string  `json:"base_url" yaml:"base_url"`
	Timeout     int     `json:"timeout" yaml:"timeout"` // seconds
	MaxRetries  int     `json:"max_retries" yaml:"max_retries"`
	ModelName   string  `json:"model_name" yaml:"model_name"` // empty = model loaded in the server
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
	Stream      bool    `json:"stream" yaml:"stream"`
}

// DatabaseConfig represents data storage configuration
type DatabaseConfig struct {
	Path           string  `json:"path" yaml:"path"`
	EnableWAL      bool    `json:"enable_wal" yaml:"enable_wal"`
	Timeout        float64 `json:"timeout" yaml:"timeout"` // seconds
	MaxConnections int     `json:"max_connections" yaml:"max_connections"`
}

// VisionConfig represents image handling configuration
type VisionConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	ModelName        string   `json:"model_name" yaml:"model_name"`
	MaxImageSizeMB   int      `json:"max_image_size" yaml:"max_image_size"`
	SupportedFormats []string `json:"supported_formats" yaml:"supported_formats"`
}

// ToolsConfig represents tool execution configuration
type ToolsConfig struct {
	Enabled       bool     `json:"enabled" yaml:"enabled"`
	MaxIterations int      `json:"max_iterations" yaml:"max_iterations"`
	Timeout       int      `json:"timeout" yaml:"timeout"` // seconds
	AllowedTools  []string `json:"allowed_tools" yaml:"allowed_tools"` // empty = all allowed
}

// LoggingConfig represents log sink configuration
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level"`
	Format   string `json:"format" yaml:"format"` // "console" or "json"
	FilePath string `json:"file_path" yaml:"file_path"`
}

// DefaultConfig returns the configuration used when no file overrides it
func DefaultConfig() *Config {
	return &Config{
		AppName: "Fluxa",
		LMStudio: LMStudioConfig{
			BaseURL:     "http://localhost:1234/v1",
			Timeout:     30,
			MaxRetries:  3,
			Temperature: 0.7,
			MaxTokens:   2048,
			Stream:      true,
		},
		Database: DatabaseConfig{
			Path:           "./data/fluxa.db",
			EnableWAL:      true,
			Timeout:        5.0,
			MaxConnections: 5,
		},
		Vision: VisionConfig{
			Enabled:          true,
			MaxImageSizeMB:   10,
			SupportedFormats: []string{"jpg", "png"},
		},
		Tools: ToolsConfig{
			Enabled:       true,
			MaxIterations: 5,
			Timeout:       15,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from file on top of the defaults, then applies
// FLUXA_* environment overrides and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		switch strings.ToLower(filepath.Ext(configPath)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = json.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := config.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if config.Database.Path != "" && config.Database.Path != ":memory:" {
		config.Database.Path = expandPath(config.Database.Path)
	}
	config.LMStudio.BaseURL = strings.TrimRight(config.LMStudio.BaseURL, "/")

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks every setting against its allowed range
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, v ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, v...))
		}
	}

	check(c.LMStudio.BaseURL != "", "lmstudio.base_url is required")
	check(c.LMStudio.Timeout >= 1 && c.LMStudio.Timeout <= 100, "lmstudio.timeout must be in [1, 100], got %d", c.LMStudio.Timeout)
	check(c.LMStudio.MaxRetries >= 0 && c.LMStudio.MaxRetries <= 10, "lmstudio.max_retries must be in [0, 10], got %d", c.LMStudio.MaxRetries)
	check(c.LMStudio.Temperature >= 0 && c.LMStudio.Temperature <= 2, "lmstudio.temperature must be in [0, 2], got %g", c.LMStudio.Temperature)
	check(c.LMStudio.MaxTokens >= 1 && c.LMStudio.MaxTokens <= 16384, "lmstudio.max_tokens must be in [1, 16384], got %d", c.LMStudio.MaxTokens)
	check(c.Database.Path != "", "database.path is required")
	check(c.Database.Timeout >= 1 && c.Database.Timeout <= 30, "database.timeout must be in [1, 30], got %g", c.Database.Timeout)
	check(c.Database.MaxConnections >= 1 && c.Database.MaxConnections <= 20, "database.max_connections must be in [1, 20], got %d", c.Database.MaxConnections)
	check(c.Vision.MaxImageSizeMB >= 1 && c.Vision.MaxImageSizeMB <= 100, "vision.max_image_size must be in [1, 100], got %d", c.Vision.MaxImageSizeMB)
	check(c.Tools.MaxIterations >= 1 && c.Tools.MaxIterations <= 20, "tools.max_iterations must be in [1, 20], got %d", c.Tools.MaxIterations)
	check(c.Tools.Timeout >= 1 && c.Tools.Timeout <= 60, "tools.timeout must be in [1, 60], got %d", c.Tools.Timeout)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnvOverrides reads FLUXA_<SECTION>_<KEY> variables
func (c *Config) applyEnvOverrides() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = nil
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					*dst = append(*dst, item)
				}
			}
		}
	}

	str("FLUXA_APP_NAME", &c.AppName)

	str("FLUXA_LMSTUDIO_BASE_URL", &c.LMStudio.BaseURL)
	integer("FLUXA_LMSTUDIO_TIMEOUT", &c.LMStudio.Timeout)
	integer("FLUXA_LMSTUDIO_MAX_RETRIES", &c.LMStudio.MaxRetries)
	str("FLUXA_LMSTUDIO_MODEL_NAME", &c.LMStudio.ModelName)
	float("FLUXA_LMSTUDIO_TEMPERATURE", &c.LMStudio.Temperature)
	integer("FLUXA_LMSTUDIO_MAX_TOKENS", &c.LMStudio.MaxTokens)
	boolean("FLUXA_LMSTUDIO_STREAM", &c.LMStudio.Stream)

	str("FLUXA_DB_PATH", &c.Database.Path)
	boolean("FLUXA_DB_ENABLE_WAL", &c.Database.EnableWAL)
	float("FLUXA_DB_TIMEOUT", &c.Database.Timeout)
	integer("FLUXA_DB_MAX_CONNECTIONS", &c.Database.MaxConnections)

	boolean("FLUXA_VISION_ENABLED", &c.Vision.Enabled)
	str("FLUXA_VISION_MODEL_NAME", &c.Vision.ModelName)
	integer("FLUXA_VISION_MAX_IMAGE_SIZE", &c.Vision.MaxImageSizeMB)
	list("FLUXA_VISION_SUPPORTED_FORMATS", &c.Vision.SupportedFormats)

	boolean("FLUXA_TOOLS_ENABLED", &c.Tools.Enabled)
	integer("FLUXA_TOOLS_MAX_ITERATIONS", &c.Tools.MaxIterations)
	integer("FLUXA_TOOLS_TIMEOUT", &c.Tools.Timeout)
	list("FLUXA_TOOLS_ALLOWED_TOOLS", &c.Tools.AllowedTools)

	str("FLUXA_LOG_LEVEL", &c.Logging.Level)
	str("FLUXA_LOG_FORMAT", &c.Logging.Format)
	str("FLUXA_LOG_FILE_PATH", &c.Logging.FilePath)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid environment override: %w", err)
	}
	return nil
}

// ToolAllowed reports whether a tool may run under this configuration
func (c ToolsConfig) ToolAllowed(name string) bool {
	if !c.Enabled {
		return false
	}
	if len(c.AllowedTools) == 0 {
		return true
	}
	for _, allowed := range c.AllowedTools {
		if allowed == name {
			return true
		}
	}
	return false
}

// SaveConfig saves configuration to file
func SaveConfig(configPath string, config *Config) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands ~ and relative paths
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err == nil {
		return absPath
	}

	return path
}

// GetConfigPath returns the default config path
func GetConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "./config/fluxa.json"
	}

	return filepath.Join(configDir, "fluxa", "config.json")
}

// EnsureDefaultConfig creates a default config file if it doesn't exist
func EnsureDefaultConfig() (string, error) {
	configPath := GetConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return configPath, nil
	}

	if err := SaveConfig(configPath, DefaultConfig()); err != nil {
		return "", err
	}

	return configPath, nil
}
