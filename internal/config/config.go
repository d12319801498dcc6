package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ETERNA-earkiv/ETERNA/internal/scatter"
)

// Config holds the application configuration
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// BasePath is the primary storage root. Its parent is the data root that
	// trash paths are computed from.
	BasePath     string `yaml:"base_path"`
	TrashDir     string `yaml:"trash_dir"`
	History      bool   `yaml:"history"`
	ManifestFile string `yaml:"manifest_file"`

	// Containers maps a container name to its scatter configuration.
	// Containers not listed use the plain layout.
	Containers map[string]scatter.Config `yaml:"containers"`

	S3Endpoint  string `yaml:"s3_endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// TrashRoot is the absolute trash directory, or "" when trash is disabled.
func (c *Config) TrashRoot() string {
	if c.TrashDir == "" {
		return ""
	}
	if filepath.IsAbs(c.TrashDir) {
		return c.TrashDir
	}
	return filepath.Join(c.DataRoot(), c.TrashDir)
}

func (c *Config) DataRoot() string {
	return filepath.Dir(filepath.Clean(c.BasePath))
}

// Registry builds the scatter registry of the configured containers.
func (c *Config) Registry() (*scatter.Registry, error) {
	return scatter.NewRegistry(c.Containers)
}

// LoadConfig loads configuration from config.yaml, environment variables, or CLI flags
// Priority: CLI flags > Environment variables > config.yaml > defaults
func LoadConfig(configPath string, rootCmd *cobra.Command) (*Config, error) {
	v := viper.New()
	if err := setupViper(v, configPath, rootCmd); err != nil {
		return nil, err
	}

	containers, err := parseContainers(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:     v.GetString("log_level"),
		LogFormat:    v.GetString("log_format"),
		BasePath:     v.GetString("storage.base_path"),
		TrashDir:     v.GetString("storage.trash_dir"),
		History:      v.GetBool("storage.history"),
		ManifestFile: v.GetString("storage.manifest_file"),
		Containers:   containers,
		S3Endpoint:   v.GetString("references.s3_endpoint"),
		S3PathStyle:  v.GetBool("references.s3_path_style"),
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("storage.base_path must be set")
	}
	cfg.BasePath, err = filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	return cfg, nil
}

// setupViper configures Viper with defaults, paths, and bindings
func setupViper(v *viper.Viper, configPath string, rootCmd *cobra.Command) error {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	setDefaults(v)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if rootCmd != nil {
		flags := rootCmd.PersistentFlags()
		for key, flag := range flagBindings {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("failed to bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

var envKeyReplacer = strings.NewReplacer(".", "_")

// flagBindings maps config keys to the persistent flags that override them.
var flagBindings = map[string]string{
	"log_level":         "log-level",
	"storage.base_path": "base-path",
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("storage.trash_dir", "trash")
	v.SetDefault("storage.history", true)
	v.SetDefault("storage.manifest_file", "external_files.manifest")
	v.SetDefault("references.s3_path_style", false)
}

// parseContainers parses the per-container scatter tables.
func parseContainers(v *viper.Viper) (map[string]scatter.Config, error) {
	containers := make(map[string]scatter.Config)
	for name, value := range v.GetStringMap("containers") {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("container %s: expected a table, got %T", name, value)
		}
		containers[name] = scatter.Config{
			Method: getString(m, "scatter_method", scatter.MethodRange),
			Regex:  getString(m, "regex", ""),
			Type:   getString(m, "type", scatter.TypeDirectory),
			Rule:   getString(m, "rule", ""),
		}
	}
	return containers, nil
}

// getString safely extracts string value from map with default
func getString(m map[string]interface{}, key, defaultValue string) string {
	if value, exists := m[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}
