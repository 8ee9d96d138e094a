package core

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator"
	"github.com/jo-hoe/gopicture/internal/picture"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort           = 8080
	defaultMaxUploadBytes = 10 << 20
)

type Database struct {
	Type             string `yaml:"type" validate:"required,oneof=sqlite redis memory"`
	ConnectionString string `yaml:"connectionString"`
}

type ServiceConfig struct {
	Port            int      `yaml:"port" validate:"min=0,max=65535"`
	APIKey          string   `yaml:"apiKey" validate:"required"`
	LogLevel        string   `yaml:"logLevel" validate:"omitempty,oneof=debug info warn error"`
	MaxUploadBytes  int64    `yaml:"maxUploadBytes" validate:"min=0"`
	MaxUploadPixels int64    `yaml:"maxUploadPixels" validate:"min=0"`
	Database        Database `yaml:"database"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

// Validate checks the configuration against its struct tags
func (c *ServiceConfig) Validate() error {
	return validator.New().Struct(c)
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info
func (c *ServiceConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.MaxUploadPixels == 0 {
		c.MaxUploadPixels = picture.DefaultMaxPixels
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "pictures.db"
	}
}
