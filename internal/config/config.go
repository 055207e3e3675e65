package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath    string `yaml:"database_path"`
	Port            string `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	Timezone        string `yaml:"timezone"`
	GenerationBound int    `yaml:"generation_bound"`
	OfficeName      string `yaml:"office_name"`
}

func defaults() Config {
	return Config{
		DatabasePath:    "./data/office-hub.db",
		Port:            "8080",
		LogLevel:        "info",
		Timezone:        "UTC",
		GenerationBound: 200,
		OfficeName:      "Office",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE, then environment variables. A .env file in the working
// directory is read into the environment first when present.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading .env: %w", err)
	}

	config := defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &config); err != nil {
			return Config{}, err
		}
	}

	config.DatabasePath = envOrDefault("DATABASE_PATH", config.DatabasePath)
	config.Port = envOrDefault("PORT", config.Port)
	config.LogLevel = envOrDefault("LOG_LEVEL", config.LogLevel)
	config.Timezone = envOrDefault("TIMEZONE", config.Timezone)
	config.OfficeName = envOrDefault("OFFICE_NAME", config.OfficeName)
	if value := os.Getenv("GENERATION_BOUND"); value != "" {
		bound, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("GENERATION_BOUND must be an integer: %w", err)
		}
		config.GenerationBound = bound
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (config Config) validate() error {
	if config.GenerationBound <= 0 {
		return fmt.Errorf("generation bound must be positive, got %d", config.GenerationBound)
	}
	if _, err := time.LoadLocation(config.Timezone); err != nil {
		return fmt.Errorf("loading timezone %q: %w", config.Timezone, err)
	}
	return nil
}

// Location is the zone whose calendar date counts as today.
func (config Config) Location() *time.Location {
	location, err := time.LoadLocation(config.Timezone)
	if err != nil {
		return time.UTC
	}
	return location
}

func envOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
