package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration, loaded from an optional YAML file
// with environment variable overrides.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Race struct {
		MaxParticipantsPerRace int `yaml:"max_participants_per_race"`
	} `yaml:"race"`
	Nats struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Port = "8080"
	config.Race.MaxParticipantsPerRace = 4
	return &config
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", config.Server.Port)
	config.Race.MaxParticipantsPerRace = getEnvAsInt("MAX_PARTICIPANTS_PER_RACE", config.Race.MaxParticipantsPerRace)
	config.Nats.URL = getEnv("NATS_URL", config.Nats.URL)

	return config, nil
}
