package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/chronoslabs/chronos/internal/replay"
	"github.com/chronoslabs/chronos/internal/transport"
)

// Config is the process configuration, loaded from an optional YAML file
// and overridable through the environment.
type Config struct {
	Transport string `yaml:"transport"` // "mqtt" or "nats"

	Broker struct {
		Host             string `yaml:"host"`
		Port             int    `yaml:"port"`
		KeepaliveSeconds int    `yaml:"keepalive_seconds"`
	} `yaml:"broker"`

	Replay struct {
		BaseURL string `yaml:"base_url"`
	} `yaml:"replay"`

	Gateway struct {
		Addr string `yaml:"addr"`
	} `yaml:"gateway"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.Transport = "mqtt"
	cfg.Broker.Host = "localhost"
	cfg.Broker.Port = 1883
	cfg.Broker.KeepaliveSeconds = 60
	cfg.Replay.BaseURL = replay.DefaultBaseURL
	cfg.Gateway.Addr = ":8090"
	return cfg
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.Transport = getEnv("CHRONOS_TRANSPORT", cfg.Transport)
	cfg.Broker.Host = getEnv("CHRONOS_BROKER_HOST", cfg.Broker.Host)
	cfg.Broker.Port = getEnvAsInt("CHRONOS_BROKER_PORT", cfg.Broker.Port)
	cfg.Broker.KeepaliveSeconds = getEnvAsInt("CHRONOS_BROKER_KEEPALIVE", cfg.Broker.KeepaliveSeconds)
	cfg.Replay.BaseURL = getEnv("CHRONOS_REPLAY_URL", cfg.Replay.BaseURL)
	cfg.Gateway.Addr = getEnv("CHRONOS_GATEWAY_ADDR", cfg.Gateway.Addr)

	return cfg, nil
}

func (c Config) brokerConfig() transport.Config {
	return transport.Config{
		Host:             c.Broker.Host,
		Port:             c.Broker.Port,
		KeepaliveSeconds: c.Broker.KeepaliveSeconds,
	}
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
