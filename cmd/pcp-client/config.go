package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerUrl  string `yaml:"server-url"`
	ClientType string `yaml:"client-type"`

	CACert string `yaml:"ca-cert"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`

	LogFile  string `yaml:"log-file"`
	LogLevel string `yaml:"log-level"`

	ConnectAttempts  int `yaml:"connect-attempts"`
	HeartbeatSeconds int `yaml:"heartbeat-seconds"`

	// message type this client subscribes to
	MessageType string `yaml:"message-type"`
}

func loadConfig(path string) (*Config, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := &Config{
		ClientType:      "demo",
		LogLevel:        "info",
		ConnectAttempts: 5,
	}
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if config.ServerUrl == "" {
		return nil, fmt.Errorf("config file %s does not set server-url", path)
	}

	return config, nil
}
