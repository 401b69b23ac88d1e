package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
)

// Config is the configuration file of the command
type Config struct {
	Endpoint  string `json:"endpoint,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
	Namespace string `json:"ns,omitempty"`
	Database  string `json:"db,omitempty"`
	Auth      string `json:"auth,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`
}

// DefaultConfig returns the configuration used when
// nothing else is given
func DefaultConfig() Config {
	return Config{
		Endpoint: "mem://",
		Auth:     "owner",
		LogLevel: "warn",
	}
}

// Merge returns config with every non-empty field of
// other replacing the one in config
func (config Config) Merge(other Config) Config {
	if other.Endpoint != "" {
		config.Endpoint = other.Endpoint
	}

	if other.NodeID != "" {
		config.NodeID = other.NodeID
	}

	if other.Namespace != "" {
		config.Namespace = other.Namespace
	}

	if other.Database != "" {
		config.Database = other.Database
	}

	if other.Auth != "" {
		config.Auth = other.Auth
	}

	if other.LogLevel != "" {
		config.LogLevel = other.LogLevel
	}

	return config
}

// LoadConfig reads a JSON configuration file
func LoadConfig(path string) (Config, error) {
	var config Config

	raw, err := ioutil.ReadFile(path)

	if err != nil {
		return Config{}, fmt.Errorf("could not read config: %w", err)
	}

	if err := json.Unmarshal(raw, &config); err != nil {
		return Config{}, fmt.Errorf("could not parse config %s: %w", path, err)
	}

	return config, nil
}
