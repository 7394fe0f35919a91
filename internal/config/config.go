package config

import (
	"time"
)

// Config represents the main relay configuration
type Config struct {
	// Server holds hub server settings
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Session holds session lifecycle settings
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Agent holds settings for the `agent` subcommand
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds relay hub server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// SharedSecret authenticates agent registrations. Empty disables the check.
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`

	// Metrics enables the /metrics endpoint.
	Metrics bool `json:"metrics" mapstructure:"metrics"`
}

// SessionConfig holds session liveness configuration
type SessionConfig struct {
	TTLSeconds           int `json:"ttl_seconds" mapstructure:"ttl_seconds"`
	SweepIntervalSeconds int `json:"sweep_interval_seconds" mapstructure:"sweep_interval_seconds"`
}

// AgentConfig holds desktop agent client configuration
type AgentConfig struct {
	URL              string `json:"url" mapstructure:"url"`
	AgentID          string `json:"agent_id" mapstructure:"agent_id"`
	Secret           string `json:"secret" mapstructure:"secret"`
	HeartbeatSeconds int    `json:"heartbeat_seconds" mapstructure:"heartbeat_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// TTL returns the session TTL as a duration.
func (c SessionConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SweepInterval returns the sweep interval as a duration.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the heartbeat interval as a duration.
func (c AgentConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Metrics: true,
		},
		Session: SessionConfig{
			TTLSeconds:           600,
			SweepIntervalSeconds: 60,
		},
		Agent: AgentConfig{
			URL:              "ws://127.0.0.1:8080/ws/agent",
			HeartbeatSeconds: 15,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
