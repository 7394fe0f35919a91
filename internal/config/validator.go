package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a listen port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// ValidateSession validates session liveness settings. The TTL must leave
// room for at least one heartbeat plus jitter, and for at least one sweep
// tick, or every session would expire before it could be kept alive.
func (v *Validator) ValidateSession(session SessionConfig, heartbeatSeconds int) error {
	if session.TTLSeconds <= 0 {
		return fmt.Errorf("session ttl_seconds must be positive, got %d", session.TTLSeconds)
	}
	if session.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("session sweep_interval_seconds must be positive, got %d", session.SweepIntervalSeconds)
	}
	if heartbeatSeconds > 0 && session.TTLSeconds <= heartbeatSeconds {
		return fmt.Errorf("session ttl_seconds (%d) must be greater than the agent heartbeat interval (%d)",
			session.TTLSeconds, heartbeatSeconds)
	}
	if session.TTLSeconds <= session.SweepIntervalSeconds {
		return fmt.Errorf("session ttl_seconds (%d) must be greater than sweep_interval_seconds (%d)",
			session.TTLSeconds, session.SweepIntervalSeconds)
	}
	return nil
}

// ValidateAgentURL validates the agent's hub endpoint URL
func (v *Validator) ValidateAgentURL(url string) error {
	if url == "" {
		return fmt.Errorf("agent url cannot be empty")
	}
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return fmt.Errorf("agent url must use ws:// or wss:// scheme")
	}
	return nil
}

// ValidateLogLevel validates a log level string
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// ValidateConfig validates the full configuration
func (v *Validator) ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		return err
	}
	if err := v.ValidateSession(cfg.Session, cfg.Agent.HeartbeatSeconds); err != nil {
		return err
	}
	if err := v.ValidateAgentURL(cfg.Agent.URL); err != nil {
		return err
	}
	if cfg.Logging.Level != "" {
		if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
			return err
		}
	}

	return nil
}
