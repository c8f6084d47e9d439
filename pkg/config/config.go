// Package config holds the typed configuration for both binaries and the
// validation rules applied after loading, using a viper.Unmarshal +
// Validate shape.
package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthConfig is the Bridge's token-mode authentication configuration.
type AuthConfig struct {
	Enabled             bool   `mapstructure:"enabled"`
	Secret              string `mapstructure:"secret"`
	TokenExpiryHours    uint32 `mapstructure:"tokenExpiryHours"`
	CodeExpiryMinutes   uint32 `mapstructure:"codeExpiryMinutes"`
	MaxTokensPerAgent   uint32 `mapstructure:"maxTokensPerAgent"`
}

// TokenTTL returns AuthConfig.TokenExpiryHours as a time.Duration.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenExpiryHours) * time.Hour
}

// CodeTTL returns AuthConfig.CodeExpiryMinutes as a time.Duration.
func (a AuthConfig) CodeTTL() time.Duration {
	return time.Duration(a.CodeExpiryMinutes) * time.Minute
}

// BridgeConfig is the Bridge binary's configuration.
type BridgeConfig struct {
	Port   uint16 `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
	Debug  bool   `mapstructure:"debug"`
	Domain string `mapstructure:"domain"`

	Auth AuthConfig `mapstructure:"auth"`

	// AllowAnyAgentFallback enables the lenient PLAYER routing fallback
	// ("any first agent") that breaks tenant isolation when multiple
	// agents share a bridge. Off by default; see DESIGN.md open question 2.
	AllowAnyAgentFallback bool `mapstructure:"allowAnyAgentFallback"`
}

// AgentConfig is the Agent binary's configuration.
type AgentConfig struct {
	BridgeHost        string `mapstructure:"bridgeHost"`
	BridgeControlPort uint16 `mapstructure:"bridgeControlPort"`
	LocalHost         string `mapstructure:"localHost"`
	LocalPort         uint16 `mapstructure:"localPort"`
	Secret            string `mapstructure:"secret"`
	Subdomain         string `mapstructure:"subdomain"`
	Debug             bool   `mapstructure:"debug"`
}

// DefaultBridgeConfig returns a BridgeConfig with reasonable defaults
// applied, to be overridden by the loaded file/env before validation.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Port: 25565,
		Auth: AuthConfig{
			TokenExpiryHours:  24,
			CodeExpiryMinutes: 30,
			MaxTokensPerAgent: 5,
		},
	}
}

// ValidateBridge rejects configurations that cannot possibly run.
func ValidateBridge(cfg *BridgeConfig) error {
	if cfg.Port == 0 {
		return fmt.Errorf("config: port must be set")
	}
	if !cfg.Auth.Enabled && cfg.Secret == "" {
		return fmt.Errorf("config: shared-secret mode requires a non-empty secret")
	}
	if cfg.Auth.Enabled && cfg.Auth.MaxTokensPerAgent == 0 {
		return fmt.Errorf("config: auth.maxTokensPerAgent must be > 0")
	}
	if cfg.Domain != "" && strings.HasPrefix(cfg.Domain, ".") {
		return fmt.Errorf("config: domain must not start with a dot")
	}
	return nil
}

// ValidateAgent rejects configurations that cannot possibly run.
func ValidateAgent(cfg *AgentConfig) error {
	if cfg.BridgeHost == "" {
		return fmt.Errorf("config: bridgeHost must be set")
	}
	if cfg.BridgeControlPort == 0 {
		return fmt.Errorf("config: bridgeControlPort must be set")
	}
	if cfg.LocalHost == "" {
		return fmt.Errorf("config: localHost must be set")
	}
	if cfg.LocalPort == 0 {
		return fmt.Errorf("config: localPort must be set")
	}
	if cfg.Secret == "" {
		return fmt.Errorf("config: secret (credential) must be set")
	}
	return nil
}
