package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main iAsted configuration
type Config struct {
	// Assistant behavior
	Assistant AssistantConfig `json:"assistant" mapstructure:"assistant"`

	// Anonymous visitor quota
	Quota QuotaConfig `json:"quota" mapstructure:"quota"`

	// Gateway server
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Realtime provider
	Realtime RealtimeConfig `json:"realtime" mapstructure:"realtime"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Optional JSON route table, watched for changes when set
	RoutesPath string `json:"routes_path" mapstructure:"routes_path"`
}

// AssistantConfig holds voice assistant behavior settings
type AssistantConfig struct {
	Voices              []string `json:"voices" mapstructure:"voices"`
	DefaultVoice        string   `json:"default_voice" mapstructure:"default_voice"`
	DispatchTimeout     int      `json:"dispatch_timeout" mapstructure:"dispatch_timeout"` // seconds
	MaxFormSteps        int      `json:"max_form_steps" mapstructure:"max_form_steps"`
	MonitoredFormRoutes []string `json:"monitored_form_routes" mapstructure:"monitored_form_routes"`
	PromptTemplate      string   `json:"prompt_template" mapstructure:"prompt_template"`
	// OverrideRoles lists the roles entitled to the security override tool.
	OverrideRoles []string `json:"override_roles" mapstructure:"override_roles"`
}

// QuotaConfig holds the anonymous question allowance
type QuotaConfig struct {
	AnonymousQuestions int `json:"anonymous_questions" mapstructure:"anonymous_questions"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port          int    `json:"port" mapstructure:"port"`
	Host          string `json:"host" mapstructure:"host"`
	SharedSecret  string `json:"shared_secret" mapstructure:"shared_secret"`
	IdleMinutes   int    `json:"idle_minutes" mapstructure:"idle_minutes"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// RealtimeConfig holds realtime provider configuration
type RealtimeConfig struct {
	APIKey string `json:"api_key" mapstructure:"api_key"`
	Model  string `json:"model" mapstructure:"model"`
	// BaseURL overrides the REST endpoint used for credential minting.
	BaseURL string `json:"base_url" mapstructure:"base_url"`
	// Endpoint overrides the realtime websocket endpoint.
	Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	// MintCredentials enables ephemeral client credential minting.
	MintCredentials bool `json:"mint_credentials" mapstructure:"mint_credentials"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Assistant: AssistantConfig{
			Voices:          []string{"coral", "sage", "shimmer", "ash", "echo", "verse"},
			DefaultVoice:    "coral",
			DispatchTimeout: 30,
			MaxFormSteps:    6,
			MonitoredFormRoutes: []string{
				"/foreigner/registration",
				"/cv-builder",
				"/consular/request",
			},
			OverrideRoles: []string{"agent", "admin"},
		},
		Quota: QuotaConfig{
			AnonymousQuestions: 3,
		},
		Gateway: GatewayConfig{
			Port:          8080,
			Host:          "0.0.0.0",
			SharedSecret:  "",
			IdleMinutes:   30,
			SweepSchedule: "@every 5m",
		},
		Realtime: RealtimeConfig{
			Model:           "gpt-4o-realtime-preview",
			MintCredentials: true,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Realtime.APIKey == "" {
		return fmt.Errorf("realtime api_key is required")
	}
	if c.Realtime.Model == "" {
		return fmt.Errorf("realtime model is required")
	}

	if c.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway shared_secret is required")
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	if len(c.Assistant.Voices) == 0 {
		return fmt.Errorf("at least one assistant voice must be configured")
	}
	if c.Assistant.DefaultVoice != "" {
		found := false
		for _, v := range c.Assistant.Voices {
			if v == c.Assistant.DefaultVoice {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("default voice %s is not in the configured voice set", c.Assistant.DefaultVoice)
		}
	}
	if c.Assistant.DispatchTimeout <= 0 {
		return fmt.Errorf("assistant dispatch_timeout must be positive")
	}
	if c.Assistant.MaxFormSteps <= 0 {
		return fmt.Errorf("assistant max_form_steps must be positive")
	}

	if c.Quota.AnonymousQuestions < 0 {
		return fmt.Errorf("quota anonymous_questions cannot be negative")
	}

	return nil
}
