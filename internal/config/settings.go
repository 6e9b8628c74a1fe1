// Package config loads and validates Prism runtime settings.
package config

import (
	"fmt"
)

// ConfigError indicates settings that were rejected at load time.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Message
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// Settings is the root configuration for the runtime.
type Settings struct {
	LLM       LLMSettings    `yaml:"llm" json:"llm"`
	Memory    MemorySettings `yaml:"memory" json:"memory"`
	Agent     AgentSettings  `yaml:"agent" json:"agent"`
	MCP       MCPSettings    `yaml:"mcp" json:"mcp"`
	LogLevel  string         `yaml:"logLevel" json:"logLevel"`
	LogFormat string         `yaml:"logFormat" json:"logFormat"`
	DataDir   string         `yaml:"dataDir" json:"dataDir"`
}

// LLMSettings configures model providers and role/tier resolution.
type LLMSettings struct {
	Providers map[string]ProviderSettings `yaml:"providers" json:"providers"`

	// Default is the model spec used when no role- or tier-specific
	// spec matches, e.g. "openai/gpt-4o".
	Default ModelSpec `yaml:"default" json:"default"`

	// Tiers and Roles map selector names to model specs. Both shapes are
	// accepted; Roles wins when a name appears in both.
	Tiers map[string]ModelSpec `yaml:"tiers" json:"tiers"`
	Roles map[string]ModelSpec `yaml:"roles" json:"roles"`

	// MaxConcurrentCalls bounds inflight model calls globally.
	MaxConcurrentCalls int `yaml:"maxConcurrentCalls" json:"maxConcurrentCalls"`

	// Timeout is the per-call timeout in seconds.
	Timeout int `yaml:"timeout" json:"timeout"`

	Codex   CodexSettings   `yaml:"codex" json:"codex"`
	Copilot CopilotSettings `yaml:"copilot" json:"copilot"`
}

// ProviderSettings configures one LLM provider endpoint.
type ProviderSettings struct {
	APIKey  string `yaml:"apiKey" json:"apiKey"`
	BaseURL string `yaml:"baseURL" json:"baseURL"`

	// Type selects the wire protocol ("openai", "anthropic"). Well-known
	// provider names infer their type; custom names must set it explicitly.
	Type string `yaml:"type" json:"type"`
}

// CodexSettings configures the Codex OAuth-backed provider.
type CodexSettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	BaseURL string `yaml:"baseURL" json:"baseURL"`
	Model   string `yaml:"model" json:"model"`
}

// CopilotSettings configures the Copilot token-backed provider.
type CopilotSettings struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// MemorySettings configures the memory subsystem paths.
type MemorySettings struct {
	DBPath       string `yaml:"dbPath" json:"dbPath"`
	VectorDBPath string `yaml:"vectorDbPath" json:"vectorDbPath"`
}

// AgentSettings bounds the cognitive runtime.
type AgentSettings struct {
	MaxActiveTasks         int `yaml:"maxActiveTasks" json:"maxActiveTasks"`
	MaxConcurrentTools     int `yaml:"maxConcurrentTools" json:"maxConcurrentTools"`
	MaxCognitiveIterations int `yaml:"maxCognitiveIterations" json:"maxCognitiveIterations"`

	// HeartbeatInterval is in seconds.
	HeartbeatInterval int `yaml:"heartbeatInterval" json:"heartbeatInterval"`

	// TaskTimeout bounds each tool execution, in seconds.
	TaskTimeout int `yaml:"taskTimeout" json:"taskTimeout"`
}

// MCPSettings configures external MCP tool servers.
type MCPSettings struct {
	Servers map[string]MCPServerSettings `yaml:"servers" json:"servers"`
}

// MCPServerSettings describes how to launch one MCP server over stdio.
type MCPServerSettings struct {
	Command string            `yaml:"command" json:"command"`
	Args    []string          `yaml:"args" json:"args"`
	Env     map[string]string `yaml:"env" json:"env"`
}

// Default returns settings with all documented defaults applied.
func Default() *Settings {
	return &Settings{
		LLM: LLMSettings{
			Providers:          map[string]ProviderSettings{},
			Tiers:              map[string]ModelSpec{},
			Roles:              map[string]ModelSpec{},
			MaxConcurrentCalls: 3,
			Timeout:            120,
		},
		Agent: AgentSettings{
			MaxActiveTasks:         5,
			MaxConcurrentTools:     3,
			MaxCognitiveIterations: 10,
			HeartbeatInterval:      60,
			TaskTimeout:            120,
		},
		LogLevel:  "info",
		LogFormat: "json",
		DataDir:   "data",
	}
}

var validLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true,
	"error": true, "fatal": true, "silent": true,
}

// Validate rejects out-of-range or unknown values.
func (s *Settings) Validate() error {
	if !validLogLevels[s.LogLevel] {
		return &ConfigError{Field: "logLevel", Message: fmt.Sprintf("unknown level %q", s.LogLevel)}
	}
	if s.LogFormat != "json" && s.LogFormat != "line" {
		return &ConfigError{Field: "logFormat", Message: fmt.Sprintf("unknown format %q", s.LogFormat)}
	}
	if s.Agent.MaxActiveTasks <= 0 {
		return &ConfigError{Field: "agent.maxActiveTasks", Message: "must be positive"}
	}
	if s.Agent.MaxConcurrentTools <= 0 {
		return &ConfigError{Field: "agent.maxConcurrentTools", Message: "must be positive"}
	}
	if s.Agent.MaxCognitiveIterations <= 0 {
		return &ConfigError{Field: "agent.maxCognitiveIterations", Message: "must be positive"}
	}
	if s.Agent.TaskTimeout <= 0 {
		return &ConfigError{Field: "agent.taskTimeout", Message: "must be positive"}
	}
	if s.LLM.MaxConcurrentCalls <= 0 {
		return &ConfigError{Field: "llm.maxConcurrentCalls", Message: "must be positive"}
	}
	return nil
}
