package config

import (
	"fmt"
	"sort"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Log         LogConfig                `mapstructure:"log"`
	Diagnosis   DiagnosisConfig          `mapstructure:"diagnosis"`
	Backends    map[string]BackendConfig `mapstructure:"backends"`
	Specialists []SpecialistConfig       `mapstructure:"specialists"`
	Synthesis   SpecialistConfig         `mapstructure:"synthesis"`
	State       StateConfig              `mapstructure:"state"`
	Report      ReportConfig             `mapstructure:"report"`
	Server      ServerConfig             `mapstructure:"server"`
	Watch       WatchConfig              `mapstructure:"watch"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// DiagnosisConfig configures the orchestrator. Durations use Go syntax ("5m").
// An empty or "0" stage timeout disables it.
type DiagnosisConfig struct {
	Workers          int    `mapstructure:"workers"`
	TaskTimeout      string `mapstructure:"task_timeout"`
	StageTimeout     string `mapstructure:"stage_timeout"`
	SynthesisTimeout string `mapstructure:"synthesis_timeout"`
	MaxRetries       int    `mapstructure:"max_retries"`
	MaxDocumentBytes int    `mapstructure:"max_document_bytes"`
}

// Backend types.
const (
	BackendHTTP = "http"
	BackendCLI  = "cli"
)

// BackendConfig configures a named task backend.
type BackendConfig struct {
	Type string `mapstructure:"type"`
	// BaseURL is the OpenAI-compatible endpoint. Several URLs may be given
	// comma-separated; they are tried in order.
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Timeout      string  `mapstructure:"timeout"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	RateLimitRPM int     `mapstructure:"rate_limit_rpm"`
	// Path is the command line of a cli backend.
	Path string `mapstructure:"path"`
}

// SpecialistConfig binds a task identity to a prompt template and a backend.
type SpecialistConfig struct {
	Name    string `mapstructure:"name"`
	Prompt  string `mapstructure:"prompt"`
	Backend string `mapstructure:"backend"`
}

// StateConfig configures run persistence.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// ReportConfig configures where final reports are written.
type ReportConfig struct {
	Dir      string `mapstructure:"dir"`
	FileName string `mapstructure:"file_name"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Dir        string   `mapstructure:"dir"`
	Extensions []string `mapstructure:"extensions"`
}

// ParseDuration parses a configured duration. Empty means zero.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

// TaskTimeoutDuration returns the parsed per-task timeout.
func (c DiagnosisConfig) TaskTimeoutDuration() time.Duration {
	d, _ := ParseDuration(c.TaskTimeout)
	return d
}

// StageTimeoutDuration returns the parsed fan-out timeout.
func (c DiagnosisConfig) StageTimeoutDuration() time.Duration {
	d, _ := ParseDuration(c.StageTimeout)
	return d
}

// SynthesisTimeoutDuration returns the parsed synthesis timeout.
func (c DiagnosisConfig) SynthesisTimeoutDuration() time.Duration {
	d, _ := ParseDuration(c.SynthesisTimeout)
	return d
}

// TimeoutDuration returns the parsed backend call timeout.
func (c BackendConfig) TimeoutDuration() time.Duration {
	d, _ := ParseDuration(c.Timeout)
	return d
}

// BackendNames returns configured backend names, sorted.
func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SpecialistNames returns specialist names in declaration order.
func (c *Config) SpecialistNames() []string {
	names := make([]string, len(c.Specialists))
	for i, s := range c.Specialists {
		names[i] = s.Name
	}
	return names
}

// OnlySpecialists returns a copy of c restricted to the named specialists,
// keeping declaration order. Unknown names are returned separately.
func (c *Config) OnlySpecialists(names []string) (*Config, []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	out := *c
	out.Specialists = nil
	for _, s := range c.Specialists {
		if want[s.Name] {
			out.Specialists = append(out.Specialists, s)
			delete(want, s.Name)
		}
	}

	var unknown []string
	for _, n := range names {
		if want[n] {
			unknown = append(unknown, n)
			delete(want, n)
		}
	}
	return &out, unknown
}
