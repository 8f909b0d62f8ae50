package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Default locations.
const (
	ProjectDir     = ".quorum-dx"
	ConfigFileName = "config.yaml"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		v:         viper.New(),
		envPrefix: "QUORUM_DX",
	}
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "QUORUM_DX",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (QUORUM_DX_*)
// 3. Project config (.quorum-dx/config.yaml)
// 4. User config (~/.config/quorum-dx/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName("config")
		l.v.SetConfigType("yaml")

		// First found wins
		l.v.AddConfigPath(ProjectDir)
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "quorum-dx"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Nested maps would merge with defaults, so the default backend only
	// applies when none is configured.
	if len(cfg.Backends) == 0 {
		cfg.Backends = DefaultBackends()
	}

	// The key may come from the environment instead of the file.
	for name, b := range cfg.Backends {
		if b.APIKey == "" {
			b.APIKey = os.Getenv(apiKeyEnv(l.envPrefix, name))
			cfg.Backends[name] = b
		}
	}

	return &cfg, nil
}

// apiKeyEnv returns the variable consulted for a backend without a key,
// e.g. QUORUM_DX_OPENAI_API_KEY.
func apiKeyEnv(prefix, backend string) string {
	name := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(backend))
	return prefix + "_" + name + "_API_KEY"
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")
	l.v.SetDefault("log.file", "")

	l.v.SetDefault("diagnosis.workers", 0)
	l.v.SetDefault("diagnosis.task_timeout", "5m")
	l.v.SetDefault("diagnosis.stage_timeout", "0")
	l.v.SetDefault("diagnosis.synthesis_timeout", "10m")
	l.v.SetDefault("diagnosis.max_retries", 2)
	l.v.SetDefault("diagnosis.max_document_bytes", 100000)

	l.v.SetDefault("specialists", []interface{}{
		map[string]interface{}{"name": "Cardiologist", "prompt": "cardiologist", "backend": "openai"},
		map[string]interface{}{"name": "Psychologist", "prompt": "psychologist", "backend": "openai"},
		map[string]interface{}{"name": "Pulmonologist", "prompt": "pulmonologist", "backend": "openai"},
	})
	l.v.SetDefault("synthesis.name", "MultidisciplinaryTeam")
	l.v.SetDefault("synthesis.prompt", "multidisciplinary-team")
	l.v.SetDefault("synthesis.backend", "openai")

	l.v.SetDefault("state.path", filepath.Join(ProjectDir, "state", "runs.db"))
	l.v.SetDefault("report.dir", filepath.Join(ProjectDir, "results"))
	l.v.SetDefault("report.file_name", "final_diagnosis.txt")
	l.v.SetDefault("server.addr", "127.0.0.1:8080")
	l.v.SetDefault("server.cors_origins", []string{"http://localhost:*", "http://127.0.0.1:*"})
	l.v.SetDefault("watch.dir", filepath.Join(ProjectDir, "inbox"))
	l.v.SetDefault("watch.extensions", []string{".txt", ".md"})
}

// DefaultBackends returns the backend set used when none is configured.
func DefaultBackends() map[string]BackendConfig {
	return map[string]BackendConfig{
		"openai": {
			Type:         BackendHTTP,
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Timeout:      "2m",
			MaxTokens:    2048,
			Temperature:  0.2,
			RateLimitRPM: 60,
		},
	}
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// IsSet checks if a key has been set.
func (l *Loader) IsSet(key string) bool {
	return l.v.IsSet(key)
}
