package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateDiagnosis(&cfg.Diagnosis)
	v.validateBackends(cfg.Backends)
	v.validateSpecialists(cfg)
	v.validatePaths(cfg)
	v.validateWatch(&cfg.Watch)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}

	if cfg.File != "" && !isValidPath(cfg.File) {
		v.addError("log.file", cfg.File, "invalid file path")
	}
}

func (v *Validator) validateDiagnosis(cfg *DiagnosisConfig) {
	if cfg.Workers < 0 {
		v.addError("diagnosis.workers", cfg.Workers, "must be zero (one per specialist) or positive")
	}

	v.validatePositiveDuration("diagnosis.task_timeout", cfg.TaskTimeout)
	v.validatePositiveDuration("diagnosis.synthesis_timeout", cfg.SynthesisTimeout)
	if d, err := ParseDuration(cfg.StageTimeout); err != nil {
		v.addError("diagnosis.stage_timeout", cfg.StageTimeout, "invalid duration format")
	} else if d < 0 {
		v.addError("diagnosis.stage_timeout", cfg.StageTimeout, "must not be negative")
	}

	if cfg.MaxRetries < 0 || cfg.MaxRetries > 10 {
		v.addError("diagnosis.max_retries", cfg.MaxRetries, "must be between 0 and 10")
	}
	if cfg.MaxDocumentBytes <= 0 {
		v.addError("diagnosis.max_document_bytes", cfg.MaxDocumentBytes, "must be positive")
	}
}

func (v *Validator) validatePositiveDuration(field, value string) {
	d, err := ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
	}
}

func (v *Validator) validateBackends(backends map[string]BackendConfig) {
	if len(backends) == 0 {
		v.addError("backends", nil, "at least one backend is required")
		return
	}

	for name, b := range backends {
		prefix := "backends." + name
		switch b.Type {
		case BackendHTTP:
			if strings.TrimSpace(b.BaseURL) == "" {
				v.addError(prefix+".base_url", b.BaseURL, "base_url required for http backends")
			}
			for _, raw := range SplitURLs(b.BaseURL) {
				if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
					v.addError(prefix+".base_url", raw, "must be an absolute URL")
				}
			}
			if b.Model == "" {
				v.addError(prefix+".model", b.Model, "model required for http backends")
			}
		case BackendCLI:
			if strings.TrimSpace(b.Path) == "" {
				v.addError(prefix+".path", b.Path, "path required for cli backends")
			}
		default:
			v.addError(prefix+".type", b.Type, "must be one of: http, cli")
		}

		if b.Timeout != "" {
			v.validatePositiveDuration(prefix+".timeout", b.Timeout)
		}
		if b.RateLimitRPM < 0 {
			v.addError(prefix+".rate_limit_rpm", b.RateLimitRPM, "must not be negative")
		}
		if b.MaxTokens < 0 || b.MaxTokens > 200000 {
			v.addError(prefix+".max_tokens", b.MaxTokens, "must be between 0 and 200000")
		}
		if b.Temperature < 0 || b.Temperature > 2 {
			v.addError(prefix+".temperature", b.Temperature, "must be between 0 and 2")
		}
	}
}

func (v *Validator) validateSpecialists(cfg *Config) {
	if len(cfg.Specialists) == 0 {
		v.addError("specialists", nil, "at least one specialist is required")
	}

	seen := make(map[string]bool, len(cfg.Specialists))
	for i, s := range cfg.Specialists {
		prefix := fmt.Sprintf("specialists[%d]", i)
		v.validateSpecialist(prefix, s, cfg.Backends)
		if s.Name == "" {
			continue
		}
		if seen[s.Name] {
			v.addError(prefix+".name", s.Name, "duplicate specialist name")
		}
		seen[s.Name] = true
	}

	v.validateSpecialist("synthesis", cfg.Synthesis, cfg.Backends)
	if seen[cfg.Synthesis.Name] {
		v.addError("synthesis.name", cfg.Synthesis.Name, "must differ from every specialist name")
	}
}

func (v *Validator) validateSpecialist(prefix string, s SpecialistConfig, backends map[string]BackendConfig) {
	if strings.TrimSpace(s.Name) == "" {
		v.addError(prefix+".name", s.Name, "name required")
	}
	if s.Prompt == "" {
		v.addError(prefix+".prompt", s.Prompt, "prompt required")
	}
	if _, ok := backends[s.Backend]; !ok {
		v.addError(prefix+".backend", s.Backend, "unknown backend")
	}
}

func (v *Validator) validatePaths(cfg *Config) {
	if cfg.State.Path == "" {
		v.addError("state.path", cfg.State.Path, "path required")
	} else if !isValidPath(cfg.State.Path) {
		v.addError("state.path", cfg.State.Path, "invalid file path")
	}

	if cfg.Report.Dir == "" {
		v.addError("report.dir", cfg.Report.Dir, "directory required")
	}
	if cfg.Report.FileName == "" || strings.ContainsAny(cfg.Report.FileName, `/\`) {
		v.addError("report.file_name", cfg.Report.FileName, "must be a plain file name")
	}

	if cfg.Server.Addr == "" {
		v.addError("server.addr", cfg.Server.Addr, "address required")
	}
}

func (v *Validator) validateWatch(cfg *WatchConfig) {
	for _, ext := range cfg.Extensions {
		if !strings.HasPrefix(ext, ".") {
			v.addError("watch.extensions", ext, "extensions must start with a dot")
		}
	}
}

// SplitURLs splits a comma-separated base_url value.
func SplitURLs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	v := NewValidator()
	return v.Validate(cfg)
}
