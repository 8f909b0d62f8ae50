package logging

import (
	"regexp"
	"strings"
	"sync"
)

// Sanitizer redacts credentials from log output. Backend API keys from the
// configuration can be registered literally in addition to the known patterns.
type Sanitizer struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
	redacted string
}

// NewSanitizer creates a sanitizer with default patterns.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		patterns: defaultPatterns(),
		redacted: "[REDACTED]",
	}
}

func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Anthropic (before OpenAI: both start with sk-)
		`sk-ant-[a-zA-Z0-9-]{40,}`,
		// OpenAI and OpenAI-compatible gateways
		`sk-[A-Za-z0-9_-]{20,}`,
		// Google AI
		`AIza[a-zA-Z0-9_-]{35}`,
		// Hugging Face
		`hf_[A-Za-z0-9]{30,}`,
		// Generic Bearer tokens
		`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`,
		// Generic API keys
		`(?i)api[_-]?key["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		// Generic secrets
		`(?i)secret["'\s:=]+[a-zA-Z0-9_-]{20,}`,
		// Generic tokens
		`(?i)token["'\s:=]+[a-zA-Z0-9_-]{20,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Sanitize redacts sensitive information from a string.
func (s *Sanitizer) Sanitize(input string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := input
	for _, lit := range s.literals {
		result = strings.ReplaceAll(result, lit, s.redacted)
	}
	for _, pattern := range s.patterns {
		result = pattern.ReplaceAllString(result, s.redacted)
	}
	return result
}

// AddPattern adds a custom pattern.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.patterns = append(s.patterns, re)
	s.mu.Unlock()
	return nil
}

// AddSecret registers a literal value, such as a configured API key, to redact.
// Values shorter than 8 characters are ignored to avoid redacting ordinary words.
func (s *Sanitizer) AddSecret(value string) {
	value = strings.TrimSpace(value)
	if len(value) < 8 {
		return
	}
	s.mu.Lock()
	s.literals = append(s.literals, value)
	s.mu.Unlock()
}
