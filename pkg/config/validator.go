package config

import (
	"fmt"
	"net/url"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	switch c.LLM.Provider {
	case "googleai", "openai", "ollama":
	default:
		errors = append(errors, ValidationError{
			Field:   "llm.provider",
			Message: fmt.Sprintf("unknown provider %q (valid: googleai, openai, ollama)", c.LLM.Provider),
		})
	}

	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.api_key",
			Message: "API key is required for hosted providers",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid base URL",
			})
		}
	}

	// Validate archive config
	if u, err := url.Parse(c.Archive.BaseURL); err != nil || u.Scheme == "" {
		errors = append(errors, ValidationError{
			Field:   "archive.base_url",
			Message: "base_url must be an absolute URL",
		})
	}

	if c.Archive.MaxOffsetDays < 0 {
		errors = append(errors, ValidationError{
			Field:   "archive.max_offset_days",
			Message: "max_offset_days must not be negative",
		})
	}

	if c.Archive.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "archive.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if _, err := time.ParseDuration(c.Archive.Timeout); err != nil {
		errors = append(errors, ValidationError{
			Field:   "archive.timeout",
			Message: fmt.Sprintf("invalid duration: %s", c.Archive.Timeout),
		})
	}

	if c.Archive.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "archive.max_retries",
			Message: "max_retries must not be negative",
		})
	}

	// Validate cache config
	if c.Cache.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "cache.dir",
			Message: "cache directory is required",
		})
	}

	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "cache.ttl",
			Message: fmt.Sprintf("invalid duration: %s", c.Cache.TTL),
		})
	}

	return errors
}
