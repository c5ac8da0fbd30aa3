package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
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
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) ValidationErrors {
	v.errors = nil

	v.validateService(config)
	v.validatePoll(config)
	v.validateCache(config)
	v.validateResilience(config)
	v.validateLogging(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) validateURL(path, raw string, required bool) {
	if raw == "" {
		if required {
			v.addError(path, "URL is required")
		}
		return
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.addError(path, fmt.Sprintf("invalid URL: %s", raw))
	}
}

func (v *Validator) validateService(config *Config) {
	v.validateURL("service.pds_url", config.Service.PDSURL, true)
	v.validateURL("service.appview_url", config.Service.AppViewURL, false)
	if config.Service.Timeout < 0 {
		v.addError("service.timeout", "timeout must be non-negative")
	}
}

func (v *Validator) validatePoll(config *Config) {
	if config.Poll.MaxAttempts < 0 {
		v.addError("poll.max_attempts", "max_attempts must be non-negative")
	}
	if config.Poll.Delay < 0 {
		v.addError("poll.delay", "delay must be non-negative")
	}
}

func (v *Validator) validateCache(config *Config) {
	switch config.Cache.Backend {
	case "", CacheNone, CacheMemory:
	case CacheRedis:
		if config.Cache.Redis.Address == "" {
			v.addError("cache.redis.address", "address is required for the redis backend")
		}
	case CacheBadger:
		if config.Cache.Badger.Dir == "" {
			v.addError("cache.badger.dir", "dir is required for the badger backend")
		}
	default:
		v.addError("cache.backend", fmt.Sprintf("unknown backend: %s", config.Cache.Backend))
	}
	if config.Cache.TTL < 0 {
		v.addError("cache.ttl", "ttl must be non-negative")
	}
	if config.Cache.MaxSize < 0 {
		v.addError("cache.max_size", "max_size must be non-negative")
	}
}

func (v *Validator) validateResilience(config *Config) {
	if config.Resilience.Retry.MaxAttempts < 0 {
		v.addError("resilience.retry.max_attempts", "max_attempts must be non-negative")
	}
	if config.Resilience.CircuitBreaker.Threshold < 0 {
		v.addError("resilience.circuit_breaker.threshold", "threshold must be non-negative")
	}
	if config.Resilience.MaxConcurrent < 0 {
		v.addError("resilience.max_concurrent", "max_concurrent must be non-negative")
	}
}

func (v *Validator) validateLogging(config *Config) {
	switch config.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		v.addError("logging.level", fmt.Sprintf("invalid level: %s", config.Logging.Level))
	}
	switch config.Logging.Format {
	case "", "console", "json":
	default:
		v.addError("logging.format", fmt.Sprintf("invalid format: %s", config.Logging.Format))
	}
}
