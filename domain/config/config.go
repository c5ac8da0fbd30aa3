// Package config provides the configuration model of the threadgate tools.
package config

import "time"

// Config is the complete configuration.
type Config struct {
	// Service configures the backend the policies are stored on.
	Service ServiceConfig `json:"service" yaml:"service"`
	// Poll configures reconciliation against the read path.
	Poll PollConfig `json:"poll,omitempty" yaml:"poll,omitempty"`
	// Cache configures the view cache.
	Cache CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
	// Resilience configures the transport's retry and circuit breaker.
	Resilience ResilienceConfig `json:"resilience,omitempty" yaml:"resilience,omitempty"`
	// Logging configures the logger.
	Logging LoggingConfig `json:"logging,omitempty" yaml:"logging,omitempty"`
}

// ServiceConfig locates the backend.
type ServiceConfig struct {
	// PDSURL is the base URL of the account's data server.
	PDSURL string `json:"pds_url" yaml:"pds_url"`
	// AppViewURL is the base URL of the read path. Defaults to PDSURL.
	AppViewURL string `json:"appview_url,omitempty" yaml:"appview_url,omitempty"`
	// Identifier is the account handle or DID, for display.
	Identifier string `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	// AccessToken authorizes writes.
	AccessToken string `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	// Timeout bounds one request.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// PollConfig configures reconciliation.
type PollConfig struct {
	// MaxAttempts is the number of read-path fetches before giving up.
	MaxAttempts int `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	// Delay is the wait between fetches.
	Delay Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
}

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// CacheConfig configures the view cache.
type CacheConfig struct {
	// Backend is none, memory, redis or badger.
	Backend string `json:"backend,omitempty" yaml:"backend,omitempty"`
	// TTL bounds how long a view is served from the cache.
	TTL Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// MaxSize bounds the memory cache.
	MaxSize int `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	// Redis configures the redis backend.
	Redis RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
	// Badger configures the on-disk backend.
	Badger BadgerConfig `json:"badger,omitempty" yaml:"badger,omitempty"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Address   string `json:"address,omitempty" yaml:"address,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// BadgerConfig configures the on-disk cache backend, which keeps views
// between runs.
type BadgerConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// ResilienceConfig configures transport resilience.
type ResilienceConfig struct {
	Retry          RetryConfig          `json:"retry,omitempty" yaml:"retry,omitempty"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
	// MaxConcurrent limits in-flight requests.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// RetryConfig configures request retries.
type RetryConfig struct {
	MaxAttempts  int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialDelay Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is trace, debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
	// Format is console or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			PDSURL:  "https://bsky.social",
			Timeout: Duration(10 * time.Second),
		},
		Poll: PollConfig{
			MaxAttempts: 5,
			Delay:       Duration(time.Second),
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     Duration(time.Minute),
			MaxSize: 1000,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "threadgate:",
			},
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxAttempts:  3,
				InitialDelay: Duration(200 * time.Millisecond),
			},
			CircuitBreaker: CircuitBreakerConfig{
				Threshold: 5,
				Timeout:   Duration(30 * time.Second),
			},
			MaxConcurrent: 8,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
