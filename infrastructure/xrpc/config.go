// Package xrpc provides an HTTP client for the XRPC methods used to read
// and write interaction-policy records.
package xrpc

import "time"

// Config configures the XRPC client.
type Config struct {
	// ServiceURL is the base URL of the account's PDS.
	ServiceURL string
	// AppViewURL is the base URL used for read-path queries. Defaults to
	// ServiceURL.
	AppViewURL string
	// AccessToken is sent as a bearer token.
	AccessToken string
	// Timeout bounds a single HTTP request.
	Timeout time.Duration
	// MaxRetries is the maximum number of attempts per call.
	MaxRetries int
	// RetryDelay is the initial delay between attempts.
	RetryDelay time.Duration
	// MaxConcurrent limits in-flight calls.
	MaxConcurrent int
	// MaxQueue is how many calls may wait for a free slot.
	MaxQueue int
	// QueueTimeout bounds the wait for a free slot.
	QueueTimeout time.Duration
	// CircuitBreakerThreshold is consecutive failures before opening.
	CircuitBreakerThreshold int
	// CircuitBreakerTimeout is how long the circuit stays open.
	CircuitBreakerTimeout time.Duration
	// UserAgent is the User-Agent header value.
	UserAgent string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ServiceURL:              "https://bsky.social",
		Timeout:                 10 * time.Second,
		MaxRetries:              3,
		RetryDelay:              200 * time.Millisecond,
		MaxConcurrent:           8,
		MaxQueue:                64,
		QueueTimeout:            30 * time.Second,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
		UserAgent:               "threadgate-xrpc/1.0",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ServiceURL == "" {
		c.ServiceURL = d.ServiceURL
	}
	if c.AppViewURL == "" {
		c.AppViewURL = c.ServiceURL
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = d.MaxQueue
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = d.QueueTimeout
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = d.CircuitBreakerThreshold
	}
	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = d.CircuitBreakerTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	return c
}
