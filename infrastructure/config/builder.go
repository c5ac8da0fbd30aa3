package config

import (
	"fmt"
	"io"
	"time"

	"github.com/felixgeelhaar/threadgate/domain/cache"
	domainconfig "github.com/felixgeelhaar/threadgate/domain/config"
	"github.com/felixgeelhaar/threadgate/infrastructure/logging"
	"github.com/felixgeelhaar/threadgate/infrastructure/poll"
	badgercache "github.com/felixgeelhaar/threadgate/infrastructure/storage/badger"
	"github.com/felixgeelhaar/threadgate/infrastructure/storage/memory"
	rediscache "github.com/felixgeelhaar/threadgate/infrastructure/storage/redis"
	"github.com/felixgeelhaar/threadgate/infrastructure/xrpc"
)

// badgerGCInterval is how often the on-disk cache reclaims space.
const badgerGCInterval = 10 * time.Minute

// Builder turns configuration into component settings.
type Builder struct {
	config *domainconfig.Config
}

// NewBuilder creates a builder. A nil configuration uses the defaults.
func NewBuilder(cfg *domainconfig.Config) *Builder {
	if cfg == nil {
		cfg = domainconfig.Default()
	}
	return &Builder{config: cfg}
}

// PollConfig returns the reconciliation settings.
func (b *Builder) PollConfig() poll.Config {
	cfg := poll.DefaultConfig()
	if b.config.Poll.MaxAttempts > 0 {
		cfg.MaxAttempts = b.config.Poll.MaxAttempts
	}
	if b.config.Poll.Delay > 0 {
		cfg.Delay = b.config.Poll.Delay.Duration()
	}
	return cfg
}

// XRPCConfig returns the transport settings.
func (b *Builder) XRPCConfig() xrpc.Config {
	svc := b.config.Service
	res := b.config.Resilience
	return xrpc.Config{
		ServiceURL:              svc.PDSURL,
		AppViewURL:              svc.AppViewURL,
		AccessToken:             svc.AccessToken,
		Timeout:                 svc.Timeout.Duration(),
		MaxRetries:              res.Retry.MaxAttempts,
		RetryDelay:              res.Retry.InitialDelay.Duration(),
		MaxConcurrent:           res.MaxConcurrent,
		CircuitBreakerThreshold: res.CircuitBreaker.Threshold,
		CircuitBreakerTimeout:   res.CircuitBreaker.Timeout.Duration(),
	}
}

// LoggingConfig returns the logger settings writing to out.
func (b *Builder) LoggingConfig(out io.Writer) logging.Config {
	cfg := logging.DefaultConfig()
	if b.config.Logging.Level != "" {
		cfg.Level = b.config.Logging.Level
	}
	if b.config.Logging.Format != "" {
		cfg.Format = b.config.Logging.Format
	}
	if out != nil {
		cfg.Output = out
	}
	return cfg
}

// RedisConfig returns the redis cache settings.
func (b *Builder) RedisConfig() rediscache.Config {
	r := b.config.Cache.Redis
	cfg := rediscache.DefaultConfig()
	if r.Address != "" {
		cfg.Address = r.Address
	}
	if r.KeyPrefix != "" {
		cfg.KeyPrefix = r.KeyPrefix
	}
	cfg.Password = r.Password
	cfg.DB = r.DB
	cfg.DefaultTTL = b.config.Cache.TTL.Duration()
	return cfg
}

// BuildCache creates the configured view cache. It returns a nil cache
// when caching is disabled. The returned close function is never nil.
func (b *Builder) BuildCache() (cache.Cache, func() error, error) {
	noop := func() error { return nil }

	switch b.config.Cache.Backend {
	case domainconfig.CacheNone:
		return nil, noop, nil
	case "", domainconfig.CacheMemory:
		var opts []memory.CacheOption
		if b.config.Cache.MaxSize > 0 {
			opts = append(opts, memory.WithMaxSize(b.config.Cache.MaxSize))
		}
		return memory.NewCache(opts...), noop, nil
	case domainconfig.CacheRedis:
		c, err := rediscache.NewCache(b.RedisConfig())
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil
	case domainconfig.CacheBadger:
		c, err := badgercache.NewCache(badgercache.DefaultConfig(),
			badgercache.WithDir(b.config.Cache.Badger.Dir),
			badgercache.WithGCInterval(badgerGCInterval),
		)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil
	default:
		return nil, noop, fmt.Errorf("%w: unknown cache backend %q", domainconfig.ErrValidationFailed, b.config.Cache.Backend)
	}
}

// CacheTTL returns how long loaded views are cached.
func (b *Builder) CacheTTL() time.Duration {
	return b.config.Cache.TTL.Duration()
}
