package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonwraymond/cloudsdk/cache"
	"github.com/jonwraymond/cloudsdk/observe"
	"github.com/jonwraymond/cloudsdk/resilience"
)

// Cache provider names.
const (
	ProviderMemory  = cache.MemoryProviderName
	ProviderSturdyc = cache.SturdycProviderName
	ProviderRedis   = cache.RedisProviderName
)

// Config is the complete runtime configuration.
type Config struct {
	Logging    LoggingConfig             `koanf:"logging"`
	Observe    observe.Config            `koanf:"observe"`
	Cache      CacheConfig               `koanf:"cache"`
	Auth       AuthConfig                `koanf:"auth"`
	Resilience map[string]ResilienceSpec `koanf:"resilience"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`
}

// CacheConfig selects and tunes the cache provider.
type CacheConfig struct {
	// Provider is memory, sturdyc or redis.
	// Default: memory
	Provider string `koanf:"provider"`

	// LockIdleTimeout is how long an unused cache-miss lock is kept.
	// Default: 30 minutes
	LockIdleTimeout time.Duration `koanf:"lock_idle_timeout"`

	// CleanupInterval is how often expired entries are swept from all
	// registered stores. Zero disables the sweep.
	// Default: 1 minute
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	Sturdyc SturdycConfig `koanf:"sturdyc"`
	Redis   RedisConfig   `koanf:"redis"`
}

// SturdycConfig tunes the sturdyc provider.
type SturdycConfig struct {
	Capacity           int           `koanf:"capacity"`
	NumShards          int           `koanf:"num_shards"`
	EvictionPercentage int           `koanf:"eviction_percentage"`
	EvictionInterval   time.Duration `koanf:"eviction_interval"`
}

// RedisConfig connects the redis provider. When Address is set, redis also
// backs serializable caches regardless of Provider.
type RedisConfig struct {
	Address   string `koanf:"address"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// AuthConfig configures how bearer tokens become tenant and principal
// context.
type AuthConfig struct {
	Issuer         string `koanf:"issuer"`
	TenantClaim    string `koanf:"tenant_claim"`
	SubdomainClaim string `koanf:"subdomain_claim"`
	PrincipalClaim string `koanf:"principal_claim"`
	SigningKey     string `koanf:"signing_key"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Observe: observe.Config{
			ServiceName: "cloudsdk",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 1.0},
			Metrics:     observe.MetricsConfig{Exporter: "none"},
		},
		Cache: CacheConfig{
			Provider:        ProviderMemory,
			LockIdleTimeout: 30 * time.Minute,
			CleanupInterval: time.Minute,
			Sturdyc: SturdycConfig{
				Capacity:           10000,
				NumShards:          10,
				EvictionPercentage: 10,
				EvictionInterval:   time.Minute,
			},
			Redis: RedisConfig{KeyPrefix: cache.DefaultRedisKeyPrefix},
		},
		Auth: AuthConfig{
			TenantClaim:    "zid",
			PrincipalClaim: "sub",
		},
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate checks every section and each resilience entry.
func (c Config) Validate() error {
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	if c.Observe.Tracing.Enabled || c.Observe.Metrics.Enabled {
		if err := c.Observe.Validate(); err != nil {
			return fmt.Errorf("%w: observe: %w", ErrInvalidConfig, err)
		}
	}
	switch c.Cache.Provider {
	case ProviderMemory, ProviderSturdyc:
	case ProviderRedis:
		if c.Cache.Redis.Address == "" {
			return fmt.Errorf("%w: cache.redis.address is required for the redis provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: cache.provider %q", ErrInvalidConfig, c.Cache.Provider)
	}
	if c.Cache.LockIdleTimeout < 0 || c.Cache.CleanupInterval < 0 {
		return fmt.Errorf("%w: cache durations must not be negative", ErrInvalidConfig)
	}
	for _, id := range c.ResilienceIdentifiers() {
		if _, err := c.Resilience[id].ToConfiguration(id); err != nil {
			return fmt.Errorf("%w: resilience.%s: %w", ErrInvalidConfig, id, err)
		}
	}
	return nil
}

// ResilienceIdentifiers returns the configured identifiers, sorted.
func (c Config) ResilienceIdentifiers() []string {
	ids := make([]string, 0, len(c.Resilience))
	for id := range c.Resilience {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ResilienceFor returns the resilience configuration for identifier. Unknown
// identifiers get the defaults.
func (c Config) ResilienceFor(identifier string) (resilience.Configuration, error) {
	spec, ok := c.Resilience[identifier]
	if !ok {
		return resilience.NewConfiguration(identifier), nil
	}
	return spec.ToConfiguration(identifier)
}
