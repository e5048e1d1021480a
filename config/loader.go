package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jonwraymond/cloudsdk/observe"
	"github.com/jonwraymond/cloudsdk/secret"
)

// DefaultEnvPrefix is the environment prefix used by NewLoader when none is
// given.
const DefaultEnvPrefix = "CLOUDSDK"

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithEnvPrefix sets the environment variable prefix. An empty prefix
// disables environment overrides.
// Default: DefaultEnvPrefix
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithFiles sets the configuration files, applied in order.
func WithFiles(paths ...string) LoaderOption {
	return func(l *Loader) { l.files = append([]string(nil), paths...) }
}

// WithResolver sets the resolver for ${VAR} and secretref values.
// Default: secret.DefaultResolver rooted at the first file's directory
func WithResolver(r *secret.Resolver) LoaderOption {
	return func(l *Loader) {
		if r != nil {
			l.resolver = r
		}
	}
}

// WithLoaderLogger sets the logger used by Watch.
func WithLoaderLogger(lg observe.Logger) LoaderOption {
	return func(l *Loader) {
		if lg != nil {
			l.logger = lg.With(observe.Field{Key: "component", Value: "config"})
		}
	}
}

// Loader builds a Config from defaults, files and the environment, in that
// order of increasing precedence.
type Loader struct {
	envPrefix string
	files     []string
	resolver  *secret.Resolver
	logger    observe.Logger
}

// NewLoader creates a loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		envPrefix: DefaultEnvPrefix,
		logger:    observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.resolver == nil {
		dir := ""
		if len(l.files) > 0 {
			dir = filepath.Dir(l.files[0])
		}
		l.resolver = secret.DefaultResolver(dir)
	}
	return l
}

// Files returns the configured files.
func (l *Loader) Files() []string { return append([]string(nil), l.files...) }

// Load assembles and validates the configuration.
func (l *Loader) Load(ctx context.Context) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultsMap(Default()), "."), nil); err != nil {
		return Config{}, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range l.files {
		if path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Config{}, err
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
			}
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	if l.envPrefix != "" {
		prefix := strings.ToUpper(l.envPrefix) + "_"
		transform := func(s string) string {
			key := strings.TrimPrefix(s, prefix)
			return strings.ToLower(strings.ReplaceAll(key, "__", "."))
		}
		if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
			return Config{}, fmt.Errorf("config: load env: %w", err)
		}
	}

	if err := l.resolveStrings(ctx, k); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveStrings replaces every string value with its resolved form.
func (l *Loader) resolveStrings(ctx context.Context, k *koanf.Koanf) error {
	for key, v := range k.All() {
		s, ok := v.(string)
		if !ok || !strings.Contains(s, "$") && !strings.Contains(s, "secretref:") {
			continue
		}
		resolved, err := l.resolver.ResolveValue(ctx, s)
		if err != nil {
			return fmt.Errorf("config: resolve %s: %w", key, err)
		}
		if err := k.Set(key, resolved); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// defaultsMap converts Default into the nested map the confmap provider
// loads.
func defaultsMap(cfg Config) map[string]any {
	return map[string]any{
		"logging": map[string]any{
			"level": cfg.Logging.Level,
		},
		"observe": map[string]any{
			"service_name": cfg.Observe.ServiceName,
			"version":      cfg.Observe.Version,
			"tracing": map[string]any{
				"enabled":    cfg.Observe.Tracing.Enabled,
				"exporter":   cfg.Observe.Tracing.Exporter,
				"sample_pct": cfg.Observe.Tracing.SamplePct,
			},
			"metrics": map[string]any{
				"enabled":  cfg.Observe.Metrics.Enabled,
				"exporter": cfg.Observe.Metrics.Exporter,
			},
		},
		"cache": map[string]any{
			"provider":          cfg.Cache.Provider,
			"lock_idle_timeout": cfg.Cache.LockIdleTimeout,
			"cleanup_interval":  cfg.Cache.CleanupInterval,
			"sturdyc": map[string]any{
				"capacity":            cfg.Cache.Sturdyc.Capacity,
				"num_shards":          cfg.Cache.Sturdyc.NumShards,
				"eviction_percentage": cfg.Cache.Sturdyc.EvictionPercentage,
				"eviction_interval":   cfg.Cache.Sturdyc.EvictionInterval,
			},
			"redis": map[string]any{
				"key_prefix": cfg.Cache.Redis.KeyPrefix,
			},
		},
		"auth": map[string]any{
			"tenant_claim":    cfg.Auth.TenantClaim,
			"principal_claim": cfg.Auth.PrincipalClaim,
		},
	}
}
