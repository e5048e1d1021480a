// Package config loads the runtime configuration.
//
// Values are layered: built-in defaults, then each configuration file in
// order (YAML, JSON or TOML by extension), then environment variables with
// the loader's prefix. In variable names a double underscore separates
// levels, so CLOUDSDK_CACHE__PROVIDER sets cache.provider and
// CLOUDSDK_RESILIENCE__ORDERS__RETRY__ENABLED sets
// resilience.orders.retry.enabled.
//
// String values may contain ${VAR} expansions and secretref references,
// which are resolved before the configuration is decoded (see package
// secret).
//
// Loader.Watch reloads the configuration when a file changes.
package config
