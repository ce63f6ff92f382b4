// Package config provides configuration types and loading for the routing
// core: server settings, cache backend selection, and the route-rule
// overlay mapping glob patterns to per-route behaviors.
package config

// Config is the root configuration.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `yaml:"server" json:"server"`

	// Log contains logging settings.
	Log LogConfig `yaml:"log" json:"log"`

	// Cache contains cache store settings shared by all cached routes.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Proxy contains settings for rule-driven upstream forwarding.
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// RateLimit contains optional request rate limiting settings.
	RateLimit *RateLimitConfig `yaml:"rateLimit,omitempty" json:"rateLimit,omitempty"`

	// RouteRules is the ordered overlay of glob pattern to rule options.
	// Declaration order is significant: later entries win key conflicts.
	RouteRules RouteRules `yaml:"routeRules" json:"routeRules"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Listen is the address to bind, e.g. ":8080".
	Listen string `yaml:"listen" json:"listen"`

	// SiteDir is the directory scanned for routes/, api/ and middleware/
	// conventions. Empty disables filesystem discovery.
	SiteDir string `yaml:"siteDir,omitempty" json:"siteDir,omitempty"`

	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Cache backend types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// CacheConfig represents cache store configuration.
type CacheConfig struct {
	// Enabled indicates whether caching is enabled at all. When false,
	// cache rules degrade to pass-through handler invocation.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type is the cache backend type: "memory" or "redis".
	Type string `yaml:"type" json:"type"`

	// TTL is the default time-to-live for cached entries without an
	// explicit maxAge.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries is the maximum number of entries for the memory store.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// Redis contains Redis-specific configuration.
	Redis *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig contains Redis-specific cache configuration.
type RedisCacheConfig struct {
	// URL is the Redis connection URL.
	// Format: redis://[user:password@]host:port[/db]
	URL string `yaml:"url" json:"url"`

	// KeyPrefix is a prefix added to all cache keys.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`

	// ReadTimeout is the timeout for read operations.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// TTLJitter is the maximum fraction of jitter added to TTL values
	// (0.0 to 1.0) to avoid synchronized expiry.
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`
}

// ProxyConfig contains settings for rule-driven upstream forwarding.
type ProxyConfig struct {
	// Timeout bounds a single upstream round trip.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Breaker contains circuit breaker settings for upstream calls.
	Breaker *BreakerConfig `yaml:"breaker,omitempty" json:"breaker,omitempty"`
}

// BreakerConfig contains circuit breaker settings.
type BreakerConfig struct {
	// Enabled turns the breaker on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker.
	FailureThreshold uint32 `yaml:"failureThreshold,omitempty" json:"failureThreshold,omitempty"`

	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout Duration `yaml:"openTimeout,omitempty" json:"openTimeout,omitempty"`
}

// RateLimitConfig contains request rate limiting settings.
type RateLimitConfig struct {
	// Enabled turns rate limiting on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// RequestsPerSecond is the sustained request rate per client.
	RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`

	// Burst is the maximum burst size per client.
	Burst int `yaml:"burst" json:"burst"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":8080",
			ReadTimeout:     Duration(30e9),
			WriteTimeout:    Duration(30e9),
			ShutdownTimeout: Duration(15e9),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			Enabled:    true,
			Type:       CacheTypeMemory,
			MaxEntries: 10000,
		},
	}
}
