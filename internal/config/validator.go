package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/routefs/routefs/internal/util"
)

// Validate checks the configuration for structural problems. Malformed
// declarations are build-time errors: the routing table must fail to
// compile rather than produce undefined runtime behavior.
func Validate(cfg *Config) error {
	if cfg == nil {
		return util.NewConfigError("", "configuration is nil")
	}

	if cfg.Server.Listen == "" {
		return util.NewConfigError("server.listen", "listen address is required")
	}

	if err := validateCache(&cfg.Cache); err != nil {
		return err
	}

	if cfg.RateLimit != nil && cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			return util.NewConfigError("rateLimit.requestsPerSecond", "must be positive")
		}
		if cfg.RateLimit.Burst <= 0 {
			return util.NewConfigError("rateLimit.burst", "must be positive")
		}
	}

	for i, rule := range cfg.RouteRules.Entries {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}

	return nil
}

// validateCache checks cache store settings.
func validateCache(cfg *CacheConfig) error {
	if !cfg.Enabled {
		return nil
	}

	switch cfg.Type {
	case "", CacheTypeMemory:
		if cfg.MaxEntries < 0 {
			return util.NewConfigError("cache.maxEntries", "must not be negative")
		}
	case CacheTypeRedis:
		if cfg.Redis == nil || cfg.Redis.URL == "" {
			return util.NewConfigError("cache.redis.url", "required for redis cache")
		}
		if _, err := url.Parse(cfg.Redis.URL); err != nil {
			return util.NewConfigErrorWithCause("cache.redis.url", "invalid URL", err)
		}
		if cfg.Redis.TTLJitter < 0 || cfg.Redis.TTLJitter > 1 {
			return util.NewConfigError("cache.redis.ttlJitter", "must be within [0, 1]")
		}
	default:
		return util.NewConfigError("cache.type", fmt.Sprintf("unknown cache type %q", cfg.Type))
	}

	return nil
}

// validateRule checks one route-rule entry.
func validateRule(index int, rule RouteRule) error {
	field := fmt.Sprintf("routeRules[%d] %q", index, rule.Pattern)

	if rule.Pattern == "" {
		return util.NewConfigError(field, "empty pattern")
	}
	if !strings.HasPrefix(rule.Pattern, "/") {
		return util.NewConfigError(field, "pattern must start with /")
	}
	if idx := strings.Index(rule.Pattern, "**"); idx >= 0 && idx != len(rule.Pattern)-2 {
		return util.NewConfigError(field, "** wildcard must be the trailing segment")
	}

	opts := rule.Options
	if opts.IsZero() {
		return util.NewConfigError(field, "no recognized option keys")
	}
	if opts.Cache != nil && opts.Cache.MaxAge < 0 {
		return util.NewConfigError(field, "cache.maxAge must not be negative")
	}
	if opts.SWR != nil && opts.SWR.HasMaxAge && opts.SWR.MaxAge < 0 {
		return util.NewConfigError(field, "swr seconds must not be negative")
	}
	if opts.Redirect != nil && opts.Redirect.To == "" {
		return util.NewConfigError(field, "redirect target is required")
	}
	if opts.Redirect != nil && opts.Redirect.Status != 0 &&
		(opts.Redirect.Status < 300 || opts.Redirect.Status > 399) {
		return util.NewConfigError(field, "redirect status must be a 3xx code")
	}
	if opts.Proxy != nil {
		if opts.Proxy.To == "" {
			return util.NewConfigError(field, "proxy target is required")
		}
		target := strings.ReplaceAll(opts.Proxy.To, "**", "remainder")
		if _, err := url.Parse(target); err != nil {
			return util.NewConfigErrorWithCause(field, "invalid proxy target", err)
		}
	}

	return nil
}
