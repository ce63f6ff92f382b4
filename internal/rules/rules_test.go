package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/util"
)

func boolPtr(b bool) *bool { return &b }

func mustCompile(t *testing.T, entries []config.RouteRule) *Resolver {
	t.Helper()
	resolver, err := Compile(entries)
	require.NoError(t, err)
	return resolver
}

func TestCompileRejectsInvalidPatterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
	}{
		{name: "missing leading slash", pattern: "blog/**"},
		{name: "embedded wildcard", pattern: "/blog/**/comments"},
		{name: "wildcard without separator", pattern: "/blog**"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Compile([]config.RouteRule{
				{Pattern: tt.pattern, Options: config.RuleOptions{CORS: boolPtr(true)}},
			})
			require.Error(t, err)

			var cfgErr *util.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestSWRShorthandExpansion(t *testing.T) {
	t.Parallel()

	t.Run("bare true uses default max age", func(t *testing.T) {
		t.Parallel()
		resolver := mustCompile(t, []config.RouteRule{
			{Pattern: "/blog/**", Options: config.RuleOptions{
				SWR: &config.SWRValue{Enabled: true},
			}},
		})

		resolved := resolver.Resolve("/blog/post")
		require.NotNil(t, resolved.Cache)
		assert.Equal(t, DefaultSWRMaxAge, resolved.Cache.MaxAge)
		assert.True(t, resolved.Cache.SWR)
	})

	t.Run("integer sets max age", func(t *testing.T) {
		t.Parallel()
		resolver := mustCompile(t, []config.RouteRule{
			{Pattern: "/blog/**", Options: config.RuleOptions{
				SWR: &config.SWRValue{Enabled: true, MaxAge: 300, HasMaxAge: true},
			}},
		})

		resolved := resolver.Resolve("/blog/post")
		require.NotNil(t, resolved.Cache)
		assert.Equal(t, 300, resolved.Cache.MaxAge)
		assert.True(t, resolved.Cache.SWR)
	})

	t.Run("explicit cache block wins over shorthand", func(t *testing.T) {
		t.Parallel()
		resolver := mustCompile(t, []config.RouteRule{
			{Pattern: "/blog/**", Options: config.RuleOptions{
				SWR:   &config.SWRValue{Enabled: true},
				Cache: &config.RuleCacheOptions{MaxAge: 10},
			}},
		})

		resolved := resolver.Resolve("/blog/post")
		require.NotNil(t, resolved.Cache)
		assert.Equal(t, 10, resolved.Cache.MaxAge)
		assert.False(t, resolved.Cache.SWR)
	})
}

func TestResolveSpecificityMerge(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/**", Options: config.RuleOptions{
			Cache: &config.RuleCacheOptions{MaxAge: 10},
			CORS:  boolPtr(true),
		}},
		{Pattern: "/api/**", Options: config.RuleOptions{
			Cache:   &config.RuleCacheOptions{MaxAge: 60},
			Headers: map[string]string{"x-powered-by": "routefs"},
		}},
	})

	t.Run("more specific prefix overrides per key", func(t *testing.T) {
		t.Parallel()
		resolved := resolver.Resolve("/api/users")
		require.NotNil(t, resolved.Cache)
		assert.Equal(t, 60, resolved.Cache.MaxAge)
	})

	t.Run("non-conflicting keys union", func(t *testing.T) {
		t.Parallel()
		resolved := resolver.Resolve("/api/users")
		assert.True(t, resolved.CORS)
		assert.Equal(t, "routefs", resolved.Headers["X-Powered-By"])
	})

	t.Run("less specific rule still applies elsewhere", func(t *testing.T) {
		t.Parallel()
		resolved := resolver.Resolve("/other")
		require.NotNil(t, resolved.Cache)
		assert.Equal(t, 10, resolved.Cache.MaxAge)
		assert.Empty(t, resolved.Headers)
	})
}

func TestResolveEqualPrefixLaterDeclarationWins(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/api/**", Options: config.RuleOptions{
			Cache: &config.RuleCacheOptions{MaxAge: 10},
		}},
		{Pattern: "/api/**", Options: config.RuleOptions{
			Cache: &config.RuleCacheOptions{MaxAge: 99},
		}},
	})

	// The duplicate pattern replaces the earlier registration entirely.
	require.Len(t, resolver.Rules(), 1)
	resolved := resolver.Resolve("/api/users")
	require.NotNil(t, resolved.Cache)
	assert.Equal(t, 99, resolved.Cache.MaxAge)
}

func TestResolveExactPatternMatchesOnlyItself(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/about", Options: config.RuleOptions{Static: boolPtr(true)}},
	})

	assert.True(t, resolver.Resolve("/about").Static)
	assert.True(t, resolver.Resolve("/about/").Static)
	assert.False(t, resolver.Resolve("/about/team").Static)
	assert.True(t, resolver.Resolve("/elsewhere").IsZero())
}

func TestResolveRedirect(t *testing.T) {
	t.Parallel()

	t.Run("default status", func(t *testing.T) {
		t.Parallel()
		resolver := mustCompile(t, []config.RouteRule{
			{Pattern: "/old", Options: config.RuleOptions{
				Redirect: &config.RedirectOptions{To: "/new"},
			}},
		})

		resolved := resolver.Resolve("/old")
		require.NotNil(t, resolved.Redirect)
		assert.Equal(t, "/new", resolved.Redirect.To)
		assert.Equal(t, 302, resolved.Redirect.Status)
	})

	t.Run("wildcard remainder substitution", func(t *testing.T) {
		t.Parallel()
		resolver := mustCompile(t, []config.RouteRule{
			{Pattern: "/old/**", Options: config.RuleOptions{
				Redirect: &config.RedirectOptions{To: "/new/**", Status: 301},
			}},
		})

		resolved := resolver.Resolve("/old/posts/1")
		require.NotNil(t, resolved.Redirect)
		assert.Equal(t, "/new/posts/1", resolved.Redirect.To)
		assert.Equal(t, 301, resolved.Redirect.Status)
	})
}

func TestResolveProxyRemainder(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/img/**", Options: config.RuleOptions{
			Proxy: &config.ProxyTargetOptions{To: "https://cdn.example.com/**"},
		}},
	})

	resolved := resolver.Resolve("/img/logos/main.png")
	require.NotNil(t, resolved.Proxy)
	assert.Equal(t, "https://cdn.example.com/logos/main.png", resolved.Proxy.To)

	// Matching the bare prefix yields an empty remainder.
	resolved = resolver.Resolve("/img")
	require.NotNil(t, resolved.Proxy)
	assert.Equal(t, "https://cdn.example.com/", resolved.Proxy.To)
}

func TestResolveRootWildcard(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/**", Options: config.RuleOptions{CORS: boolPtr(true)}},
	})

	assert.True(t, resolver.Resolve("/").CORS)
	assert.True(t, resolver.Resolve("/deeply/nested/path").CORS)
}

func TestResolveDeterministic(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/**", Options: config.RuleOptions{CORS: boolPtr(true)}},
		{Pattern: "/api/**", Options: config.RuleOptions{
			Cache: &config.RuleCacheOptions{MaxAge: 60},
		}},
	})

	first := resolver.Resolve("/api/users")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, resolver.Resolve("/api/users"))
	}
}

func TestResolverPatterns(t *testing.T) {
	t.Parallel()

	resolver := mustCompile(t, []config.RouteRule{
		{Pattern: "/api/**", Options: config.RuleOptions{CORS: boolPtr(true)}},
		{Pattern: "/blog/**", Options: config.RuleOptions{CORS: boolPtr(true)}},
	})

	assert.Equal(t, []string{"/api/**", "/blog/**"}, resolver.Patterns())
}
