package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestRouteRulesUnmarshalOrder(t *testing.T) {
	t.Parallel()

	input := `
"/blog/**":
  swr: true
"/assets/**":
  static: true
  headers:
    Cache-Control: "public, max-age=31536000"
"/old":
  redirect: /new
"/api/**":
  proxy: https://backend.example.com/**
  cors: true
`

	var rules RouteRules
	require.NoError(t, yaml.Unmarshal([]byte(input), &rules))
	require.Len(t, rules.Entries, 4)

	assert.Equal(t, "/blog/**", rules.Entries[0].Pattern)
	assert.Equal(t, "/assets/**", rules.Entries[1].Pattern)
	assert.Equal(t, "/old", rules.Entries[2].Pattern)
	assert.Equal(t, "/api/**", rules.Entries[3].Pattern)

	assert.True(t, rules.Entries[0].Options.SWR.Enabled)
	require.NotNil(t, rules.Entries[1].Options.Static)
	assert.True(t, *rules.Entries[1].Options.Static)
	assert.Equal(t, "public, max-age=31536000", rules.Entries[1].Options.Headers["Cache-Control"])
	assert.Equal(t, "/new", rules.Entries[2].Options.Redirect.To)
	assert.Equal(t, "https://backend.example.com/**", rules.Entries[3].Options.Proxy.To)
	require.NotNil(t, rules.Entries[3].Options.CORS)
	assert.True(t, *rules.Entries[3].Options.CORS)
}

func TestRouteRulesDuplicateKeysKeepBoth(t *testing.T) {
	t.Parallel()

	// Decoding preserves both registrations; the rule compiler applies
	// last-registration-wins for identical pattern strings.
	input := `
"/cached":
  cache:
    maxAge: 10
"/cached":
  cache:
    maxAge: 60
`

	var rules RouteRules
	require.NoError(t, yaml.Unmarshal([]byte(input), &rules))
	require.Len(t, rules.Entries, 2)
	assert.Equal(t, 10, rules.Entries[0].Options.Cache.MaxAge)
	assert.Equal(t, 60, rules.Entries[1].Options.Cache.MaxAge)
}

func TestSWRValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		enabled    bool
		hasMaxAge  bool
		maxAge     int
		expectFail bool
	}{
		{name: "true", input: "swr: true", enabled: true},
		{name: "false", input: "swr: false", enabled: false},
		{name: "seconds", input: "swr: 120", enabled: true, hasMaxAge: true, maxAge: 120},
		{name: "zero seconds", input: "swr: 0", enabled: true, hasMaxAge: true, maxAge: 0},
		{name: "garbage", input: "swr: [1]", expectFail: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var opts RuleOptions
			err := yaml.Unmarshal([]byte(tt.input), &opts)
			if tt.expectFail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, opts.SWR)
			assert.Equal(t, tt.enabled, opts.SWR.Enabled)
			assert.Equal(t, tt.hasMaxAge, opts.SWR.HasMaxAge)
			assert.Equal(t, tt.maxAge, opts.SWR.MaxAge)
		})
	}
}

func TestRedirectOptionsForms(t *testing.T) {
	t.Parallel()

	t.Run("scalar", func(t *testing.T) {
		t.Parallel()
		var opts RuleOptions
		require.NoError(t, yaml.Unmarshal([]byte("redirect: /target"), &opts))
		assert.Equal(t, "/target", opts.Redirect.To)
		assert.Zero(t, opts.Redirect.Status)
	})

	t.Run("mapping", func(t *testing.T) {
		t.Parallel()
		var opts RuleOptions
		require.NoError(t, yaml.Unmarshal([]byte("redirect:\n  to: /target\n  status: 301"), &opts))
		assert.Equal(t, "/target", opts.Redirect.To)
		assert.Equal(t, 301, opts.Redirect.Status)
	})
}

func TestProxyTargetOptionsForms(t *testing.T) {
	t.Parallel()

	t.Run("scalar", func(t *testing.T) {
		t.Parallel()
		var opts RuleOptions
		require.NoError(t, yaml.Unmarshal([]byte("proxy: http://10.0.0.1:8080/**"), &opts))
		assert.Equal(t, "http://10.0.0.1:8080/**", opts.Proxy.To)
	})

	t.Run("mapping", func(t *testing.T) {
		t.Parallel()
		var opts RuleOptions
		require.NoError(t, yaml.Unmarshal([]byte("proxy:\n  to: http://10.0.0.1:8080"), &opts))
		assert.Equal(t, "http://10.0.0.1:8080", opts.Proxy.To)
	})
}

func TestRouteRulesMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	rules := RouteRules{Entries: []RouteRule{
		{Pattern: "/b/**", Options: RuleOptions{SWR: &SWRValue{Enabled: true}}},
		{Pattern: "/a/**", Options: RuleOptions{CORS: boolPtr(true)}},
	}}

	data, err := yaml.Marshal(rules)
	require.NoError(t, err)

	var decoded RouteRules
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, "/b/**", decoded.Entries[0].Pattern)
	assert.Equal(t, "/a/**", decoded.Entries[1].Pattern)
}

func TestRuleOptionsIsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, RuleOptions{}.IsZero())
	assert.False(t, RuleOptions{CORS: boolPtr(false)}.IsZero())
}

func boolPtr(b bool) *bool { return &b }
