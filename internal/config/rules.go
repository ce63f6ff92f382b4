package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RouteRules is an ordered list of route-rule entries. It decodes from a
// YAML mapping while preserving declaration order, because merge precedence
// depends on it: among patterns of equal specificity the later declaration
// wins on key conflicts, and an exact duplicate pattern replaces the
// earlier registration entirely.
type RouteRules struct {
	Entries []RouteRule
}

// RouteRule associates a glob pattern with rule options.
type RouteRule struct {
	// Pattern is a glob path pattern, optionally ending in "/**".
	Pattern string

	// Options are the behaviors applied to paths matching the pattern.
	Options RuleOptions
}

// UnmarshalYAML implements yaml.Unmarshaler, keeping mapping order.
func (r *RouteRules) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("routeRules: expected a mapping, got %s", value.Tag)
	}

	r.Entries = r.Entries[:0]
	for i := 0; i+1 < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valNode := value.Content[i+1]

		var opts RuleOptions
		if err := valNode.Decode(&opts); err != nil {
			return fmt.Errorf("routeRules[%s]: %w", keyNode.Value, err)
		}

		r.Entries = append(r.Entries, RouteRule{
			Pattern: keyNode.Value,
			Options: opts,
		})
	}

	return nil
}

// MarshalYAML implements yaml.Marshaler, emitting entries in order.
func (r RouteRules) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, entry := range r.Entries {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: entry.Pattern}
		valNode := &yaml.Node{}
		if err := valNode.Encode(entry.Options); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, keyNode, valNode)
	}
	return node, nil
}

// RuleOptions is the options record attached to one rule pattern.
// Recognized keys mirror the route-rule overlay: cache, swr (shorthand),
// static, headers, cors, redirect, proxy.
type RuleOptions struct {
	// Cache enables response caching for matching paths.
	Cache *RuleCacheOptions `yaml:"cache,omitempty" json:"cache,omitempty"`

	// SWR is shorthand for cache with stale-while-revalidate enabled:
	// "swr: true" or "swr: <seconds>". Expanded at compile time.
	SWR *SWRValue `yaml:"swr,omitempty" json:"swr,omitempty"`

	// Static marks matching paths as static-asset territory. The routing
	// core only exposes the flag; serving assets belongs to collaborators.
	Static *bool `yaml:"static,omitempty" json:"static,omitempty"`

	// Headers are added to the final response. Keys are case-insensitive.
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`

	// CORS enables permissive CORS headers on the final response.
	CORS *bool `yaml:"cors,omitempty" json:"cors,omitempty"`

	// Redirect short-circuits dispatch with a redirect response.
	Redirect *RedirectOptions `yaml:"redirect,omitempty" json:"redirect,omitempty"`

	// Proxy short-circuits dispatch by forwarding to an upstream. The
	// target may contain "**" referencing the wildcard-captured remainder.
	Proxy *ProxyTargetOptions `yaml:"proxy,omitempty" json:"proxy,omitempty"`
}

// IsZero reports whether no option key is set.
func (o RuleOptions) IsZero() bool {
	return o.Cache == nil && o.SWR == nil && o.Static == nil &&
		len(o.Headers) == 0 && o.CORS == nil && o.Redirect == nil && o.Proxy == nil
}

// RuleCacheOptions configures caching for matching paths.
type RuleCacheOptions struct {
	// MaxAge is the freshness window in seconds. 0 means always
	// revalidate.
	MaxAge int `yaml:"maxAge" json:"maxAge"`

	// SWR serves stale entries while revalidating in the background.
	SWR bool `yaml:"swr,omitempty" json:"swr,omitempty"`

	// VaryHeaders lists request headers included in the cache key.
	VaryHeaders []string `yaml:"varyHeaders,omitempty" json:"varyHeaders,omitempty"`

	// VaryQuery lists query parameters included in the cache key.
	VaryQuery []string `yaml:"varyQuery,omitempty" json:"varyQuery,omitempty"`
}

// SWRValue is the "swr" shorthand: a bare boolean enables SWR with the
// default maxAge, an integer enables SWR with that maxAge in seconds.
type SWRValue struct {
	Enabled bool
	MaxAge  int
	// HasMaxAge distinguishes "swr: true" from "swr: 0".
	HasMaxAge bool
}

// UnmarshalYAML implements yaml.Unmarshaler for bool-or-int values.
func (s *SWRValue) UnmarshalYAML(value *yaml.Node) error {
	var b bool
	if err := value.Decode(&b); err == nil {
		s.Enabled = b
		s.HasMaxAge = false
		return nil
	}

	var secs int
	if err := value.Decode(&secs); err == nil {
		s.Enabled = true
		s.MaxAge = secs
		s.HasMaxAge = true
		return nil
	}

	return fmt.Errorf("swr: expected boolean or integer seconds, got %q", value.Value)
}

// MarshalYAML implements yaml.Marshaler.
func (s SWRValue) MarshalYAML() (interface{}, error) {
	if s.HasMaxAge {
		return s.MaxAge, nil
	}
	return s.Enabled, nil
}

// RedirectOptions configures a redirect rule. It decodes from either a
// bare target string or a mapping with target and status code.
type RedirectOptions struct {
	To     string `yaml:"to" json:"to"`
	Status int    `yaml:"status,omitempty" json:"status,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for string-or-mapping values.
func (r *RedirectOptions) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		r.To = value.Value
		return nil
	}

	type plain RedirectOptions
	var p plain
	if err := value.Decode(&p); err != nil {
		return fmt.Errorf("redirect: %w", err)
	}
	*r = RedirectOptions(p)
	return nil
}

// ProxyTargetOptions configures a proxy rule. It decodes from either a
// bare target string or a mapping with a "to" key.
type ProxyTargetOptions struct {
	To string `yaml:"to" json:"to"`
}

// UnmarshalYAML implements yaml.Unmarshaler for string-or-mapping values.
func (p *ProxyTargetOptions) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		p.To = value.Value
		return nil
	}

	type plain ProxyTargetOptions
	var pl plain
	if err := value.Decode(&pl); err != nil {
		return fmt.Errorf("proxy: %w", err)
	}
	*p = ProxyTargetOptions(pl)
	return nil
}
