// Package rules compiles glob route-rule patterns into a resolver that
// merges the matching rule options for a request path by specificity.
package rules

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/routefs/routefs/internal/config"
	"github.com/routefs/routefs/internal/util"
)

// DefaultSWRMaxAge is the freshness window, in seconds, applied when the
// "swr" shorthand is enabled without an explicit duration.
const DefaultSWRMaxAge = 60

// WildcardSuffix terminates a glob pattern that matches any remainder.
const WildcardSuffix = "/**"

// Rule is one compiled rule entry.
type Rule struct {
	// Pattern is the original glob pattern string.
	Pattern string

	// Prefix is the literal path prefix the pattern requires.
	Prefix string

	// Wildcard reports whether the pattern ends in "/**" and therefore
	// matches any remainder under Prefix.
	Wildcard bool

	// Options are the rule's behaviors, with the "swr" shorthand already
	// expanded into a cache block.
	Options config.RuleOptions
}

// Redirect is a resolved redirect directive with the wildcard remainder
// already substituted into the target.
type Redirect struct {
	To     string
	Status int
}

// Proxy is a resolved proxy directive with the wildcard remainder
// already substituted into the target.
type Proxy struct {
	To string
}

// Resolved is the merged option set for one request path. Option keys
// come from every matching rule, with more specific patterns overriding
// less specific ones per key and non-conflicting keys unioned.
type Resolved struct {
	Cache    *config.RuleCacheOptions
	Static   bool
	Headers  map[string]string
	CORS     bool
	Redirect *Redirect
	Proxy    *Proxy
}

// IsZero reports whether no rule matched the path.
func (r *Resolved) IsZero() bool {
	return r.Cache == nil && !r.Static && len(r.Headers) == 0 &&
		!r.CORS && r.Redirect == nil && r.Proxy == nil
}

// Resolver resolves a request path to its merged rule options. It is
// built once at startup and safe for concurrent use.
type Resolver struct {
	rules []Rule
}

// Compile builds a Resolver from ordered rule entries. An entry whose
// pattern string exactly repeats an earlier one replaces that earlier
// registration in place, keeping its slot in the order.
func Compile(entries []config.RouteRule) (*Resolver, error) {
	slots := make(map[string]int, len(entries))
	compiled := make([]Rule, 0, len(entries))

	for _, entry := range entries {
		rule, err := compileRule(entry)
		if err != nil {
			return nil, err
		}

		if idx, seen := slots[entry.Pattern]; seen {
			compiled[idx] = rule
			continue
		}
		slots[entry.Pattern] = len(compiled)
		compiled = append(compiled, rule)
	}

	return &Resolver{rules: compiled}, nil
}

func compileRule(entry config.RouteRule) (Rule, error) {
	pattern := entry.Pattern
	if !strings.HasPrefix(pattern, "/") {
		return Rule{}, util.NewConfigError("routeRules",
			fmt.Sprintf("pattern %q must start with /", pattern))
	}
	if i := strings.Index(pattern, "**"); i >= 0 && !strings.HasSuffix(pattern, WildcardSuffix) {
		return Rule{}, util.NewConfigError("routeRules",
			fmt.Sprintf("pattern %q: ** is only supported as a trailing /** segment", pattern))
	}

	rule := Rule{
		Pattern: pattern,
		Prefix:  util.NormalizePath(pattern),
		Options: expandShorthand(entry.Options),
	}
	if strings.HasSuffix(pattern, WildcardSuffix) {
		rule.Wildcard = true
		rule.Prefix = util.NormalizePath(strings.TrimSuffix(pattern, WildcardSuffix))
	}
	return rule, nil
}

// expandShorthand rewrites "swr: true|<seconds>" into an equivalent cache
// block. An explicit cache block always wins over the shorthand.
func expandShorthand(opts config.RuleOptions) config.RuleOptions {
	if opts.SWR == nil || opts.Cache != nil {
		return opts
	}
	if !opts.SWR.Enabled {
		return opts
	}

	maxAge := DefaultSWRMaxAge
	if opts.SWR.HasMaxAge {
		maxAge = opts.SWR.MaxAge
	}
	opts.Cache = &config.RuleCacheOptions{
		MaxAge: maxAge,
		SWR:    true,
	}
	return opts
}

// matches reports whether the rule applies to the normalized path, and
// returns the wildcard-captured remainder when it does.
func (r *Rule) matches(path string) (string, bool) {
	if !r.Wildcard {
		return "", path == r.Prefix
	}
	if path == r.Prefix {
		return "", true
	}

	prefix := r.Prefix
	if prefix != "/" {
		prefix += "/"
	}
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return strings.TrimPrefix(path, prefix), true
}

// Resolve merges the options of every rule matching path. Rules apply in
// specificity order: shorter literal prefixes first, so longer prefixes
// override them per key; among equal prefixes the later declaration wins.
func (rv *Resolver) Resolve(path string) *Resolved {
	path = util.NormalizePath(path)

	type match struct {
		rule      *Rule
		remainder string
		index     int
	}

	var matched []match
	for i := range rv.rules {
		rule := &rv.rules[i]
		if remainder, ok := rule.matches(path); ok {
			matched = append(matched, match{rule: rule, remainder: remainder, index: i})
		}
	}

	// Stable selection sort over a short list: ascending prefix length,
	// then ascending declaration order, so later applications override.
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0; j-- {
			a, b := matched[j-1], matched[j]
			if len(a.rule.Prefix) > len(b.rule.Prefix) ||
				(len(a.rule.Prefix) == len(b.rule.Prefix) && a.index > b.index) {
				matched[j-1], matched[j] = b, a
				continue
			}
			break
		}
	}

	resolved := &Resolved{}
	for _, m := range matched {
		applyOptions(resolved, m.rule.Options, m.remainder)
	}
	return resolved
}

// Rules returns the compiled rules in registration order.
func (rv *Resolver) Rules() []Rule {
	out := make([]Rule, len(rv.rules))
	copy(out, rv.rules)
	return out
}

// Patterns returns the compiled pattern strings in registration order.
func (rv *Resolver) Patterns() []string {
	out := make([]string, len(rv.rules))
	for i, r := range rv.rules {
		out[i] = r.Pattern
	}
	return out
}

func applyOptions(resolved *Resolved, opts config.RuleOptions, remainder string) {
	if opts.Cache != nil {
		cache := *opts.Cache
		resolved.Cache = &cache
	}
	if opts.Static != nil {
		resolved.Static = *opts.Static
	}
	if opts.CORS != nil {
		resolved.CORS = *opts.CORS
	}
	for name, value := range opts.Headers {
		if resolved.Headers == nil {
			resolved.Headers = make(map[string]string)
		}
		resolved.Headers[http.CanonicalHeaderKey(name)] = value
	}
	if opts.Redirect != nil {
		status := opts.Redirect.Status
		if status == 0 {
			status = http.StatusFound
		}
		resolved.Redirect = &Redirect{
			To:     substituteWildcard(opts.Redirect.To, remainder),
			Status: status,
		}
	}
	if opts.Proxy != nil {
		resolved.Proxy = &Proxy{
			To: substituteWildcard(opts.Proxy.To, remainder),
		}
	}
}

// substituteWildcard replaces a "**" placeholder in a redirect or proxy
// target with the wildcard-captured remainder of the request path.
func substituteWildcard(target, remainder string) string {
	if !strings.Contains(target, "**") {
		return target
	}
	return strings.ReplaceAll(target, "**", remainder)
}
