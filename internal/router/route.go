// Package router compiles route entries into a radix tree and resolves
// method/path pairs to handler references with captured path parameters.
package router

import (
	"strings"

	"github.com/routefs/routefs/internal/util"
)

// SegmentKind classifies one pattern segment.
type SegmentKind int

const (
	// SegmentLiteral matches its value exactly.
	SegmentLiteral SegmentKind = iota

	// SegmentNamed matches any single segment and captures it.
	SegmentNamed

	// SegmentCatchAll matches the entire remaining path, separators
	// included, and is always terminal.
	SegmentCatchAll
)

// FallbackParamName is the parameter name used by anonymous catch-all
// entries registered via a bare "[...]" segment.
const FallbackParamName = "_"

// Segment is one element of a route pattern: a literal value, a named
// parameter, or a catch-all.
type Segment struct {
	Kind SegmentKind

	// Value is the literal text for SegmentLiteral, or the parameter
	// name for SegmentNamed and SegmentCatchAll.
	Value string
}

// RouteEntry is the immutable description of one discovered route.
type RouteEntry struct {
	// Pattern is the canonical pattern string, e.g. "/hello/[name]".
	Pattern string

	// Method scopes the entry to one HTTP method; empty matches any.
	Method string

	// HandlerRef is an opaque identifier resolved by the caller.
	HandlerRef string

	// Fallback marks an anonymous catch-all ("[...]") entry. Fallback
	// entries rank below named catch-alls during matching.
	Fallback bool

	segments []Segment
}

// NewRouteEntry parses pattern and builds an immutable entry.
func NewRouteEntry(pattern, method, handlerRef string) (*RouteEntry, error) {
	segments, fallback, err := ParsePattern(pattern)
	if err != nil {
		return nil, err
	}

	return &RouteEntry{
		Pattern:    util.NormalizePath(pattern),
		Method:     strings.ToUpper(method),
		HandlerRef: handlerRef,
		Fallback:   fallback,
		segments:   segments,
	}, nil
}

// Segments returns the parsed pattern segments.
func (e *RouteEntry) Segments() []Segment {
	return e.segments
}

// ParsePattern parses a route pattern into segments. It reports whether
// the pattern is an anonymous catch-all fallback, and rejects malformed
// declarations: a catch-all that is not the final segment, parameter
// markers mixed with literal text inside one segment, and empty parameter
// names.
func ParsePattern(pattern string) (segments []Segment, fallback bool, err error) {
	raw := util.SplitPath(pattern)
	segments = make([]Segment, 0, len(raw))

	for i, part := range raw {
		seg, isFallback, segErr := parseSegment(pattern, part)
		if segErr != nil {
			return nil, false, segErr
		}

		if seg.Kind == SegmentCatchAll && i != len(raw)-1 {
			return nil, false, util.NewConfigError(pattern, "catch-all segment must be last")
		}

		fallback = fallback || isFallback
		segments = append(segments, seg)
	}

	return segments, fallback, nil
}

// parseSegment parses a single path segment.
func parseSegment(pattern, part string) (Segment, bool, error) {
	bracketed := strings.HasPrefix(part, "[") && strings.HasSuffix(part, "]")

	if !bracketed {
		if strings.ContainsAny(part, "[]") {
			return Segment{}, false, util.NewConfigError(pattern,
				"parameter marker mixed with literal text in segment "+part)
		}
		return Segment{Kind: SegmentLiteral, Value: part}, false, nil
	}

	inner := part[1 : len(part)-1]
	if strings.ContainsAny(inner, "[]") {
		return Segment{}, false, util.NewConfigError(pattern,
			"multiple parameter markers in segment "+part)
	}

	if inner == "..." {
		return Segment{Kind: SegmentCatchAll, Value: FallbackParamName}, true, nil
	}

	if name, ok := strings.CutPrefix(inner, "..."); ok {
		if name == "" {
			return Segment{}, false, util.NewConfigError(pattern, "empty catch-all name")
		}
		return Segment{Kind: SegmentCatchAll, Value: name}, false, nil
	}

	if inner == "" {
		return Segment{}, false, util.NewConfigError(pattern, "empty parameter name")
	}

	return Segment{Kind: SegmentNamed, Value: inner}, false, nil
}

// Param is one captured path parameter. Parameter order follows the
// declaration order of the pattern.
type Param struct {
	Name  string
	Value string
}

// MatchResult is the outcome of a successful route lookup.
type MatchResult struct {
	Entry  *RouteEntry
	Params []Param
}

// Param returns the captured value for name, or "".
func (m *MatchResult) Param(name string) string {
	for _, p := range m.Params {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// ParamMap returns the captured parameters as a map.
func (m *MatchResult) ParamMap() map[string]string {
	if len(m.Params) == 0 {
		return nil
	}
	out := make(map[string]string, len(m.Params))
	for _, p := range m.Params {
		out[p.Name] = p.Value
	}
	return out
}
