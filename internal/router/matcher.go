package router

import (
	"strings"

	"github.com/routefs/routefs/internal/util"
)

// node is one level of the compiled radix tree. Each node holds literal
// child edges keyed by segment value, at most one named-parameter edge,
// and terminal catch-all slots. Leaves and catch-all slots are keyed by
// method, with "" meaning method-agnostic.
//
// The tree is built once at compile time and is immutable afterwards, so
// concurrent lookups need no locking.
type node struct {
	literals map[string]*node
	named    *node

	leaves    map[string]*RouteEntry
	catchAlls map[string]*RouteEntry
	fallbacks map[string]*RouteEntry
}

func newNode() *node {
	return &node{}
}

// Matcher resolves (method, path) pairs against a compiled route table.
type Matcher struct {
	root    *node
	entries []*RouteEntry
}

// Compile builds a Matcher from route entries. Registering two entries
// with an identical pattern in the same method scope is a configuration
// error: matching must stay deterministic.
func Compile(entries []*RouteEntry) (*Matcher, error) {
	m := &Matcher{root: newNode()}

	for _, entry := range entries {
		if err := m.insert(entry); err != nil {
			return nil, err
		}
		m.entries = append(m.entries, entry)
	}

	return m, nil
}

// Routes returns the compiled entries in registration order.
func (m *Matcher) Routes() []*RouteEntry {
	routes := make([]*RouteEntry, len(m.entries))
	copy(routes, m.entries)
	return routes
}

// CatchAll materializes the root-level catch-all entry for a request the
// tree did not match, or nil when none is registered. A method-specific
// entry is preferred over a method-agnostic one, and a named catch-all
// over an anonymous fallback. The whole path becomes the remainder, which
// may be empty: the fallback fields the bare root path too.
func (m *Matcher) CatchAll(method, path string) *MatchResult {
	method = strings.ToUpper(method)

	entry := methodLookup(m.root.catchAlls, method)
	if entry == nil {
		entry = methodLookup(m.root.fallbacks, method)
	}
	if entry == nil {
		return nil
	}

	remainder := strings.Join(util.SplitPath(path), "/")
	return &MatchResult{Entry: entry, Params: zipParams(entry, nil, remainder)}
}

// insert adds one entry to the tree.
func (m *Matcher) insert(entry *RouteEntry) error {
	cur := m.root

	for _, seg := range entry.segments {
		switch seg.Kind {
		case SegmentLiteral:
			if cur.literals == nil {
				cur.literals = make(map[string]*node)
			}
			child, ok := cur.literals[seg.Value]
			if !ok {
				child = newNode()
				cur.literals[seg.Value] = child
			}
			cur = child

		case SegmentNamed:
			if cur.named == nil {
				cur.named = newNode()
			}
			cur = cur.named

		case SegmentCatchAll:
			// Terminal by construction; ParsePattern guarantees it.
			slot := &cur.catchAlls
			if entry.Fallback {
				slot = &cur.fallbacks
			}
			if *slot == nil {
				*slot = make(map[string]*RouteEntry)
			}
			if existing, ok := (*slot)[entry.Method]; ok {
				return duplicateError(existing, entry)
			}
			(*slot)[entry.Method] = entry
			return nil
		}
	}

	if cur.leaves == nil {
		cur.leaves = make(map[string]*RouteEntry)
	}
	if existing, ok := cur.leaves[entry.Method]; ok {
		return duplicateError(existing, entry)
	}
	cur.leaves[entry.Method] = entry

	return nil
}

// duplicateError reports an ambiguous registration.
func duplicateError(existing, entry *RouteEntry) error {
	scope := entry.Method
	if scope == "" {
		scope = "any method"
	}
	return util.NewConfigError(entry.Pattern,
		"duplicate route for "+scope+" (already registered as "+existing.Pattern+")")
}

// catchCandidate remembers the deepest catch-all seen while descending,
// together with how much of the path it leaves as remainder and how many
// named captures preceded it.
type catchCandidate struct {
	entry       *RouteEntry
	remainderAt int
	capturedLen int
}

// Match resolves a method and path to the most specific entry, or nil
// when nothing matches. Precedence per tree level: exact literal edge,
// then named-parameter edge, then catch-all (named before anonymous
// fallback). A method-specific entry outranks a method-agnostic one for
// the same path shape. Lookup is greedy per segment with no backtracking;
// the only fallback is the deepest catch-all recorded on the way down.
func (m *Matcher) Match(method, path string) *MatchResult {
	result := m.match(method, path)

	switch {
	case result == nil:
		GetMatcherMetrics().RecordMatch("miss")
	case result.Entry.Fallback:
		GetMatcherMetrics().RecordMatch("catchall")
	default:
		GetMatcherMetrics().RecordMatch("hit")
	}

	return result
}

func (m *Matcher) match(method, path string) *MatchResult {
	method = strings.ToUpper(method)
	segs := util.SplitPath(path)

	var captured []string
	var bestCatch, bestFallback catchCandidate

	cur := m.root
	for i, seg := range segs {
		if e := methodLookup(cur.catchAlls, method); e != nil {
			bestCatch = catchCandidate{entry: e, remainderAt: i, capturedLen: len(captured)}
		}
		if e := methodLookup(cur.fallbacks, method); e != nil {
			bestFallback = catchCandidate{entry: e, remainderAt: i, capturedLen: len(captured)}
		}

		if child, ok := cur.literals[seg]; ok {
			cur = child
			continue
		}
		if cur.named != nil {
			captured = append(captured, seg)
			cur = cur.named
			continue
		}

		return m.resolveCatch(segs, captured, bestCatch, bestFallback)
	}

	if e := methodLookup(cur.leaves, method); e != nil {
		return &MatchResult{Entry: e, Params: zipParams(e, captured, "")}
	}

	return m.resolveCatch(segs, captured, bestCatch, bestFallback)
}

// resolveCatch materializes the deepest recorded catch-all, preferring a
// named catch-all over an anonymous fallback regardless of depth.
func (m *Matcher) resolveCatch(
	segs, captured []string,
	catch, fallback catchCandidate,
) *MatchResult {
	cand := catch
	if cand.entry == nil {
		cand = fallback
	}
	if cand.entry == nil {
		return nil
	}

	remainder := strings.Join(segs[cand.remainderAt:], "/")
	if remainder == "" {
		// Catch-all consumes at least one segment.
		return nil
	}

	return &MatchResult{
		Entry:  cand.entry,
		Params: zipParams(cand.entry, captured[:cand.capturedLen], remainder),
	}
}

// methodLookup picks the method-specific entry over the method-agnostic
// one.
func methodLookup(entries map[string]*RouteEntry, method string) *RouteEntry {
	if entries == nil {
		return nil
	}
	if e, ok := entries[method]; ok {
		return e
	}
	return entries[""]
}

// zipParams pairs the entry's declared parameter names with the captured
// raw values, in declaration order. The catch-all value, when present, is
// always last.
func zipParams(entry *RouteEntry, captured []string, remainder string) []Param {
	var params []Param
	idx := 0

	for _, seg := range entry.segments {
		switch seg.Kind {
		case SegmentNamed:
			if idx < len(captured) {
				params = append(params, Param{Name: seg.Value, Value: captured[idx]})
				idx++
			}
		case SegmentCatchAll:
			params = append(params, Param{Name: seg.Value, Value: remainder})
		}
	}

	return params
}
