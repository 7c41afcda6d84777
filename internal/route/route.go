// Package route implements a static, config-driven longest-prefix match
// from an inbound request path to an upstream target, plus the generic
// upstream-forwarding transport (hop-by-hop header stripping, streaming
// response passthrough).
package route

import (
	"sort"
	"strings"
)

// Route is one configured mapping from a path prefix to an upstream.
type Route struct {
	ID      string
	Prefix  string
	Service string
	Target  string // upstream base URL
}

// Entry mirrors config.RouteEntry; kept separate so this package does not
// import internal/config (routes are handed in already parsed).
type Entry struct {
	RouteID string
	Prefix  string
	Service string
	Target  string
}

// Table resolves an inbound path to the longest matching configured prefix.
type Table struct {
	routes []Route // sorted by prefix length, longest first
}

// NewTable builds a Table from entries, pre-sorting by prefix length so
// Match is a simple linear scan that returns the first (longest) hit.
func NewTable(entries []Entry) *Table {
	routes := make([]Route, len(entries))
	for i, e := range entries {
		routes[i] = Route{ID: e.RouteID, Prefix: e.Prefix, Service: e.Service, Target: e.Target}
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	return &Table{routes: routes}
}

// Match finds the longest configured prefix matching path and returns the
// route plus the path with that prefix stripped (always leading-slash). The
// second return is false when no configured prefix matches, which the
// caller turns into a 404.
func (t *Table) Match(path string) (Route, string, bool) {
	for _, r := range t.routes {
		if strings.HasPrefix(path, r.Prefix) {
			rest := strings.TrimPrefix(path, r.Prefix)
			if rest == "" || rest[0] != '/' {
				rest = "/" + rest
			}
			return r, rest, true
		}
	}
	return Route{}, "", false
}
