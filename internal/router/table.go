// Package router implements the file-path-to-URL mapping: canonical
// URL derivation, route classification, a total ordering over routes used
// to resolve overlapping patterns, and request-path lookup.
package router

import (
	"sort"
	"strings"
)

// Table is an ordered, immutable sequence of Routes, sorted once at
// construction according to the total order in less.
type Table struct {
	routes []Route
}

// NewTable sorts routes into their total order and returns a Table. The
// sort is stable, so routes with equal order are kept in discovery order.
func NewTable(routes []Route) *Table {
	sorted := append([]Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return less(sorted[i], sorted[j])
	})
	return &Table{routes: sorted}
}

// Routes returns the routes in their sorted order.
func (t *Table) Routes() []Route {
	return t.routes
}

// less implements the total order: Static < Dynamic < Tail; within a
// kind, by segment count (ascending for Static/Dynamic, descending for
// Tail so longer tails win), then lexicographically: by url_path string
// for Static, by segment sequence for Dynamic and Tail.
func less(a, b Route) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	switch a.Kind {
	case Static:
		if a.SegmentCount != b.SegmentCount {
			return a.SegmentCount < b.SegmentCount
		}
		return a.URLPath < b.URLPath
	case Dynamic:
		if a.SegmentCount != b.SegmentCount {
			return a.SegmentCount < b.SegmentCount
		}
		return compareSegmentSequences(a.Segments, b.Segments) < 0
	default: // Tail
		if a.SegmentCount != b.SegmentCount {
			return a.SegmentCount > b.SegmentCount
		}
		return compareSegmentSequences(a.Segments, b.Segments) < 0
	}
}

// Match is the outcome of a successful Lookup: the matched Route plus
// any Parameter/Tail bindings extracted from the request path.
type Match struct {
	Route  Route
	Params map[string]string
}

// Lookup scans the table in sorted order and returns the first route
// whose pattern matches requestPath.
func (t *Table) Lookup(requestPath string) (Match, bool) {
	reqSegs := splitPath(requestPath)
	for _, route := range t.routes {
		if params, ok := match(route, reqSegs); ok {
			return Match{Route: route, Params: params}, true
		}
	}
	return Match{}, false
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func match(route Route, reqSegs []string) (map[string]string, bool) {
	switch route.Kind {
	case Static:
		if len(route.Segments) != len(reqSegs) {
			return nil, false
		}
		for i, seg := range route.Segments {
			if seg.Payload != reqSegs[i] {
				return nil, false
			}
		}
		return map[string]string{}, true
	case Dynamic:
		if len(route.Segments) != len(reqSegs) {
			return nil, false
		}
		params := map[string]string{}
		for i, seg := range route.Segments {
			switch seg.Kind {
			case Literal:
				if seg.Payload != reqSegs[i] {
					return nil, false
				}
			case Parameter:
				params[seg.Payload] = reqSegs[i]
			}
		}
		return params, true
	default: // Tail
		fixed := route.Segments[:len(route.Segments)-1]
		if len(fixed) > len(reqSegs) {
			return nil, false
		}
		params := map[string]string{}
		for i, seg := range fixed {
			switch seg.Kind {
			case Literal:
				if seg.Payload != reqSegs[i] {
					return nil, false
				}
			case Parameter:
				params[seg.Payload] = reqSegs[i]
			}
		}
		tailSeg := route.Segments[len(route.Segments)-1]
		params[tailSeg.Payload] = strings.Join(reqSegs[len(fixed):], "/")
		return params, true
	}
}
