package scaffold

import (
	"fmt"
	"path"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Method is an HTTP method supported by route registration.
type Method string

// Supported HTTP methods.
const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
)

// ParseMethod resolves a method name case-insensitively.
// Unrecognized names fall back to GET.
func ParseMethod(s string) Method {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	case "PATCH":
		return MethodPatch
	case "OPTIONS":
		return MethodOptions
	default:
		return MethodGet
	}
}

// SecurityMode is the per-route authentication requirement.
type SecurityMode string

// Security modes.
const (
	SecurityNone  SecurityMode = "none"
	SecurityBasic SecurityMode = "basic"
	SecurityJWT   SecurityMode = "jwt"
)

// RegisteredRoute is a normalized route record tracked by the RouteRegistry.
// Records are immutable after creation; the registry has no deletion API and
// is cleared only on process restart.
type RegisteredRoute struct {
	Method Method       `json:"method"`
	Path   string       `json:"fullPath"`
	Secure SecurityMode `json:"secure"`
	Source string       `json:"source"`
}

// NormalizePath posix-normalizes a route path: "." becomes "/", a leading
// slash is ensured, and the trailing slash is stripped except for root.
// Normalization is idempotent.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = path.Clean(p)
	if p == "" || p == "." {
		return "/"
	}
	return p
}

// RouteRegistry stores normalized route records and derives conflicts on
// demand. It accepts duplicates at registration time; duplicates are resolved
// at query time so idempotent re-registration from the same source is not a
// conflict. Safe for concurrent use: the loader writes during startup and the
// routes endpoint reads thereafter.
type RouteRegistry struct {
	mu     sync.RWMutex
	routes []RegisteredRoute
}

// NewRouteRegistry creates an empty route registry.
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{}
}

// Register normalizes the route's path and appends the record.
// No duplicate rejection happens here.
func (r *RouteRegistry) Register(route RegisteredRoute) {
	route.Path = NormalizePath(route.Path)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

// Routes returns a defensive copy of the registered routes in registration order.
func (r *RouteRegistry) Routes() []RegisteredRoute {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RegisteredRoute, len(r.routes))
	copy(out, r.routes)
	return out
}

// Count returns the number of registered route records.
func (r *RouteRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// SortedRoutes returns routes ordered by (method, path, secure), a stable
// deterministic view for display and debugging.
func (r *RouteRegistry) SortedRoutes() []RegisteredRoute {
	routes := r.Routes()
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Method != routes[j].Method {
			return routes[i].Method < routes[j].Method
		}
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Secure < routes[j].Secure
	})
	return routes
}

type conflictGroup struct {
	method  Method
	path    string
	sources []string
}

// DetectConflicts groups routes by (method, path) case-insensitively and
// returns one human-readable message per group registered by two or more
// distinct sources. Paths compare as opaque literals: two parametric segments
// with different names are different paths. Groups whose entries all share a
// single source are not conflicts.
func (r *RouteRegistry) DetectConflicts() []string {
	r.mu.RLock()
	routes := make([]RegisteredRoute, len(r.routes))
	copy(routes, r.routes)
	r.mu.RUnlock()

	groups := make(map[string]*conflictGroup)
	var order []string

	for _, route := range routes {
		key := strings.ToLower(string(route.Method)) + " " + strings.ToLower(route.Path)
		g, ok := groups[key]
		if !ok {
			g = &conflictGroup{method: route.Method, path: route.Path}
			groups[key] = g
			order = append(order, key)
		}
		if !slices.Contains(g.sources, route.Source) {
			g.sources = append(g.sources, route.Source)
		}
	}

	var conflicts []string
	for _, key := range order {
		g := groups[key]
		if len(g.sources) < 2 {
			continue
		}
		conflicts = append(conflicts, fmt.Sprintf(
			"route conflict: %s %s registered by multiple sources: %s",
			g.method, g.path, strings.Join(g.sources, ", ")))
	}
	return conflicts
}
