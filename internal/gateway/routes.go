package gateway

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openshelf/api-gateway/internal/constants"
)

// RouteRule maps an inbound path prefix to an upstream service.
// Prefixes match on path-segment boundaries: /api/v1/books matches
// /api/v1/books and /api/v1/books/7 but never /api/v1/bookmarks.
type RouteRule struct {
	PathPrefix string `yaml:"path_prefix"`
	Service    string `yaml:"service"`

	// Rewrite, when set, replaces the matched prefix before forwarding
	// (e.g. /api/v1/auth -> /api/v1 turns /api/v1/auth/login into /api/v1/login).
	Rewrite string `yaml:"rewrite,omitempty"`

	RequiresAuth    bool `yaml:"requires_auth,omitempty"`
	ForwardIdentity bool `yaml:"forward_identity,omitempty"`

	// TimeoutMS overrides the configured proxy timeout for this route
	TimeoutMS int `yaml:"timeout_ms,omitempty"`
}

// RewritePath applies the rule's prefix rewrite to an already-matched path
func (r *RouteRule) RewritePath(path string) string {
	if r.Rewrite == "" {
		return path
	}
	return r.Rewrite + strings.TrimPrefix(path, r.PathPrefix)
}

func (r *RouteRule) timeout(fallback time.Duration) time.Duration {
	if r.TimeoutMS > 0 {
		return time.Duration(r.TimeoutMS) * time.Millisecond
	}
	return fallback
}

// RouteTable is the immutable, startup-built route list. Rules are kept
// ordered by prefix length so the first segment-boundary match is also the
// longest one.
type RouteTable struct {
	rules []RouteRule
}

// NewRouteTable validates the rules and orders them for longest-prefix matching
func NewRouteTable(rules []RouteRule) (*RouteTable, error) {
	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		if rule.PathPrefix == "" || !strings.HasPrefix(rule.PathPrefix, "/") {
			return nil, fmt.Errorf("route prefix %q must start with /", rule.PathPrefix)
		}
		if rule.Service == "" {
			return nil, fmt.Errorf("route %q has no service", rule.PathPrefix)
		}
		if seen[rule.PathPrefix] {
			return nil, fmt.Errorf("duplicate route prefix %q", rule.PathPrefix)
		}
		seen[rule.PathPrefix] = true
	}

	ordered := make([]RouteRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].PathPrefix) > len(ordered[j].PathPrefix)
	})

	return &RouteTable{rules: ordered}, nil
}

// Match returns the rule with the longest matching path prefix
func (t *RouteTable) Match(path string) (*RouteRule, bool) {
	for i := range t.rules {
		rule := &t.rules[i]
		if path == rule.PathPrefix || strings.HasPrefix(path, rule.PathPrefix+"/") {
			return rule, true
		}
	}
	return nil, false
}

// Rules returns the ordered rule list (for startup validation and logging)
func (t *RouteTable) Rules() []RouteRule {
	return t.rules
}

// DefaultRoutes is the built-in route table for the digital-library services
func DefaultRoutes() []RouteRule {
	return []RouteRule{
		// Auth service: the /auth segment is stripped before forwarding
		{PathPrefix: "/api/v1/auth", Service: constants.ServiceAuth, Rewrite: "/api/v1"},
		{PathPrefix: "/api/v1/users", Service: constants.ServiceAuth},

		// Content service: direct proxying, no path changes
		{PathPrefix: "/api/v1/articles", Service: constants.ServiceContent},
		{PathPrefix: "/api/v1/books", Service: constants.ServiceContent},
		{PathPrefix: "/api/v1/dissertations", Service: constants.ServiceContent},
		{PathPrefix: "/api/v1/article-categories", Service: constants.ServiceContent},
		{PathPrefix: "/api/v1/book-categories", Service: constants.ServiceContent},
		{PathPrefix: "/api/v1/dissertation-categories", Service: constants.ServiceContent},

		// Personalized content: requires a validated user, identity forwarded
		{PathPrefix: "/api/v1/saved-articles", Service: constants.ServiceContent, RequiresAuth: true, ForwardIdentity: true},
		{PathPrefix: "/api/v1/saved-books", Service: constants.ServiceContent, RequiresAuth: true, ForwardIdentity: true},
		{PathPrefix: "/api/v1/saved-dissertations", Service: constants.ServiceContent, RequiresAuth: true, ForwardIdentity: true},
		{PathPrefix: "/api/v1/highlights", Service: constants.ServiceContent, RequiresAuth: true, ForwardIdentity: true},
		{PathPrefix: "/api/v1/book-highlights", Service: constants.ServiceContent, RequiresAuth: true, ForwardIdentity: true},
		{PathPrefix: "/api/v1/dissertation-highlights", Service: constants.ServiceContent, RequiresAuth: true, ForwardIdentity: true},

		{PathPrefix: "/api/v1/search", Service: constants.ServiceSearch},

		// User activity. /views stays public so anonymous views are countable.
		{PathPrefix: "/api/v1/bookmarks", Service: constants.ServiceActivity, RequiresAuth: true},
		{PathPrefix: "/api/v1/ratings", Service: constants.ServiceActivity, RequiresAuth: true},
		{PathPrefix: "/api/v1/rate", Service: constants.ServiceActivity, Rewrite: "/api/v1/ratings", RequiresAuth: true},
		{PathPrefix: "/api/v1/views", Service: constants.ServiceActivity},

		// Media service: the /media segment is stripped before forwarding
		{PathPrefix: "/api/v1/media", Service: constants.ServiceMedia, Rewrite: "/api/v1"},
	}
}

type routesFile struct {
	Routes []RouteRule `yaml:"routes"`
}

// LoadRoutesFile reads a YAML route table. Used when GATEWAY_ROUTES_FILE is
// set; otherwise the built-in DefaultRoutes apply. Loaded once at startup,
// never reloaded.
func LoadRoutesFile(path string) ([]RouteRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var f routesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s defines no routes", path)
	}
	return f.Routes, nil
}
