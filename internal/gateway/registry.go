package gateway

import (
	"fmt"
	"net/url"

	"github.com/openshelf/api-gateway/internal/constants"
)

// ServiceRegistry maps service keys to upstream base URLs.
// Built once at startup from configuration; read-only afterwards, so it is
// shared across request handlers without locking.
type ServiceRegistry struct {
	targets map[string]string
}

// NewServiceRegistry builds the registry from config and verifies every
// base URL parses.
func NewServiceRegistry(cfg *Config) (*ServiceRegistry, error) {
	targets := map[string]string{
		constants.ServiceAuth:     cfg.AuthServiceURL,
		constants.ServiceContent:  cfg.ContentServiceURL,
		constants.ServiceSearch:   cfg.SearchServiceURL,
		constants.ServiceActivity: cfg.ActivityServiceURL,
		constants.ServiceMedia:    cfg.MediaServiceURL,
	}
	for key, base := range targets {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("invalid base URL for service %q: %q", key, base)
		}
	}
	return &ServiceRegistry{targets: targets}, nil
}

// BaseURL returns the base URL for the service key
func (r *ServiceRegistry) BaseURL(key string) (string, bool) {
	base, ok := r.targets[key]
	return base, ok
}

// Validate checks that every route rule points at a registered service
func (r *ServiceRegistry) Validate(rules []RouteRule) error {
	for _, rule := range rules {
		if _, ok := r.targets[rule.Service]; !ok {
			return fmt.Errorf("route %q references unknown service %q", rule.PathPrefix, rule.Service)
		}
	}
	return nil
}

// ServiceDisplayName returns the human name used in client-facing errors
// (e.g. "Content service unavailable")
func ServiceDisplayName(key string) string {
	switch key {
	case constants.ServiceAuth:
		return "Auth service"
	case constants.ServiceContent:
		return "Content service"
	case constants.ServiceSearch:
		return "Search service"
	case constants.ServiceActivity:
		return "Activity service"
	case constants.ServiceMedia:
		return "Media service"
	default:
		return "Upstream service"
	}
}
