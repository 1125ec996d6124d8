package gateway

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds gateway configuration loaded once from the environment
type Config struct {
	ListenAddress string // Address to listen on (e.g. :8000)

	AuthServiceURL     string
	ContentServiceURL  string
	SearchServiceURL   string
	ActivityServiceURL string
	MediaServiceURL    string

	// CORSOrigins is the explicit origin allow-list. Empty means allow any
	// origin (the origin is reflected and credentials are allowed).
	CORSOrigins []string

	ProxyTimeout time.Duration // Per-request timeout for proxied calls
	AuthTimeout  time.Duration // Timeout for token validation calls

	RoutesFile string // Optional YAML file overriding the built-in route table
}

// LoadConfig loads gateway configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8000")

	corsOrigins := os.Getenv("CORS_ORIGINS")
	var allowedOrigins []string
	if corsOrigins != "" && corsOrigins != "*" {
		allowedOrigins = parseCommaSeparatedList(corsOrigins)
	}

	return &Config{
		ListenAddress:      ":" + port,
		AuthServiceURL:     getEnv("AUTH_SERVICE_URL", "http://localhost:8001"),
		ContentServiceURL:  getEnv("CONTENT_SERVICE_URL", "http://localhost:8002"),
		SearchServiceURL:   getEnv("SEARCH_SERVICE_URL", "http://localhost:8003"),
		ActivityServiceURL: getEnv("USER_ACTIVITY_SERVICE_URL", "http://localhost:8004"),
		MediaServiceURL:    getEnv("MEDIA_SERVICE_URL", "http://localhost:8005"),
		CORSOrigins:        allowedOrigins,
		ProxyTimeout:       getEnvSeconds("PROXY_TIMEOUT_SEC", 30),
		AuthTimeout:        getEnvSeconds("AUTH_TIMEOUT_SEC", 5),
		RoutesFile:         os.Getenv("GATEWAY_ROUTES_FILE"),
	}, nil
}

// AllowAnyOrigin reports whether CORS is configured to reflect any origin
func (c *Config) AllowAnyOrigin() bool {
	return len(c.CORSOrigins) == 0
}

// parseCommaSeparatedList splits a comma-separated string into a slice
func parseCommaSeparatedList(s string) []string {
	items := strings.Split(s, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSec int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defaultSec) * time.Second
}
