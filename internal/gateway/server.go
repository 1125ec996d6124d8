package gateway

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openshelf/api-gateway/internal/constants"
)

// ErrorResponse is the uniform error envelope for every failure mode
type ErrorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

const maxJSONBodySize = 10 << 20 // 10MB max for JSON request bodies

// Server wires the middleware pipeline, the route table, and the proxy
type Server struct {
	config    *Config
	registry  *ServiceRegistry
	table     *RouteTable
	gate      *AuthGate
	forwarder *Forwarder
	dashboard *Dashboard
	engine    *gin.Engine
	logger    *slog.Logger
}

// NewServer builds the gateway server from validated startup state
func NewServer(cfg *Config, registry *ServiceRegistry, table *RouteTable, logger *slog.Logger) *Server {
	engine := gin.New()

	validator := NewTokenValidator(cfg.AuthServiceURL, cfg.AuthTimeout, logger)
	gate := NewAuthGate(validator, logger)
	forwarder := NewForwarder(registry, cfg.ProxyTimeout, logger)
	dashboard := NewDashboard(registry, cfg.ProxyTimeout, logger)

	s := &Server{
		config:    cfg,
		registry:  registry,
		table:     table,
		gate:      gate,
		forwarder: forwarder,
		dashboard: dashboard,
		engine:    engine,
		logger:    logger,
	}

	// Middleware - order matters
	engine.Use(securityHeadersMiddleware())
	engine.Use(corsMiddleware(cfg))
	engine.Use(requestIDMiddleware())
	engine.Use(loggerMiddleware(logger))
	engine.Use(jsonBodyLimitMiddleware(maxJSONBodySize))
	engine.Use(gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		logger.ErrorContext(c.Request.Context(), "unhandled panic",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
	}))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Process liveness only; upstream health is not probed here
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, healthResponse{Status: "ok", Service: "api-gateway"})
	}
	s.engine.GET("/health", health)
	s.engine.HEAD("/health", health)

	// Cross-service aggregation
	s.engine.GET("/api/v1/dashboard", s.gate.Middleware(), s.dashboard.Handler)

	// Everything else goes through the route table
	s.engine.NoRoute(s.dispatch)
}

// dispatch resolves the route rule for the path, runs the auth gate when the
// rule demands it, and hands off to the forwarder
func (s *Server) dispatch(c *gin.Context) {
	rule, ok := s.table.Match(c.Request.URL.Path)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Route not found"})
		return
	}

	if rule.RequiresAuth && !s.gate.Check(c) {
		return
	}

	s.forwarder.Forward(c, rule)
}

// Handler exposes the underlying handler for the HTTP server and tests
func (s *Server) Handler() http.Handler {
	return s.engine
}

// securityHeadersMiddleware adds security-related HTTP headers
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		// Prevent clickjacking
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		// Enable XSS protection
		c.Writer.Header().Set("X-XSS-Protection", "1; mode=block")
		// Referrer policy
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// HSTS (only if using HTTPS)
		if c.Request.TLS != nil {
			c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// corsMiddleware applies the CORS policy: reflect any origin when no
// allow-list is configured, otherwise reject unknown origins before routing
func corsMiddleware(cfg *Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			allowed := cfg.AllowAnyOrigin()
			for _, allowedOrigin := range cfg.CORSOrigins {
				if origin == allowedOrigin {
					allowed = true
					break
				}
			}

			if !allowed {
				c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "Origin not allowed"})
				return
			}

			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestIDMiddleware honors an inbound request ID or mints one, and echoes
// it on the response for correlation
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(constants.HeaderRequestID, requestID)
		}
		c.Writer.Header().Set(constants.HeaderRequestID, requestID)
		c.Next()
	}
}

// loggerMiddleware logs HTTP requests
func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.InfoContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"remote_addr", c.Request.RemoteAddr,
			"request_id", c.GetHeader(constants.HeaderRequestID),
		)
		c.Next()
	}
}

// jsonBodyLimitMiddleware limits the size of JSON request bodies to prevent
// DoS. Raw and streaming bodies (uploads, downloads) pass through untouched.
func jsonBodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodDelete && c.Request.Method != http.MethodOptions {
			contentType := c.GetHeader("Content-Type")
			if strings.Contains(contentType, "application/json") {
				if c.Request.ContentLength > maxBytes {
					c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Request body too large"})
					return
				}
				c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
			}
		}
		c.Next()
	}
}
