package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerPrefix = "Bearer "

// identityKey is the gin context key the validated identity is stored under
const identityKey = "gateway.identity"

// AuthGate guards routes that require a validated caller. It fails closed:
// no request is forwarded before the validator has answered.
type AuthGate struct {
	validator *TokenValidator
	logger    *slog.Logger
}

// NewAuthGate creates the auth gate middleware
func NewAuthGate(validator *TokenValidator, logger *slog.Logger) *AuthGate {
	return &AuthGate{
		validator: validator,
		logger:    logger,
	}
}

// Middleware wraps Check for use on explicitly registered routes
func (g *AuthGate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.Check(c) {
			c.Next()
		}
	}
}

// Check extracts and validates the bearer token. On failure it writes the
// error response and returns false; the request must not proceed.
func (g *AuthGate) Check(c *gin.Context) bool {
	// CORS pre-flight never carries credentials
	if c.Request.Method == http.MethodOptions {
		return true
	}

	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "No token provided"})
		return false
	}
	token := strings.TrimPrefix(header, bearerPrefix)

	identity, err := g.validator.Validate(c.Request.Context(), token)
	switch {
	case errors.Is(err, ErrInvalidToken):
		g.logger.InfoContext(c.Request.Context(), "auth gate: token rejected",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid token"})
		return false
	case err != nil:
		// Distinct from a rejection: we could not check, so we refuse to guess
		g.logger.ErrorContext(c.Request.Context(), "auth gate: auth service unavailable",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Auth service unavailable"})
		return false
	}

	c.Set(identityKey, identity)
	return true
}

// IdentityFrom returns the validated identity attached by the auth gate
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok
}
