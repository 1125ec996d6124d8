package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/api-gateway/internal/constants"
)

// hopByHopHeaders are connection-scoped and never forwarded in either direction
var hopByHopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder performs the proxy call for a matched route and relays the
// upstream response as-is. Bodies are streamed, never buffered in full.
type Forwarder struct {
	registry       *ServiceRegistry
	transport      http.RoundTripper
	defaultTimeout time.Duration
	logger         *slog.Logger
}

// NewForwarder creates a forwarder using the shared default transport
func NewForwarder(registry *ServiceRegistry, defaultTimeout time.Duration, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		registry:       registry,
		transport:      http.DefaultTransport,
		defaultTimeout: defaultTimeout,
		logger:         logger,
	}
}

// Forward proxies the request to the rule's upstream service
func (f *Forwarder) Forward(c *gin.Context, rule *RouteRule) {
	req := c.Request

	base, ok := f.registry.BaseURL(rule.Service)
	if !ok {
		// Registry is validated against the route table at startup
		f.logger.ErrorContext(req.Context(), "proxy: unknown service key", "service", rule.Service)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	targetURL, err := url.Parse(base)
	if err != nil {
		f.logger.ErrorContext(req.Context(), "proxy: invalid target URL",
			"service", rule.Service,
			"base", base,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}

	// The timeout context is derived from the request context, so a client
	// disconnect cancels the upstream call as well
	ctx, cancel := context.WithTimeout(req.Context(), rule.timeout(f.defaultTimeout))
	defer cancel()

	// Build outgoing request: same method, rewritten path, query, streamed body
	outReq := req.Clone(ctx)
	outReq.URL.Scheme = targetURL.Scheme
	outReq.URL.Host = targetURL.Host
	outReq.URL.Path = rule.RewritePath(req.URL.Path)
	outReq.URL.RawPath = ""
	outReq.URL.RawQuery = req.URL.RawQuery
	outReq.Host = targetURL.Host
	outReq.RequestURI = ""
	if req.Body != nil {
		outReq.Body = req.Body
		outReq.ContentLength = req.ContentLength
		outReq.GetBody = req.GetBody
	}

	for _, h := range hopByHopHeaders {
		outReq.Header.Del(h)
	}

	// Identity headers are gateway-owned: drop whatever the client sent, then
	// inject the validated identity only where the route asks for it
	outReq.Header.Del(constants.HeaderUserID)
	outReq.Header.Del(constants.HeaderUserName)
	if rule.ForwardIdentity {
		if identity, ok := IdentityFrom(c); ok {
			outReq.Header.Set(constants.HeaderUserID, identity.UserID)
			outReq.Header.Set(constants.HeaderUserName, identity.Username)
		}
	}

	setForwardedHeaders(outReq, req)

	f.logger.DebugContext(req.Context(), "proxy: forwarding request",
		"method", req.Method,
		"path", req.URL.Path,
		"upstream_path", outReq.URL.Path,
		"service", rule.Service,
		"target", base,
	)

	resp, err := f.transport.RoundTrip(outReq)
	if err != nil {
		f.writeUpstreamError(c, rule, base, err)
		return
	}
	defer resp.Body.Close()

	f.logger.DebugContext(req.Context(), "proxy: upstream response",
		"status", resp.StatusCode,
		"service", rule.Service,
		"path", req.URL.Path,
	)

	// Relay status, headers, and body verbatim; upstream error statuses are
	// the upstream's answer, not a gateway failure
	header := c.Writer.Header()
	for k, vv := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	c.Writer.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(c.Writer, resp.Body)
}

func (f *Forwarder) writeUpstreamError(c *gin.Context, rule *RouteRule, target string, err error) {
	req := c.Request

	// Client disconnect is normal; avoid noisy ERROR logs
	if errors.Is(err, context.Canceled) || req.Context().Err() == context.Canceled {
		f.logger.DebugContext(req.Context(), "proxy: upstream request canceled by client",
			"service", rule.Service,
			"target", target,
		)
		c.Abort()
		return
	}

	f.logger.ErrorContext(req.Context(), "proxy: upstream request failed",
		"method", req.Method,
		"path", req.URL.Path,
		"service", rule.Service,
		"target", target,
		"error", err,
	)
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error: ServiceDisplayName(rule.Service) + " unavailable",
	})
}

func setForwardedHeaders(outReq, req *http.Request) {
	if clientIP := req.Header.Get("X-Forwarded-For"); clientIP != "" {
		// Keep only the first hop to avoid accumulating a long chain
		if firstIP := strings.TrimSpace(strings.Split(clientIP, ",")[0]); firstIP != "" {
			outReq.Header.Set("X-Forwarded-For", firstIP)
		}
	} else if req.RemoteAddr != "" {
		if idx := strings.LastIndex(req.RemoteAddr, ":"); idx > 0 {
			outReq.Header.Set("X-Forwarded-For", req.RemoteAddr[:idx])
		}
	}

	if proto := req.Header.Get("X-Forwarded-Proto"); proto != "" {
		outReq.Header.Set("X-Forwarded-Proto", proto)
	} else if req.TLS != nil {
		outReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		outReq.Header.Set("X-Forwarded-Proto", "http")
	}

	if host := req.Header.Get("X-Forwarded-Host"); host != "" {
		outReq.Header.Set("X-Forwarded-Host", host)
	} else {
		outReq.Header.Set("X-Forwarded-Host", req.Host)
	}
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(header, h) {
			return true
		}
	}
	return false
}
