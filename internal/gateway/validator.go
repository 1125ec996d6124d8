package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// Identity is the validated caller identity attached to proxied requests
type Identity struct {
	UserID   string
	Username string
}

var (
	// ErrInvalidToken means the auth service looked at the token and rejected it
	ErrInvalidToken = errors.New("invalid token")
	// ErrAuthUnavailable means the auth service could not be reached; callers
	// must not treat this the same as a rejection
	ErrAuthUnavailable = errors.New("auth service unavailable")
)

// TokenValidator verifies bearer tokens against the auth service.
// Every call is a full round trip; results are not cached.
type TokenValidator struct {
	authBaseURL string
	client      *http.Client
	logger      *slog.Logger
}

// NewTokenValidator creates a validator with a bounded timeout so a hung
// auth service cannot stall the gateway
func NewTokenValidator(authBaseURL string, timeout time.Duration, logger *slog.Logger) *TokenValidator {
	return &TokenValidator{
		authBaseURL: authBaseURL,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type validateResponse struct {
	Valid    bool        `json:"valid"`
	UserID   json.Number `json:"user_id"`
	Username string      `json:"username"`
}

// Validate asks the auth service whether the token is good, passing it as
// the caller's own bearer credential. Returns the identity on success,
// ErrInvalidToken on an explicit rejection, ErrAuthUnavailable otherwise.
func (v *TokenValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.authBaseURL+"/api/v1/validate", nil)
	if err != nil {
		return nil, ErrAuthUnavailable
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		v.logger.Warn("token validation: auth service unreachable",
			"auth_url", v.authBaseURL,
			"error", err,
		)
		return nil, ErrAuthUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		v.logger.Warn("token validation: unexpected auth service status",
			"status", resp.StatusCode,
		)
		return nil, ErrAuthUnavailable
	}

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		v.logger.Warn("token validation: failed to decode auth service response", "error", err)
		return nil, ErrAuthUnavailable
	}
	if !body.Valid {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID:   body.UserID.String(),
		Username: body.Username,
	}, nil
}
