package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

// mintToken creates a signed HS256 token the way the auth service issues them
func mintToken(t *testing.T, secret string, userID int, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

// newFakeAuthService mimics the auth service's POST /api/v1/validate contract:
// it parses the bearer token as a real JWT and answers with the claims
func newFakeAuthService(t *testing.T, secret string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/validate" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "No token provided"})
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Invalid token"})
			return
		}

		claims := parsed.Claims.(jwt.MapClaims)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"valid":    true,
			"user_id":  claims["user_id"],
			"username": claims["username"],
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenValidator_ValidToken(t *testing.T) {
	authServer := newFakeAuthService(t, "test-secret")
	validator := NewTokenValidator(authServer.URL, 5*time.Second, slog.Default())

	identity, err := validator.Validate(context.Background(), mintToken(t, "test-secret", 42, "alice"))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.UserID != "42" {
		t.Errorf("UserID = %q, want 42", identity.UserID)
	}
	if identity.Username != "alice" {
		t.Errorf("Username = %q, want alice", identity.Username)
	}
}

func TestTokenValidator_InvalidToken(t *testing.T) {
	authServer := newFakeAuthService(t, "test-secret")
	validator := NewTokenValidator(authServer.URL, 5*time.Second, slog.Default())

	tests := []struct {
		name  string
		token string
	}{
		{"garbage token", "not.a.token"},
		{"wrong secret", mintToken(t, "other-secret", 42, "alice")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validator.Validate(context.Background(), tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenValidator_RejectedWithoutStatus(t *testing.T) {
	// An auth service answering 200 with valid:false is still a rejection
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"valid": false}`))
	}))
	defer server.Close()

	validator := NewTokenValidator(server.URL, 5*time.Second, slog.Default())
	_, err := validator.Validate(context.Background(), "whatever")
	if !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenValidator_Unavailable(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		validator := NewTokenValidator(url, 1*time.Second, slog.Default())
		_, err := validator.Validate(context.Background(), "token")
		if !errors.Is(err, ErrAuthUnavailable) {
			t.Errorf("Validate() error = %v, want ErrAuthUnavailable", err)
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		validator := NewTokenValidator(server.URL, 1*time.Second, slog.Default())
		_, err := validator.Validate(context.Background(), "token")
		if !errors.Is(err, ErrAuthUnavailable) {
			t.Errorf("Validate() error = %v, want ErrAuthUnavailable", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		block := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer server.Close()
		defer close(block)

		validator := NewTokenValidator(server.URL, 50*time.Millisecond, slog.Default())
		_, err := validator.Validate(context.Background(), "token")
		if !errors.Is(err, ErrAuthUnavailable) {
			t.Errorf("Validate() error = %v, want ErrAuthUnavailable", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer server.Close()

		validator := NewTokenValidator(server.URL, 1*time.Second, slog.Default())
		_, err := validator.Validate(context.Background(), "token")
		if !errors.Is(err, ErrAuthUnavailable) {
			t.Errorf("Validate() error = %v, want ErrAuthUnavailable", err)
		}
	})
}
