package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openshelf/api-gateway/internal/constants"
)

// emptyObject is what a failed slice of the dashboard degrades to
var emptyObject = json.RawMessage(`{}`)

// Dashboard aggregates stats from the content and activity services.
// Each upstream call is independent: one broken service degrades its slice
// to an empty object instead of failing the whole response.
type Dashboard struct {
	registry *ServiceRegistry
	client   *http.Client
	logger   *slog.Logger
}

// NewDashboard creates the aggregation handler
func NewDashboard(registry *ServiceRegistry, timeout time.Duration, logger *slog.Logger) *Dashboard {
	return &Dashboard{
		registry: registry,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

type dashboardResponse struct {
	Content  json.RawMessage `json:"content"`
	Activity json.RawMessage `json:"activity"`
}

// Handler serves GET /api/v1/dashboard. The route is auth-gated; the
// caller's Authorization header is passed along to the activity service.
func (d *Dashboard) Handler(c *gin.Context) {
	ctx := c.Request.Context()
	authHeader := c.GetHeader("Authorization")

	contentBase, _ := d.registry.BaseURL(constants.ServiceContent)
	activityBase, _ := d.registry.BaseURL(constants.ServiceActivity)

	content := emptyObject
	activity := emptyObject

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		body, err := d.fetch(ctx, contentBase+"/api/v1/stats", "")
		if err != nil {
			d.logger.WarnContext(ctx, "dashboard: content stats unavailable", "error", err)
			return
		}
		content = body
	}()
	go func() {
		defer wg.Done()
		body, err := d.fetch(ctx, activityBase+"/api/v1/user/stats", authHeader)
		if err != nil {
			d.logger.WarnContext(ctx, "dashboard: activity stats unavailable", "error", err)
			return
		}
		activity = body
	}()
	wg.Wait()

	c.JSON(http.StatusOK, dashboardResponse{
		Content:  content,
		Activity: activity,
	})
}

func (d *Dashboard) fetch(ctx context.Context, url, authHeader string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("non-JSON response from %s", url)
	}
	return json.RawMessage(body), nil
}
