package places

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/pawpoint/pawpoint/internal/errors"
	"github.com/pawpoint/pawpoint/internal/telemetry"
)

// ClientConfig holds the transport settings for one Overpass client.
// Everything is explicit so tests can point a client at a stub server
// and two clients with different endpoints can coexist in one process.
type ClientConfig struct {
	// Endpoint is the Overpass interpreter URL.
	Endpoint string
	// UserAgent identifies this deployment to the shared public
	// service. Put real contact info here.
	UserAgent string
	// Timeout bounds a single HTTP exchange. It does not change
	// between attempts.
	Timeout time.Duration
	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int
	// BaseBackoff is the delay before the first retry. It doubles
	// after every attempt, uncapped.
	BaseBackoff time.Duration
}

// DefaultClientConfig returns settings for the public Overpass instance.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Endpoint:    "https://overpass-api.de/api/interpreter",
		UserAgent:   "pawpoint/1.0 (contact: ops@pawpoint.app)",
		Timeout:     45 * time.Second,
		MaxAttempts: 6,
		BaseBackoff: 1250 * time.Millisecond,
	}
}

// Client executes Overpass queries with bounded exponential-backoff
// retry. It holds no mutable state beyond the underlying http.Client
// pool, so one instance is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	config     ClientConfig
}

// NewClient creates an Overpass client. Zero-valued config fields fall
// back to the defaults.
func NewClient(config ClientConfig) *Client {
	defaults := DefaultClientConfig()
	if config.Endpoint == "" {
		config.Endpoint = defaults.Endpoint
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = defaults.BaseBackoff
	}

	return &Client{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
	}
}

// transientStatus reports whether an HTTP status is expected to clear
// on its own: the shared Overpass instances shed load with 429 and the
// usual gateway errors.
func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Execute POSTs a query and returns the decoded response. Transient
// statuses, network failures and truncated bodies are retried with
// doubling backoff; any other non-2xx status aborts immediately since
// a malformed query or an auth problem will not fix itself. After the
// attempt budget is spent the last cause is wrapped in a transport
// error.
func (c *Client) Execute(ctx context.Context, query string) (*overpassResponse, error) {
	logger := telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
		"operation": "overpass_execute",
		"endpoint":  c.config.Endpoint,
		"service":   "places",
	})

	backoff := c.config.BaseBackoff
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := c.attempt(ctx, query)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("Overpass request succeeded after retry")
			}
			return resp, nil
		}

		var appErr *apperrors.AppError
		if apperrors.AsAppError(err, &appErr) && appErr.Type == apperrors.ErrorTypeExternal {
			// Permanent upstream rejection, retrying is pointless.
			logger.WithError(err).WithField("attempt", attempt).Error("Overpass rejected request")
			return nil, err
		}

		lastErr = err
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
		}).Warn("Overpass request failed, will retry")

		if attempt == c.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, apperrors.NewTransportError(c.config.MaxAttempts, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, apperrors.NewTransportError(c.config.MaxAttempts, lastErr)
}

// attempt performs one HTTP exchange.
func (c *Client) attempt(ctx context.Context, query string) (*overpassResponse, error) {
	form := url.Values{}
	form.Set("data", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build overpass request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("overpass request failed: %w", err)
	}
	defer resp.Body.Close()

	if transientStatus(resp.StatusCode) {
		return nil, fmt.Errorf("overpass returned transient status %s", resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.NewExternalError("overpass", "execute",
			fmt.Errorf("unexpected status %s", resp.Status))
	}

	var decoded overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode overpass response: %w", err)
	}
	return &decoded, nil
}
