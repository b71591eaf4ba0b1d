package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuelReschke/ledgersync/internal/pkg/config"
)

const maxResponseBytes = 2 << 20

// ErrNotConfigured is returned when no access token or base URL is set.
var ErrNotConfigured = errors.New("accounting API not configured")

// ErrResponseTooLarge is returned for successful responses above the read limit.
var ErrResponseTooLarge = errors.New("accounting API response too large")

// StatusError is returned for non-2xx responses from the remote API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	if body == "" {
		return fmt.Sprintf("accounting API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("accounting API returned status %d: %s", e.StatusCode, body)
}

// NotFound reports whether the entity is gone or not visible to the token.
func (e *StatusError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// Client fetches the authoritative representation of entities from the
// remote accounting API.
type Client struct {
	AccessToken  string
	RealmID      string
	APIBaseURL   string
	MinorVersion string
	FetchTimeout time.Duration

	HTTPClient *http.Client
}

func NewClient(cfg config.Accounting) *Client {
	return &Client{
		AccessToken:  cfg.AccessToken,
		RealmID:      cfg.RealmID,
		APIBaseURL:   cfg.APIBaseURL,
		MinorVersion: cfg.MinorVersion,
		FetchTimeout: cfg.FetchTimeout,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) Configured() bool {
	return c != nil && strings.TrimSpace(c.AccessToken) != "" && strings.TrimSpace(c.APIBaseURL) != ""
}

// FetchEntity returns the JSON object of one entity, unwrapped from the
// {"<EntityType>": {...}, "time": ...} response envelope.
func (c *Client) FetchEntity(ctx context.Context, realmID, entityType, entityID string) (json.RawMessage, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	realm := strings.TrimSpace(realmID)
	if realm == "" {
		realm = strings.TrimSpace(c.RealmID)
	}
	id := strings.TrimSpace(entityID)
	if realm == "" || id == "" || strings.TrimSpace(entityType) == "" {
		return nil, errors.New("realm id, entity type and entity id are required")
	}

	u, err := url.Parse(fmt.Sprintf("%s/v3/company/%s/%s/%s",
		strings.TrimRight(c.APIBaseURL, "/"),
		url.PathEscape(realm),
		strings.ToLower(entityType),
		url.PathEscape(id),
	))
	if err != nil {
		return nil, err
	}
	if c.MinorVersion != "" {
		q := u.Query()
		q.Set("minorversion", c.MinorVersion)
		u.RawQuery = q.Encode()
	}

	if c.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.FetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.AccessToken))
	req.Header.Set("Accept", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", entityType, id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s %s: %w", entityType, id, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(body) > maxResponseBytes {
			body = body[:maxResponseBytes]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("fetch %s %s: %w (limit %d bytes)", entityType, id, ErrResponseTooLarge, maxResponseBytes)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", entityType, id, err)
	}
	for key, raw := range envelope {
		if strings.EqualFold(key, entityType) {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("response for %s %s has no %s object", entityType, id, entityType)
}
