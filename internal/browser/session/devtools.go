package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
)

// Target is one entry of the DevTools /json/list endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// VersionInfo is the DevTools /json/version payload.
type VersionInfo struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// DevTools talks to a browser's DevTools HTTP endpoint.
type DevTools struct {
	client *resty.Client
}

// NewDevTools returns a client for the endpoint at baseURL (scheme, host and port).
func NewDevTools(baseURL string, timeout time.Duration) *DevTools {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(timeout)
	return &DevTools{client: client}
}

func (d *DevTools) getJSON(ctx context.Context, path string, out interface{}) error {
	res, err := d.client.R().SetContext(ctx).Get(path)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("devtools %s returned HTTP %d", path, res.StatusCode())
	}
	if err := json.Unmarshal(res.Body(), out); err != nil {
		return fmt.Errorf("devtools %s returned malformed JSON: %w", path, err)
	}
	return nil
}

// Targets lists the browser's open targets.
func (d *DevTools) Targets(ctx context.Context) ([]Target, error) {
	var targets []Target
	if err := d.getJSON(ctx, "/json/list", &targets); err != nil {
		return nil, err
	}
	return targets, nil
}

// Version returns the browser version and its browser-level websocket URL.
func (d *DevTools) Version(ctx context.Context) (VersionInfo, error) {
	var info VersionInfo
	err := d.getJSON(ctx, "/json/version", &info)
	return info, err
}

// FirstPage returns the first target of type "page".
func FirstPage(targets []Target) (Target, bool) {
	for _, t := range targets {
		if t.Type == "page" {
			return t, true
		}
	}
	return Target{}, false
}

// NormalizeEndpoint turns a CDP control URL into the DevTools HTTP base URL:
// ws becomes http, wss becomes https, a bare host gets http, and any path or
// query is dropped.
func NormalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", fmt.Errorf("empty CDP endpoint")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid CDP endpoint %q: %w", endpoint, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "http":
		u.Scheme = "http"
	case "wss", "https":
		u.Scheme = "https"
	default:
		return "", fmt.Errorf("unsupported CDP endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("CDP endpoint %q has no host", endpoint)
	}

	return (&url.URL{Scheme: u.Scheme, Host: u.Host}).String(), nil
}
