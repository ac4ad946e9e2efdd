// Package adspower is a client for the local AdsPower API, which starts and stops
// the anti-detect browser profiles the checker drives.
package adspower

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/rolecheck/internal/checkerr"
	"github.com/xkilldash9x/rolecheck/internal/config"
)

// successCode is the envelope code AdsPower returns on success.
const successCode = 0

const (
	pathOpen  = "/api/v1/browser/active"
	pathClose = "/api/v1/browser/close"
	pathList  = "/api/v1/user/list"
)

// envelope wraps every AdsPower response.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// ProfileInfo is one browser profile as listed by AdsPower.
type ProfileInfo struct {
	UserID       string     `json:"user_id"`
	SerialNumber FlexString `json:"serial_number"`
	Name         string     `json:"name"`
	GroupName    string     `json:"group_name"`
	Remark       string     `json:"remark"`
}

// FlexString accepts a JSON string or number. AdsPower reports serial numbers as either.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexString(v)
		return nil
	}
	*f = FlexString(s)
	return nil
}

// Client calls the AdsPower local API. Calls are paced by a shared rate limiter
// because the API rejects bursts.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a client from configuration.
func New(cfg config.AdsPowerConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimRight(cfg.APIURL, "/"))
	client.SetTimeout(timeout)
	client.SetRetryCount(2)
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(3 * time.Second)
	client.AddRetryCondition(retryReads)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	logger = logger.Named("adspower")
	logger.Info("AdsPower client initialized.", zap.String("api_url", cfg.APIURL), zap.Bool("api_key", cfg.APIKey != ""))
	return &Client{
		http:    client,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

// retryReads retries failed or 5xx GET requests only. A repeated POST could start
// or stop a profile twice.
func retryReads(res *resty.Response, err error) bool {
	if res == nil || res.Request == nil || res.Request.Method != http.MethodGet {
		return false
	}
	return err != nil || res.StatusCode() >= http.StatusInternalServerError
}

// call performs one request and returns the envelope's data on success.
func (c *Client) call(ctx context.Context, op string, req func(r *resty.Request) (*resty.Response, error)) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	res, err := req(c.http.R().SetContext(ctx))
	if err != nil {
		return nil, checkerr.Wrap(err, checkerr.KindExternalService, op, "request to AdsPower failed")
	}
	if res.IsError() {
		return nil, checkerr.Newf(checkerr.KindExternalService, op, "AdsPower returned HTTP %d", res.StatusCode())
	}

	var env envelope
	if err := json.Unmarshal(res.Body(), &env); err != nil {
		body := string(res.Body())
		if len(body) > 200 {
			body = body[:200]
		}
		c.logger.Error("AdsPower response is not JSON.", zap.String("op", op), zap.String("body", body))
		return nil, checkerr.Wrap(err, checkerr.KindExternalService, op, "malformed AdsPower response")
	}
	if env.Code != successCode {
		msg := env.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, checkerr.Newf(checkerr.KindExternalService, op, "AdsPower error %d: %s", env.Code, msg)
	}
	return env.Data, nil
}

// OpenSession starts the browser for the profile with the given serial number and
// returns the URL of its DevTools endpoint.
func (c *Client) OpenSession(ctx context.Context, serial string) (string, error) {
	const op = "adspower.OpenSession"
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return "", checkerr.New(checkerr.KindExternalService, op, "serial number is empty")
	}

	data, err := c.call(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"serial_number": serial}).Post(pathOpen)
	})
	if err != nil {
		c.logger.Error("Failed to open browser.", zap.String("serial_number", serial), zap.Error(err))
		return "", err
	}

	var payload map[string]interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return "", checkerr.Wrap(err, checkerr.KindExternalService, op, "unexpected data in AdsPower response")
		}
	}
	controlURL, ok := FindControlURL(payload)
	if !ok {
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		return "", checkerr.Newf(checkerr.KindExternalService, op, "no control URL in AdsPower response (keys: %s)", strings.Join(keys, ", "))
	}
	c.logger.Info("Browser opened.", zap.String("serial_number", serial), zap.String("control_url", controlURL))
	return controlURL, nil
}

// CloseSession stops the browser for serial. Callers treat it as best effort: a
// false result is logged, never fatal.
func (c *Client) CloseSession(ctx context.Context, serial string) (bool, error) {
	const op = "adspower.CloseSession"
	serial = strings.TrimSpace(serial)
	if serial == "" {
		c.logger.Warn("Empty serial number, not closing browser.")
		return false, nil
	}

	_, err := c.call(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(map[string]string{"serial_number": serial}).Post(pathClose)
	})
	if err != nil {
		c.logger.Warn("Failed to close browser.", zap.String("serial_number", serial), zap.Error(err))
		return false, err
	}
	c.logger.Info("Browser closed.", zap.String("serial_number", serial))
	return true, nil
}

// ListProfiles returns the profiles known to AdsPower.
func (c *Client) ListProfiles(ctx context.Context) ([]ProfileInfo, error) {
	const op = "adspower.ListProfiles"
	data, err := c.call(ctx, op, func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("page_size", "100").Get(pathList)
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		List []ProfileInfo `json:"list"`
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			return nil, checkerr.Wrap(err, checkerr.KindExternalService, op, fmt.Sprintf("unexpected profile list: %.100s", data))
		}
	}
	c.logger.Info("Listed profiles.", zap.Int("count", len(body.List)))
	return body.List, nil
}
