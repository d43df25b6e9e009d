// Package webapi talks to Steam web api authentication and device authorization services
package webapi

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

	"golang.org/x/time/rate"

	"github.com/nkiryanov/fireshare/internal/logger"
	"github.com/nkiryanov/fireshare/internal/metrics"
)

const (
	DefaultAddr       = "https://api.steampowered.com"
	defaultTimeout    = 10 * time.Second
	defaultRPS        = 5
	defaultDeviceName = "Friendly Fire-Share"
	maxResponseBytes  = 1 << 20
)

type Config struct {
	// Steam web api address
	// If not set than default is used
	Addr string

	// Timeout of a single call
	Timeout time.Duration

	// Outgoing requests per second and burst
	RPS   float64
	Burst int

	// Name shown to the user on QR login confirmation
	DeviceName string
}

type Client struct {
	addr       string
	timeout    time.Duration
	deviceName string

	client  *http.Client
	limiter *rate.Limiter
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewClient(cfg Config, l logger.Logger, m *metrics.Metrics) *Client {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RPS <= 0 {
		cfg.RPS = defaultRPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RPS) + 1
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceName
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		addr:       strings.TrimRight(cfg.Addr, "/"),
		timeout:    cfg.Timeout,
		deviceName: cfg.DeviceName,
		client:     &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:     l,
		metrics:    m,
	}
}

// Call 'https://<addr>/<service>/<method>/v1' and decode {"response": ...} envelope into out
func (c *Client) call(ctx context.Context, httpMethod string, service string, method string, params url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.ObserveSteamCall(method, outcome(err), time.Since(start))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return newError(CodeTransport, method, 0, 0, fmt.Errorf("rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/%s/v1/", c.addr, service, method)

	var req *http.Request
	switch httpMethod {
	case http.MethodGet:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	default:
		req, err = http.NewRequestWithContext(ctx, httpMethod, endpoint, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return newError(CodeUnknown, method, 0, 0, fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return newError(CodeTransport, method, 0, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	eresult := parseEResult(resp.Header.Get("X-eresult"))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return newError(CodeAuth, method, resp.StatusCode, eresult, errors.New("unauthorized"))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		c.logger.Warn("Steam service unavailable", "method", method, "status_code", resp.StatusCode)
		return newError(CodeTransport, method, resp.StatusCode, eresult, fmt.Errorf("status code %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return newError(CodeUnknown, method, resp.StatusCode, eresult, fmt.Errorf("unexpected status code %d", resp.StatusCode))
	case eresult != eresultOK:
		return newError(eresultCode(eresult), method, resp.StatusCode, eresult, fmt.Errorf("eresult %d", eresult))
	}

	var envelope struct {
		Response json.RawMessage `json:"response"`
	}
	err = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&envelope)
	if err != nil {
		return newError(CodeTransport, method, resp.StatusCode, eresult, fmt.Errorf("failed to decode response: %w", err))
	}

	if out == nil || len(envelope.Response) == 0 {
		return nil
	}

	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return newError(CodeTransport, method, resp.StatusCode, eresult, fmt.Errorf("failed to decode response: %w", err))
	}

	c.logger.Debug("Steam call done", "method", method, "took", time.Since(start))
	return nil
}

func outcome(err error) string {
	var steamErr *Error
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &steamErr) && steamErr.Code == CodeAuth:
		return metrics.OutcomeAuthFailure
	case errors.As(err, &steamErr) && steamErr.Code == CodeTransport:
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeError
	}
}

// Steam encodes 64-bit values as json strings, but not always
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = flexString(n.String())
	return nil
}
