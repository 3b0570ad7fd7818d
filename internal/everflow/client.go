package everflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eflow-agent/server/internal/metrics"
	"github.com/eflow-agent/server/internal/validator"
	logx "github.com/eflow-agent/server/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	tracerName   = "eflow.everflow"
	apiKeyHeader = "X-Eflow-API-Key"
	maxErrorBody = 2048
)

// Policy decides what a validation failure does to an outbound request.
type Policy int

const (
	// PolicyLenient logs validation failures and sends the request anyway.
	PolicyLenient Policy = iota
	// PolicyStrict blocks the request with an errx.ErrValidation error.
	PolicyStrict
)

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "lenient"
}

// RequestValidator checks outbound calls before they are sent.
type RequestValidator interface {
	Validate(path, method string, payload map[string]any) validator.Result
}

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("everflow %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

func (e *APIError) StatusCode() int {
	return e.Status
}

// Client talks to the Everflow network API.
type Client struct {
	cfg       Config
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	validator RequestValidator
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the traced default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithValidator(v RequestValidator) Option {
	return func(c *Client) { c.validator = v }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithClock overrides the clock used for report date ranges.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("everflow api key is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid everflow base url %q", cfg.BaseURL)
	}
	cfg.withDefaults()

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		now:     time.Now,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type request struct {
	method  string
	path    string
	query   url.Values
	body    map[string]any
	timeout time.Duration
	policy  Policy
}

// payload is what the validator checks: the JSON body, or the query string
// with numeric values as integers.
func (r request) payload() map[string]any {
	if r.body != nil || len(r.query) == 0 {
		return r.body
	}
	p := make(map[string]any, len(r.query))
	for k, vs := range r.query {
		v := r.query.Get(k)
		if len(vs) > 1 {
			p[k] = vs
			continue
		}
		if n, err := strconv.Atoi(v); err == nil {
			p[k] = n
			continue
		}
		p[k] = v
	}
	return p
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Everflow.Request",
		trace.WithAttributes(
			attribute.String("http.method", req.method),
			attribute.String("everflow.path", req.path),
		),
	)
	defer span.End()

	if err := c.validate(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return err
	}

	if req.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", req.path, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set(apiKeyHeader, c.cfg.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.ObserveRequest(req.method, req.path, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(req.method, req.path, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Method: req.method, Path: req.path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("decode %s response: %w", req.path, err)
	}
	return nil
}

func (c *Client) validate(req request) error {
	if c.validator == nil {
		return nil
	}

	res := c.validator.Validate(req.path, req.method, req.payload())
	for _, w := range res.Warnings {
		logx.Debug().Str("path", req.path).Str("warning", w).Msg("Request validation warning")
	}
	if res.Valid {
		return nil
	}

	c.metrics.ObserveValidationFailure(req.path, req.policy.String())
	if req.policy == PolicyStrict {
		return res.Err()
	}
	logx.Warn().
		Str("path", req.path).
		Str("method", req.method).
		Strs("errors", res.Errors).
		Strs("suggestions", res.Suggestions).
		Msg("Request failed validation; sending anyway")
	return nil
}
