// Package client provides the HTTP client for the Lightdash REST API.
// It issues single-attempt requests and maps transport failures and upstream
// status codes into the gateway's error taxonomy; the retry policy lives in
// the dispatcher.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/auth"
	"github.com/datavis-labs/lightdash-mcp-server/internal/config"
	"github.com/datavis-labs/lightdash-mcp-server/internal/tracing"
)

// Authenticator is the interface for adding authentication to requests.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

// Client is an HTTP client for the Lightdash API.
type Client struct {
	httpClient    *http.Client
	config        *config.Config
	logger        *zap.Logger
	rateLimiter   *rate.Limiter
	authenticator Authenticator
	version       string
}

// New creates a new API client.
func New(cfg *config.Config, logger *zap.Logger, version string) (*Client, error) {
	authenticator, err := auth.New(cfg.APIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}
	if !cfg.TLSVerify {
		tlsConfig.InsecureSkipVerify = true
		logger.Warn("TLS certificate verification is DISABLED - this is insecure and should only be used for testing",
			zap.String("service_url", cfg.ServiceURL),
		)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     tlsConfig,
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	var rateLimiter *rate.Limiter
	if cfg.EnableRateLimit {
		rateLimiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)
	}

	if version == "" {
		version = "dev"
	}

	return &Client{
		httpClient:    httpClient,
		config:        cfg,
		logger:        logger,
		rateLimiter:   rateLimiter,
		authenticator: authenticator,
		version:       version,
	}, nil
}

// Request represents an HTTP request to the Lightdash API.
type Request struct {
	Method string
	Path   string // e.g. "/api/v1/org/projects"
	Query  map[string]string
	Body   any
}

// Response represents a raw HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// envelope is the Lightdash response wrapper. Every endpoint answers either
// {"status":"ok","results":...} or {"status":"error","error":{...}}.
type envelope struct {
	Status  string          `json:"status"`
	Results json.RawMessage `json:"results"`
	Error   *upstreamError  `json:"error"`
}

type upstreamError struct {
	Name       string `json:"name"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// Call executes one request and decodes the Lightdash envelope, returning the
// results payload. Failures come back as structured taxonomy errors: the
// dispatcher decides retries from their retryable flag. Call makes exactly
// one upstream attempt.
func (c *Client) Call(ctx context.Context, req *Request) (any, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		message := ""
		var env envelope
		if jsonErr := json.Unmarshal(resp.Body, &env); jsonErr == nil && env.Error != nil {
			message = env.Error.Message
			if env.Error.Name != "" {
				message = env.Error.Name + ": " + message
			}
		}
		return nil, apierrors.FromHTTPStatus(resp.StatusCode, message)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, apierrors.NewMalformedUpstreamResponse(
			fmt.Sprintf("response is not a Lightdash envelope: %v", err))
	}
	if env.Status != "ok" {
		return nil, apierrors.NewMalformedUpstreamResponse(
			fmt.Sprintf("success HTTP status with envelope status %q", env.Status))
	}

	var results any
	if len(env.Results) > 0 {
		if err := json.Unmarshal(env.Results, &results); err != nil {
			return nil, apierrors.NewMalformedUpstreamResponse(
				fmt.Sprintf("results payload is not valid JSON: %v", err))
		}
	}
	return results, nil
}

// do executes a single HTTP request against the Lightdash instance.
func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	requestURL := c.config.ServiceURL + req.Path
	if len(req.Query) > 0 {
		params := url.Values{}
		for k, v := range req.Query {
			params.Add(k, v)
		}
		requestURL = fmt.Sprintf("%s?%s", requestURL, params.Encode())
	}

	var bodyReader io.Reader
	if req.Body != nil {
		bodyBytes, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", fmt.Sprintf("lightdash-mcp-server/%s", c.version))

	if err := c.authenticator.Authenticate(httpReq); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	spanCtx, span := tracing.UpstreamSpan(ctx, req.Method, req.Path)
	defer span.End()
	httpReq = httpReq.WithContext(spanCtx)

	c.logger.Debug("Executing HTTP request",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
	)

	startTime := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(startTime)

	if err != nil {
		tracing.RecordError(span, err)
		c.logger.Warn("HTTP request failed",
			zap.Error(err),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Duration("duration", duration),
		)
		return nil, classifyTransportError(err)
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, apierrors.NewUpstreamUnavailable(fmt.Sprintf("failed to read response body: %v", err))
	}

	c.logger.Debug("HTTP request completed",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", duration),
		zap.Int("response_size", len(body)),
	)

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
		Headers:    httpResp.Header,
	}, nil
}

// classifyTransportError maps network-level failures onto the taxonomy.
// Timeouts and connection failures are transient; a caller-cancelled context
// is surfaced unchanged.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.NewUpstreamUnavailable("upstream call timed out")
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierrors.NewUpstreamUnavailable("upstream call timed out")
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.ENETUNREACH) ||
			errors.Is(opErr.Err, syscall.EHOSTUNREACH) ||
			errors.Is(opErr.Err, syscall.ETIMEDOUT) {
			return apierrors.NewUpstreamUnavailable(err.Error())
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.Temporary() {
		return apierrors.NewUpstreamUnavailable(err.Error())
	}

	// Connection-level failures reported by the HTTP client come wrapped in
	// url.Error; treat the remainder as transient network trouble.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return apierrors.NewUpstreamUnavailable(err.Error())
	}

	return apierrors.New(apierrors.KindUpstreamError, err.Error())
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
