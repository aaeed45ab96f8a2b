package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"
	"github.com/goccy/go-json"
	"github.com/opentracing-contrib/go-stdlib/nethttp"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/petermattis/goid"
	"github.com/pkg/errors"
	"github.com/scusemua/livy-notebook/common/livy"
	"github.com/scusemua/livy-notebook/common/metrics"
	"github.com/scusemua/livy-notebook/common/utils"
	"golang.org/x/time/rate"
)

const (
	// DefaultRequestTimeout bounds a single attempt, including reading the response body.
	DefaultRequestTimeout = 60 * time.Second

	// RequestedByHeader is required by gateways that enable CSRF protection.
	RequestedByHeader = "X-Requested-By"
	RequestedByValue  = "livy-notebook"

	maxResponseBodySize = 32 << 20
)

// LivyClient issues requests against the REST surface of a gateway.
type LivyClient interface {
	// Endpoint returns the endpoint that this client talks to.
	Endpoint() *livy.Endpoint

	// Do issues a request and decodes the JSON response body into out, unless out is nil.
	Do(ctx context.Context, method string, path string, body interface{}, out interface{}) error

	PostSession(ctx context.Context, properties *livy.SessionProperties) (*livy.SessionInfo, error)
	GetSessions(ctx context.Context) (*livy.SessionList, error)
	GetSession(ctx context.Context, sessionId int) (*livy.SessionInfo, error)
	DeleteSession(ctx context.Context, sessionId int) error
	PostStatement(ctx context.Context, sessionId int, req *livy.StatementRequest) (*livy.Statement, error)
	GetStatement(ctx context.Context, sessionId int, statementId int) (*livy.Statement, error)
	PostCompletion(ctx context.Context, sessionId int, req *livy.CompletionRequest) (*livy.CompletionResponse, error)
}

// SleepFunc waits for the given duration, returning early with an error if the context is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ReliableHttpClient is a LivyClient that retries transient failures according to a RetryPolicy.
//
// A ReliableHttpClient holds no mutable state of its own and is safe for concurrent use.
type ReliableHttpClient struct {
	log logger.Logger

	endpoint   *livy.Endpoint
	policy     *RetryPolicy
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      SleepFunc
	metrics    *metrics.LivyMetrics
}

type Option func(*ReliableHttpClient)

// WithHttpClient replaces the underlying *http.Client.
func WithHttpClient(httpClient *http.Client) Option {
	return func(c *ReliableHttpClient) {
		c.httpClient = httpClient
	}
}

// WithRequestTimeout sets the timeout of a single attempt.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *ReliableHttpClient) {
		c.httpClient = &http.Client{Timeout: timeout, Transport: c.httpClient.Transport}
	}
}

// WithRateLimit limits the rate at which attempts are made. A non-positive rate disables limiting.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *ReliableHttpClient) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}

		if burst < 1 {
			burst = 1
		}

		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

func WithMetrics(m *metrics.LivyMetrics) Option {
	return func(c *ReliableHttpClient) {
		c.metrics = m
	}
}

// WithSleepFunc replaces the function used to wait between retries.
func WithSleepFunc(sleep SleepFunc) Option {
	return func(c *ReliableHttpClient) {
		c.sleep = sleep
	}
}

// NewReliableHttpClient creates a new ReliableHttpClient. If policy is nil, DefaultRetryPolicy is used.
func NewReliableHttpClient(endpoint *livy.Endpoint, policy *RetryPolicy, opts ...Option) *ReliableHttpClient {
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	client := &ReliableHttpClient{
		endpoint:   endpoint,
		policy:     policy,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout, Transport: &nethttp.Transport{}},
		sleep:      SleepContext,
	}

	for _, opt := range opts {
		opt(client)
	}

	config.InitLogger(&client.log, client)

	return client
}

// SleepContext sleeps for d or until ctx is done, whichever happens first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *ReliableHttpClient) Endpoint() *livy.Endpoint {
	return c.endpoint
}

func (c *ReliableHttpClient) RetryPolicy() *RetryPolicy {
	return c.policy
}

// Do issues the request, retrying retryable failures according to the client's RetryPolicy.
//
// A failure is retryable if no response was received or if the response status is one of the policy's
// retryable status codes. Any other non-2xx status fails immediately with a *livy.HttpError. Once the
// retry budget is exhausted, the last failure is returned as a *livy.HttpError or *livy.NetworkError.
func (c *ReliableHttpClient) Do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Wrapf(err, "failed to encode body of %s %s", method, path)
		}
	}

	route := routeOf(path)
	requestUrl := c.endpoint.URL() + path

	span, ctx := opentracing.StartSpanFromContext(ctx, "livy "+method+" "+route)
	defer span.Finish()
	ext.SpanKindRPCClient.Set(span)
	ext.HTTPMethod.Set(span, method)
	ext.HTTPUrl.Set(span, requestUrl)

	gid := goid.Get()
	maxAttempts := c.policy.MaxRetries() + 1

	for retryCount := 0; ; retryCount++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return errors.Wrapf(err, "%s %s was abandoned while waiting for the rate limiter", method, path)
			}
		}

		start := time.Now()
		status, respBody, err := c.attempt(ctx, method, requestUrl, payload)
		c.metrics.ObserveRequest(method, route, status, time.Since(start))

		if err == nil && status >= 200 && status < 300 {
			ext.HTTPStatusCode.Set(span, uint16(status))

			if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
				return nil
			}

			if err = json.Unmarshal(respBody, out); err != nil {
				return errors.Wrapf(err, "failed to decode response of %s %s", method, path)
			}

			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			ext.Error.Set(span, true)
			return errors.Wrapf(ctxErr, "%s %s was abandoned", method, path)
		}

		if !c.policy.ShouldRetry(status, err, retryCount) {
			ext.Error.Set(span, true)
			if err != nil {
				c.log.Error(utils.RedStyle.Render("[gid=%d] %s %s failed to reach the gateway after %d attempt(s): %v"),
					gid, method, path, retryCount+1, err)
				return &livy.NetworkError{Method: method, Path: path, Attempts: retryCount + 1, Cause: err}
			}

			ext.HTTPStatusCode.Set(span, uint16(status))
			if c.policy.IsRetryableStatus(status) {
				c.log.Error(utils.RedStyle.Render("[gid=%d] %s %s still failing with status %d after %d attempt(s)."),
					gid, method, path, status, retryCount+1)
			}

			return &livy.HttpError{Method: method, Path: path, Status: status, Body: string(respBody), Attempts: retryCount + 1}
		}

		wait := c.policy.SleepFor(retryCount)
		if err != nil {
			c.log.Warn("[gid=%d] %s %s failed on attempt %d/%d: %v. Retrying in %v.",
				gid, method, path, retryCount+1, maxAttempts, err, wait)
		} else {
			c.log.Warn("[gid=%d] %s %s returned status %d on attempt %d/%d. Retrying in %v.",
				gid, method, path, status, retryCount+1, maxAttempts, wait)
		}

		c.metrics.ObserveRetry(method, route)

		if sleepErr := c.sleep(ctx, wait); sleepErr != nil {
			ext.Error.Set(span, true)
			return errors.Wrapf(sleepErr, "%s %s was abandoned while waiting to retry", method, path)
		}
	}
}

// attempt performs a single HTTP exchange. A non-nil error means that no response was received.
func (c *ReliableHttpClient) attempt(ctx context.Context, method string, requestUrl string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestUrl, reader)
	if err != nil {
		return 0, nil, err
	}

	for key, val := range c.endpoint.CustomHeaders() {
		req.Header.Set(key, val)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestedByHeader, RequestedByValue)
	if auth := c.endpoint.AuthorizationHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	req, tracer := nethttp.TraceRequest(opentracing.GlobalTracer(), req, nethttp.OperationName("livy attempt "+method))
	defer tracer.Finish()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return 0, nil, err
	}

	return resp.StatusCode, respBody, nil
}

func (c *ReliableHttpClient) PostSession(ctx context.Context, properties *livy.SessionProperties) (*livy.SessionInfo, error) {
	var info livy.SessionInfo
	if err := c.Do(ctx, http.MethodPost, "/sessions", properties, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *ReliableHttpClient) GetSessions(ctx context.Context) (*livy.SessionList, error) {
	var list livy.SessionList
	if err := c.Do(ctx, http.MethodGet, "/sessions", nil, &list); err != nil {
		return nil, err
	}

	return &list, nil
}

func (c *ReliableHttpClient) GetSession(ctx context.Context, sessionId int) (*livy.SessionInfo, error) {
	var info livy.SessionInfo
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d", sessionId), nil, &info); err != nil {
		return nil, err
	}

	return &info, nil
}

func (c *ReliableHttpClient) DeleteSession(ctx context.Context, sessionId int) error {
	return c.Do(ctx, http.MethodDelete, fmt.Sprintf("/sessions/%d", sessionId), nil, nil)
}

func (c *ReliableHttpClient) PostStatement(ctx context.Context, sessionId int, req *livy.StatementRequest) (*livy.Statement, error) {
	var statement livy.Statement
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/statements", sessionId), req, &statement); err != nil {
		return nil, err
	}

	return &statement, nil
}

func (c *ReliableHttpClient) GetStatement(ctx context.Context, sessionId int, statementId int) (*livy.Statement, error) {
	var statement livy.Statement
	if err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/sessions/%d/statements/%d", sessionId, statementId), nil, &statement); err != nil {
		return nil, err
	}

	return &statement, nil
}

func (c *ReliableHttpClient) PostCompletion(ctx context.Context, sessionId int, req *livy.CompletionRequest) (*livy.CompletionResponse, error) {
	var resp livy.CompletionResponse
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/sessions/%d/completion", sessionId), req, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// routeOf replaces the numeric segments of a gateway path so that it can be used as a metric label.
func routeOf(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if _, err := strconv.Atoi(segment); err == nil {
			segments[i] = "{id}"
		}
	}

	return strings.Join(segments, "/")
}
