package client

import (
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/scusemua/livy-notebook/common/livy"
)

const (
	// DefaultMaxRetries is the default number of retries. The sum of the default schedule is ~10 seconds;
	// three more 5-second retries bring the total to ~25 seconds.
	DefaultMaxRetries = 8
)

var (
	DefaultBackoffSchedule = []time.Duration{
		200 * time.Millisecond,
		500 * time.Millisecond,
		1 * time.Second,
		3 * time.Second,
		5 * time.Second,
	}

	DefaultRetryableStatusCodes = []int{
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
)

// RetryPolicy decides whether a failed request is retried and how long to wait before doing so.
//
// A RetryPolicy is immutable and may be shared by any number of clients.
type RetryPolicy struct {
	maxRetries           int
	backoffSchedule      []time.Duration
	retryableStatusCodes map[int]struct{}
}

// NewRetryPolicy creates a new RetryPolicy.
//
// Once the backoff schedule is exhausted, its last entry is repeated. An empty schedule retries immediately.
func NewRetryPolicy(maxRetries int, backoffSchedule []time.Duration, retryableStatusCodes []int) (*RetryPolicy, error) {
	if maxRetries < 0 {
		return nil, livy.NewBadConfigurationError(fmt.Sprintf("max retries must be non-negative, got %d", maxRetries))
	}

	for _, d := range backoffSchedule {
		if d < 0 {
			return nil, livy.NewBadConfigurationError(fmt.Sprintf("backoff durations must be non-negative, got %v", d))
		}
	}

	codes := make(map[int]struct{}, len(retryableStatusCodes))
	for _, code := range retryableStatusCodes {
		if code < 100 || code > 599 {
			return nil, livy.NewBadConfigurationError(fmt.Sprintf("invalid HTTP status code %d", code))
		}
		codes[code] = struct{}{}
	}

	return &RetryPolicy{
		maxRetries:           maxRetries,
		backoffSchedule:      slices.Clone(backoffSchedule),
		retryableStatusCodes: codes,
	}, nil
}

// DefaultRetryPolicy returns the RetryPolicy used when none is configured.
func DefaultRetryPolicy() *RetryPolicy {
	policy, err := NewRetryPolicy(DefaultMaxRetries, DefaultBackoffSchedule, DefaultRetryableStatusCodes)
	if err != nil {
		panic(err)
	}

	return policy
}

func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// BackoffSchedule returns a copy of the backoff schedule.
func (p *RetryPolicy) BackoffSchedule() []time.Duration {
	return slices.Clone(p.backoffSchedule)
}

// SleepFor returns how long to wait before retry number retryCount+1, where retryCount is zero-based.
func (p *RetryPolicy) SleepFor(retryCount int) time.Duration {
	if len(p.backoffSchedule) == 0 {
		return 0
	}

	if retryCount < 0 {
		retryCount = 0
	}

	if retryCount >= len(p.backoffSchedule) {
		return p.backoffSchedule[len(p.backoffSchedule)-1]
	}

	return p.backoffSchedule[retryCount]
}

// IsRetryableStatus returns true if a response with the given status code should be retried.
func (p *RetryPolicy) IsRetryableStatus(status int) bool {
	_, ok := p.retryableStatusCodes[status]
	return ok
}

// ShouldRetry returns true if an attempt that failed with the given status (or connection-level error)
// may be retried, given that retryCount retries have already been made.
func (p *RetryPolicy) ShouldRetry(status int, err error, retryCount int) bool {
	if retryCount >= p.maxRetries {
		return false
	}

	return err != nil || p.IsRetryableStatus(status)
}
