package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

const (
	defaultBaseDelay   = 200 * time.Millisecond
	defaultMaxDelay    = 3 * time.Second
	defaultDelayFactor = 2.0

	// statusOverloaded is sent by some OpenAI-compatible gateways when the
	// upstream model is saturated.
	statusOverloaded = 529
)

// Failure says how a failed completion call should be treated.
type Failure int

const (
	// FailurePermanent ends the call: bad request, auth, unknown model or a
	// cancelled context.
	FailurePermanent Failure = iota
	// FailureTransient covers 5xx answers, timeouts, dropped connections and
	// completions without choices.
	FailureTransient
	// FailureRateLimited is a 429. The provider's Retry-After wins over the
	// computed delay.
	FailureRateLimited
)

func (f Failure) String() string {
	switch f {
	case FailureTransient:
		return "transient"
	case FailureRateLimited:
		return "rate_limited"
	default:
		return "permanent"
	}
}

// ClassifyFailure maps an error from the chat endpoint to a Failure.
func ClassifyFailure(err error) Failure {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return FailurePermanent
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, io.ErrUnexpectedEOF):
		return FailureTransient
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureTransient
	}
	return FailurePermanent
}

func classifyStatus(code int) Failure {
	switch code {
	case http.StatusTooManyRequests:
		return FailureRateLimited
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		statusOverloaded:
		return FailureTransient
	}
	return FailurePermanent
}

// RetryPolicy bounds how often and how patiently a completion is retried.
type RetryPolicy struct {
	// Retries is the number of attempts after the first one.
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
	// Classify replaces ClassifyFailure.
	Classify func(error) Failure
}

// Retrier runs completion calls under a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
}

// NewRetrier fills unset policy fields with defaults.
func NewRetrier(p RetryPolicy) *Retrier {
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.Factor <= 1 {
		p.Factor = defaultDelayFactor
	}
	if p.Classify == nil {
		p.Classify = ClassifyFailure
	}
	return &Retrier{policy: p}
}

// Do calls fn with a 1-based attempt number until it succeeds, fails
// permanently, or the retries are spent. After more than one attempt the
// last error is wrapped with the attempt count.
func (r *Retrier) Do(ctx context.Context, fn func(attempt int) error) error {
	delay := r.policy.BaseDelay
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			return nil
		}
		failure := r.policy.Classify(err)
		if failure == FailurePermanent || attempt > r.policy.Retries {
			if attempt == 1 {
				return err
			}
			return fmt.Errorf("%s after %d attempts: %w", failure, attempt, err)
		}

		wait := delay
		if failure == FailureRateLimited {
			if after, ok := retryAfter(err); ok {
				wait = after
			}
		}
		if err := pause(ctx, min(wait, r.policy.MaxDelay)); err != nil {
			return err
		}
		delay = time.Duration(math.Min(float64(r.policy.MaxDelay), float64(delay)*r.policy.Factor))
	}
}

// retryAfter reads the Retry-After header of a rate-limited answer, in
// seconds or as an HTTP date.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) || apiErr.Response == nil {
		return 0, false
	}
	raw := strings.TrimSpace(apiErr.Response.Header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		return max(time.Until(at), 0), true
	}
	return 0, false
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
