package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second

	// maxRetryAfterSeconds caps the server-provided delay at one hour.
	// It also keeps the digit accumulation below from overflowing on a
	// pathologically long header value.
	maxRetryAfterSeconds = 3600
)

// RetryPolicy controls how many times a failed platform request is
// re-attempted and how long to wait between attempts.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy matches the platform tier used across adapters:
// up to 3 retries with 1s, 2s, 4s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: defaultMaxRetries, BaseDelay: defaultBaseDelay}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	return p
}

// Delay returns the backoff before retry attempt n (0-based): base * 2^n.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Outcome classifies a completed attempt.
type Outcome int

const (
	// OutcomeSuccess ends the attempt loop with the response.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable schedules another attempt if budget remains.
	OutcomeRetryable
	// OutcomeFatal ends the loop immediately; retrying cannot help.
	OutcomeFatal
)

// ClassifyStatus maps an HTTP status to an attempt outcome. 429 and all
// 5xx are retryable; every other non-2xx is fatal because the request
// itself is wrong and will keep failing.
func ClassifyStatus(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return OutcomeSuccess
	case status == http.StatusTooManyRequests:
		return OutcomeRetryable
	case status >= 500:
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}

// ClassifyError maps a transport-level error to an outcome. Network
// failures (timeouts, refused connections, DNS) are retryable; context
// cancellation is fatal because the caller has given up.
func ClassifyError(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeFatal
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return OutcomeRetryable
	}
	// url.Error and friends wrap the syscall error; treat anything that
	// reached the network layer as transient.
	return OutcomeRetryable
}

// ParseRetryAfter reads a Retry-After header value in seconds, capped at
// one hour. Returns zero for absent or malformed values; HTTP-date form
// is not produced by the platforms this hub talks to.
func ParseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	var secs int
	for _, r := range header {
		if r < '0' || r > '9' {
			return 0
		}
		secs = secs*10 + int(r-'0')
		if secs > maxRetryAfterSeconds {
			return maxRetryAfterSeconds * time.Second
		}
	}
	return time.Duration(secs) * time.Second
}
