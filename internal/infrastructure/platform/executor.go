// Package platform contains the outbound side of the hub: the retrying
// HTTP executor every adapter dispatches through, and the adapter
// implementations themselves.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/domain/integration"
	"github.com/omnihub/backend/internal/domain/security"
	"github.com/omnihub/backend/internal/infrastructure/telemetry"
)

// maxResponseSize is the maximum allowed response size from a platform API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Executor sends one platform request through admission control and the
// retry loop. It is shared by all adapters; per-adapter state (the rate
// limiter) is passed in per call.
type Executor struct {
	client           *http.Client
	policy           integration.RetryPolicy
	admissionTimeout time.Duration
	log              *zap.Logger
	metrics          *telemetry.DispatchMetrics
	audits           security.AuditRepository

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewExecutor creates an executor with the given retry policy. A zero
// admissionTimeout means dispatches wait on a saturated limiter for as
// long as their own context allows.
func NewExecutor(client *http.Client, policy integration.RetryPolicy, admissionTimeout time.Duration, log *zap.Logger) *Executor {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		client:           client,
		policy:           policy,
		admissionTimeout: admissionTimeout,
		log:              log,
		sleep:            sleepCtx,
	}
}

// WithMetrics attaches dispatch instrumentation. Returns the executor for
// chaining during wiring.
func (e *Executor) WithMetrics(m *telemetry.DispatchMetrics) *Executor {
	e.metrics = m
	return e
}

// WithAudit attaches the audit store; requests that fail terminally are
// recorded against it. Returns the executor for chaining during wiring.
func (e *Executor) WithAudit(audits security.AuditRepository) *Executor {
	e.audits = audits
	return e
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do executes req against the platform, waiting for rate-limit admission
// before every attempt, including retries. Retryable failures (429, 5xx,
// network errors) back off exponentially up to the policy budget; other
// 4xx end the loop at once. The returned Response is non-nil whenever the
// platform answered, even on failure, so callers can inspect status and
// Retry-After.
func (e *Executor) Do(ctx context.Context, plat integration.Platform, lim *integration.Limiter, req *integration.Request) (*integration.Response, error) {
	started := time.Now()
	var lastResp *integration.Response
	var lastErr error

	for attempt := 0; attempt <= e.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := e.policy.Delay(attempt - 1)
			if lastResp != nil && lastResp.RetryAfter > delay {
				delay = lastResp.RetryAfter
			}
			e.log.Debug("retrying platform request",
				zap.String("platform", plat.String()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if err := e.sleep(ctx, delay); err != nil {
				return lastResp, fmt.Errorf("%w: %v", integration.ErrTransientNetwork, err)
			}
			if e.metrics != nil {
				e.metrics.RecordRetry(ctx, plat.String())
			}
		}

		admitStart := time.Now()
		if err := e.admit(ctx, lim, req.ChatID); err != nil {
			return lastResp, err
		}
		if e.metrics != nil {
			e.metrics.RecordRateLimitWait(ctx, plat.String(), time.Since(admitStart))
		}
		if req.ChatID != "" {
			lim.RecordChat(req.ChatID)
		} else {
			lim.Record()
		}

		attemptStart := time.Now()
		resp, err := e.attempt(ctx, req)
		latency := time.Since(attemptStart)
		if resp != nil {
			resp.Attempts = attempt + 1
			resp.Duration = time.Since(started)
			resp.Platform = plat
		}

		switch {
		case err != nil:
			if integration.ClassifyError(err) == integration.OutcomeFatal {
				// Context cancellation: the caller gave up, not the network.
				e.logAttempt(plat, req, attempt, latency, 0, "canceled", err)
				return nil, err
			}
			e.logAttempt(plat, req, attempt, latency, 0, "retryable", err)
			lastErr = err
			lastResp = nil
		case resp.Success:
			e.logAttempt(plat, req, attempt, latency, resp.StatusCode, "success", nil)
			return resp, nil
		default:
			if integration.ClassifyStatus(resp.StatusCode) == integration.OutcomeFatal {
				e.logAttempt(plat, req, attempt, latency, resp.StatusCode, "fatal", nil)
				e.auditFailure(ctx, plat, req, resp.StatusCode, attempt+1, resp.Error)
				return resp, fmt.Errorf("%w: status %d", integration.ErrFatalClient, resp.StatusCode)
			}
			e.logAttempt(plat, req, attempt, latency, resp.StatusCode, "retryable", nil)
			lastResp = resp
			lastErr = nil
		}
	}

	if lastErr != nil {
		e.auditFailure(ctx, plat, req, 0, e.policy.MaxRetries+1, lastErr.Error())
		return nil, fmt.Errorf("%w: retries exhausted: %v", integration.ErrTransientNetwork, lastErr)
	}
	cause := integration.ErrTransientNetwork
	if lastResp.StatusCode == http.StatusTooManyRequests {
		cause = integration.ErrRateLimited
	}
	e.auditFailure(ctx, plat, req, lastResp.StatusCode, e.policy.MaxRetries+1, lastResp.Error)
	return lastResp, fmt.Errorf("%w: retries exhausted, last status %d", cause, lastResp.StatusCode)
}

// logAttempt writes one structured line per HTTP attempt. Successes stay
// at debug; anything else warrants operator attention.
func (e *Executor) logAttempt(plat integration.Platform, req *integration.Request, attempt int, latency time.Duration, status int, outcome string, err error) {
	fields := []zap.Field{
		zap.String("platform", plat.String()),
		zap.String("method", req.Method),
		zap.Int("attempt", attempt+1),
		zap.Duration("latency", latency),
		zap.String("outcome", outcome),
	}
	if status > 0 {
		fields = append(fields, zap.Int("status", status))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if outcome == "success" {
		e.log.Debug("Platform request attempt", fields...)
		return
	}
	e.log.Warn("Platform request attempt", fields...)
}

// auditFailure records a terminally failed request. The entry carries only
// method, status and attempt count; the URL stays out because some
// platforms authenticate through query parameters.
func (e *Executor) auditFailure(ctx context.Context, plat integration.Platform, req *integration.Request, status, attempts int, cause string) {
	if e.audits == nil {
		return
	}
	entry := &security.AuditEntry{
		Platform: plat.String(),
		Action:   security.ActionRequestFailed,
		Detail: map[string]any{
			"method":   req.Method,
			"status":   status,
			"attempts": attempts,
		},
		Success: false,
		Error:   cause,
	}
	if err := e.audits.Append(ctx, entry); err != nil {
		e.log.Warn("Failed to record request failure audit entry", zap.Error(err))
	}
}

func (e *Executor) admit(ctx context.Context, lim *integration.Limiter, chatID string) error {
	waitCtx := ctx
	if e.admissionTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, e.admissionTimeout)
		defer cancel()
	}
	if chatID != "" {
		return lim.AwaitChatAdmission(waitCtx, chatID)
	}
	return lim.AwaitAdmission(waitCtx)
}

// attempt performs exactly one HTTP round trip.
func (e *Executor) attempt(ctx context.Context, req *integration.Request) (*integration.Response, error) {
	endpoint := req.URL
	if len(req.Query) > 0 {
		q := url.Values{}
		for k, v := range req.Query {
			q.Set(k, v)
		}
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = endpoint + sep + q.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: encode body: %v", integration.ErrConfiguration, err)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", integration.ErrConfiguration, err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}

	resp := &integration.Response{
		StatusCode: httpResp.StatusCode,
		Raw:        raw,
		Success:    httpResp.StatusCode >= 200 && httpResp.StatusCode < 300,
		RetryAfter: integration.ParseRetryAfter(httpResp.Header.Get("Retry-After")),
	}

	// Decode JSON bodies opportunistically; adapters fall back to Raw for
	// anything else.
	if len(raw) > 0 && strings.Contains(httpResp.Header.Get("Content-Type"), "json") {
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err == nil {
			resp.Data = data
		}
	}
	if !resp.Success {
		resp.Error = fmt.Sprintf("status %d: %s", httpResp.StatusCode, truncate(string(raw), 256))
	}
	return resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
