package integration

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BaseDelay: time.Second}

	assert.Equal(t, 1*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))

	t.Run("zero policy falls back to defaults", func(t *testing.T) {
		var zero RetryPolicy
		assert.Equal(t, time.Second, zero.Delay(0))
		assert.Equal(t, 4*time.Second, zero.Delay(2))
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Outcome
	}{
		{"200 succeeds", http.StatusOK, OutcomeSuccess},
		{"201 succeeds", http.StatusCreated, OutcomeSuccess},
		{"429 retries", http.StatusTooManyRequests, OutcomeRetryable},
		{"500 retries", http.StatusInternalServerError, OutcomeRetryable},
		{"503 retries", http.StatusServiceUnavailable, OutcomeRetryable},
		{"400 is fatal", http.StatusBadRequest, OutcomeFatal},
		{"401 is fatal", http.StatusUnauthorized, OutcomeFatal},
		{"404 is fatal", http.StatusNotFound, OutcomeFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyStatus(tt.status))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	t.Run("nil succeeds", func(t *testing.T) {
		assert.Equal(t, OutcomeSuccess, ClassifyError(nil))
	})

	t.Run("net.Error retries", func(t *testing.T) {
		var err net.Error = timeoutErr{}
		assert.Equal(t, OutcomeRetryable, ClassifyError(err))
	})

	t.Run("context cancellation is fatal", func(t *testing.T) {
		assert.Equal(t, OutcomeFatal, ClassifyError(context.Canceled))
		assert.Equal(t, OutcomeFatal, ClassifyError(context.DeadlineExceeded))
	})

	t.Run("wrapped cancellation is fatal", func(t *testing.T) {
		err := errors.Join(errors.New("request aborted"), context.Canceled)
		assert.Equal(t, OutcomeFatal, ClassifyError(err))
	})

	t.Run("generic transport error retries", func(t *testing.T) {
		assert.Equal(t, OutcomeRetryable, ClassifyError(errors.New("connection reset by peer")))
	})
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, ParseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter(""))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Equal(t, time.Duration(0), ParseRetryAfter("-5"))
}

func TestParseRetryAfter_CapsLargeValues(t *testing.T) {
	assert.Equal(t, time.Hour, ParseRetryAfter("86400"))
	assert.Equal(t, time.Hour, ParseRetryAfter(strings.Repeat("9", 40)))
}
