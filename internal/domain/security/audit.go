package security

import (
	"context"
	"strings"
	"time"
)

// Action enumerates auditable security events.
type Action string

const (
	ActionConnect             Action = "integration.connect"
	ActionDisconnect          Action = "integration.disconnect"
	ActionDispatch            Action = "integration.dispatch"
	ActionDispatchFailed      Action = "integration.dispatch_failed"
	ActionRequestFailed       Action = "platform.request_failed"
	ActionWebhookAccepted     Action = "webhook.accepted"
	ActionWebhookRejected     Action = "webhook.rejected"
	ActionVerificationSkipped Action = "webhook.verification_skipped"
	ActionCredentialExpired   Action = "credential.expired"
	ActionCredentialAccess    Action = "credential.access"
	ActionConnectThrottled    Action = "integration.connect_throttled"
)

func (a Action) String() string { return string(a) }

// AuditEntry is one append-only record of a security-relevant event.
// Entries are immutable once written; there is no update path.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	UserID    string
	Platform  string
	Action    Action
	// Detail carries event context, already sanitized. Anything that
	// looked like secret material was redacted before the entry was
	// constructed.
	Detail map[string]any
	// Success records the outcome of the audited operation.
	Success bool
	// Error holds the failure message for unsuccessful operations.
	Error string
	// SourceIP is set for events triggered by an inbound request.
	SourceIP string
}

// AuditFilter narrows an audit query. Zero fields match everything.
type AuditFilter struct {
	UserID   string
	Platform string
	Action   Action
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// AuditRepository is the append-only audit store.
type AuditRepository interface {
	Append(ctx context.Context, entry *AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*AuditEntry, int64, error)
	// OlderThan streams entries past the retention horizon for archival.
	OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*AuditEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// sensitiveMarkers flag map keys whose values must never be written out
// verbatim. Matching is substring and case-insensitive.
var sensitiveMarkers = []string{
	"password",
	"token",
	"secret",
	"key",
	"auth",
	"credential",
}

const redactionKeepTail = 4

// Sanitize returns a deep copy of detail with every sensitive value
// redacted to "***" plus its last four characters. Values shorter than
// four characters redact entirely. Nested maps are walked recursively.
func Sanitize(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		out[k] = sanitizeValue(k, v)
	}
	return out
}

func sanitizeValue(key string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Sanitize(val)
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = sanitizeValue(k, s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(key, item)
		}
		return out
	case string:
		if isSensitiveKey(key) {
			return redact(val)
		}
		return val
	default:
		if isSensitiveKey(key) {
			return "***"
		}
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func redact(s string) string {
	if len(s) <= redactionKeepTail {
		return "***"
	}
	return "***" + s[len(s)-redactionKeepTail:]
}
