package integration

import (
	"context"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Platform
// ---------------------------------------------------------------------------

// Platform identifies an external platform an adapter talks to.
type Platform string

const (
	// Storefront / marketplace platforms
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
	PlatformBigCommerce Platform = "bigcommerce"
	PlatformWildberries Platform = "wildberries"
	PlatformOzon        Platform = "ozon"
	PlatformInSales     Platform = "insales"
	// CRM platforms
	PlatformBitrix Platform = "bitrix"
	// Messaging platforms
	PlatformTelegram Platform = "telegram"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformViber    Platform = "viber"
	PlatformVK       Platform = "vk"
)

// IsValid returns true if the platform is one this hub knows how to reach.
func (p Platform) IsValid() bool {
	_, ok := requiredCredentialFields[p]
	return ok
}

// String returns the string representation of Platform.
func (p Platform) String() string {
	return string(p)
}

// IsMessaging returns true for conversational platforms that need
// per-chat rate limiting on top of the shared windows.
func (p Platform) IsMessaging() bool {
	switch p {
	case PlatformTelegram, PlatformWhatsApp, PlatformViber, PlatformVK:
		return true
	default:
		return false
	}
}

// requiredCredentialFields lists the credential keys each platform needs
// before a connection attempt is worth making.
var requiredCredentialFields = map[Platform][]string{
	PlatformShopify:     {"shop_domain", "access_token"},
	PlatformWooCommerce: {"site_url", "consumer_key", "consumer_secret"},
	PlatformBigCommerce: {"store_hash", "access_token"},
	PlatformWildberries: {"api_key"},
	PlatformOzon:        {"client_id", "api_key"},
	PlatformInSales:     {"domain", "api_key", "password"},
	PlatformBitrix:      {"webhook_url", "client_id", "client_secret"},
	PlatformTelegram:    {"bot_token"},
	PlatformWhatsApp:    {"access_token", "phone_number_id"},
	PlatformViber:       {"auth_token"},
	PlatformVK:          {"access_token", "group_id"},
}

// AllPlatforms returns every platform this hub knows how to reach, in a
// stable order.
func AllPlatforms() []Platform {
	return []Platform{
		PlatformShopify, PlatformWooCommerce, PlatformBigCommerce,
		PlatformWildberries, PlatformOzon, PlatformInSales,
		PlatformBitrix,
		PlatformTelegram, PlatformWhatsApp, PlatformViber, PlatformVK,
	}
}

// ValidateCredentials checks that every required field for the platform is
// present and non-empty. The returned error wraps ErrMissingCredentials and
// names the missing fields.
func ValidateCredentials(platform Platform, credentials map[string]string) error {
	required, ok := requiredCredentialFields[platform]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	var missing []string
	for _, field := range required {
		if credentials[field] == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s requires %v", ErrMissingCredentials, platform, missing)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operation
// ---------------------------------------------------------------------------

// Operation names a synchronization operation fanned out to adapters.
type Operation string

const (
	OperationSyncOrders    Operation = "sync_orders"
	OperationSyncProducts  Operation = "sync_products"
	OperationSyncCustomers Operation = "sync_customers"
)

// IsValid returns true if the operation is dispatchable.
func (o Operation) IsValid() bool {
	switch o {
	case OperationSyncOrders, OperationSyncProducts, OperationSyncCustomers:
		return true
	default:
		return false
	}
}

// String returns the string representation of Operation.
func (o Operation) String() string {
	return string(o)
}

// ---------------------------------------------------------------------------
// Request / Response
// ---------------------------------------------------------------------------

// Request describes one outbound platform call, produced by platform-specific
// code and executed by the shared request executor.
type Request struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE).
	Method string
	// URL is absolute, or relative to the adapter's base URL.
	URL string
	// Headers are merged over the adapter's authentication headers.
	Headers map[string]string
	// Query holds URL query parameters.
	Query map[string]string
	// Body is JSON-encoded when non-nil.
	Body any
	// ChatID selects the per-conversation limiter for messaging platforms.
	// Empty for non-messaging calls.
	ChatID string
}

// Response is the unified result of one platform call.
type Response struct {
	// Success is true for any 2xx status.
	Success bool
	// StatusCode is the HTTP status, 0 when the request never completed.
	StatusCode int
	// Data holds the decoded JSON body when the platform returned one.
	Data map[string]any
	// Raw holds the body verbatim. A 2xx with an unparseable body is still
	// a success; callers needing structure must check Data for nil.
	Raw []byte
	// Error carries the platform's failure message verbatim.
	Error string
	// RetryAfter is the platform's Retry-After hint, zero when absent.
	RetryAfter time.Duration
	// Platform identifies which adapter produced the response.
	Platform Platform
	// Attempts counts how many attempts were made, including the first.
	Attempts int
	// Duration is the total wall time across attempts.
	Duration time.Duration
}

// ---------------------------------------------------------------------------
// Sync / dispatch results
// ---------------------------------------------------------------------------

// SyncResult is one adapter's outcome for one operation.
type SyncResult struct {
	Platform         Platform
	Operation        Operation
	RecordsProcessed int
	RecordsSucceeded int
	RecordsFailed    int
	Errors           []string
	Duration         time.Duration
	Timestamp        time.Time
}

// DispatchResult aggregates one fan-out across all of a principal's
// adapters. There is exactly one per DispatchAll call regardless of how
// many adapters participated.
type DispatchResult struct {
	Operation Operation
	// Attempted is the number of adapters the operation was dispatched to.
	Attempted int
	// Succeeded and Failed partition the attempted platforms.
	Succeeded []Platform
	Failed    []Platform
	// Errors concatenates per-adapter failures, prefixed with the platform.
	Errors []string
	// Results holds each adapter's own outcome, keyed by platform.
	Results map[Platform]*SyncResult
	// Duration tracks the slowest adapter, not the sum.
	Duration time.Duration
}

// ---------------------------------------------------------------------------
// PlatformAdapter port
// ---------------------------------------------------------------------------

// HealthStatus is a point-in-time snapshot of one adapter's health.
type HealthStatus struct {
	Platform  Platform
	Healthy   bool
	Error     string
	LastCheck time.Time
	RateLimit Usage
}

// PlatformAdapter is the port every platform integration implements.
// Concrete adapters live outside this package and carry all platform
// knowledge (field mapping, endpoints, payload parsing); the dispatch core
// only ever sees this interface.
type PlatformAdapter interface {
	// Platform returns the platform this adapter talks to.
	Platform() Platform

	// Authenticate proves the stored credentials against the platform.
	// Called once during connect, before the adapter is registered.
	Authenticate(ctx context.Context) error

	// Sync runs one synchronization operation. Implementations issue their
	// platform calls through the shared executor so rate limiting, retry
	// and auditing apply uniformly.
	Sync(ctx context.Context, op Operation, since *time.Time) (*SyncResult, error)

	// ExtractMessages pulls platform events out of an already-verified
	// webhook payload and returns how many were extracted.
	ExtractMessages(ctx context.Context, payload map[string]any) (int, error)

	// TestConnection performs a cheap authenticated call for health checks.
	TestConnection(ctx context.Context) (*Response, error)

	// Limiter exposes the adapter's admission state for health snapshots.
	Limiter() *Limiter

	// Close releases any transport resources held by the adapter.
	Close() error
}
