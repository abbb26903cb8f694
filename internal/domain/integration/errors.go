package integration

import "errors"

var (
	// Admission / throttling errors
	ErrRateLimited      = errors.New("integration: rate limited")
	ErrAdmissionTimeout = errors.New("integration: admission wait cancelled")

	// Authentication errors
	ErrAuthenticationFailed = errors.New("integration: authentication failed")
	ErrInvalidSignature     = errors.New("integration: invalid webhook signature")

	// Transport errors
	ErrTransientNetwork = errors.New("integration: transient network failure")
	ErrFatalClient      = errors.New("integration: request rejected by platform")

	// Configuration errors, all resolved before any network attempt
	ErrConfiguration      = errors.New("integration: configuration error")
	ErrUnknownPlatform    = errors.New("integration: unknown platform")
	ErrNoAdapters         = errors.New("integration: no adapters registered for principal")
	ErrMissingCredentials = errors.New("integration: missing required credentials")
	ErrAdapterNotFound    = errors.New("integration: adapter not found")
	ErrConnectThrottled   = errors.New("integration: connect attempts exceeded")
)
