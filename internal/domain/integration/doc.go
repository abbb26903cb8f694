// Package integration contains the Integration bounded context: the
// dispatch core shared by every platform connection.
//
// Key concepts:
//   - Platform: identifier for an external platform (storefront, marketplace, CRM, messenger)
//   - PlatformAdapter: port interface a platform connection implements
//   - Limiter: multi-window rate admission with burst and per-chat control
//   - RetryPolicy: exponential backoff schedule and failure classification
//   - DispatchResult: aggregate outcome of one fan-out across adapters
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
