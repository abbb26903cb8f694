// Package integration coordinates platform connections: it vaults
// credentials, registers adapters, fans dispatches out across them, routes
// inbound webhooks and keeps the audit trail.
package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/domain/integration"
	"github.com/omnihub/backend/internal/domain/security"
	"github.com/omnihub/backend/internal/infrastructure/cache"
	"github.com/omnihub/backend/internal/infrastructure/telemetry"
)

// AdapterFactory builds a platform adapter from decrypted credentials.
// The orchestrator never constructs adapters itself; platform knowledge
// stays behind this function.
type AdapterFactory func(ctx context.Context, platform integration.Platform, secrets map[string]string) (integration.PlatformAdapter, error)

// Config tunes the orchestrator.
type Config struct {
	// FanoutConcurrency caps simultaneous adapter syncs per dispatch.
	FanoutConcurrency int
	// ConnectMaxAttempts and ConnectWindow throttle repeated connect
	// attempts per user and platform.
	ConnectMaxAttempts int
	ConnectWindow      time.Duration
	// StatusTimeout bounds each TestConnection health probe.
	StatusTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FanoutConcurrency <= 0 {
		c.FanoutConcurrency = 8
	}
	if c.ConnectMaxAttempts <= 0 {
		c.ConnectMaxAttempts = 5
	}
	if c.ConnectWindow <= 0 {
		c.ConnectWindow = time.Hour
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = 10 * time.Second
	}
	return c
}

// registration is one live adapter plus the credential that backs it.
// The ciphertext is retained so last-used updates can re-save without
// re-encrypting.
type registration struct {
	adapter    integration.PlatformAdapter
	credential *security.Credential
	ciphertext []byte
}

// Orchestrator owns the adapter registry and every operation that crosses
// it. All methods are safe for concurrent use.
type Orchestrator struct {
	vault       security.Vault
	credentials security.CredentialRepository
	audits      security.AuditRepository
	attempts    cache.AttemptCounter
	factory     AdapterFactory
	metrics     *telemetry.DispatchMetrics
	logger      *zap.Logger
	config      Config

	mu sync.RWMutex
	// adapters is keyed by user ID, then platform instance ID.
	adapters map[string]map[string]*registration

	statsMu sync.Mutex
	stats   DispatchStats
}

// NewOrchestrator creates an orchestrator. metrics may be nil when
// telemetry is disabled; attempts may be nil to disable connect throttling.
func NewOrchestrator(
	vault security.Vault,
	credentials security.CredentialRepository,
	audits security.AuditRepository,
	attempts cache.AttemptCounter,
	factory AdapterFactory,
	metrics *telemetry.DispatchMetrics,
	logger *zap.Logger,
	config Config,
) *Orchestrator {
	return &Orchestrator{
		vault:       vault,
		credentials: credentials,
		audits:      audits,
		attempts:    attempts,
		factory:     factory,
		metrics:     metrics,
		logger:      logger,
		config:      config.withDefaults(),
		adapters:    make(map[string]map[string]*registration),
	}
}

// ---------------------------------------------------------------------------
// Connect / disconnect
// ---------------------------------------------------------------------------

// Connect validates and proves the given credentials against the platform,
// vaults them, and registers a live adapter for the user. Reconnecting an
// existing platform instance replaces its adapter and keeps its webhook
// secret so callback URLs stay stable.
func (o *Orchestrator) Connect(ctx context.Context, in ConnectInput) (*ConnectResult, error) {
	if !in.Platform.IsValid() {
		return nil, fmt.Errorf("%w: %s", integration.ErrUnknownPlatform, in.Platform)
	}
	if in.PlatformID == "" {
		in.PlatformID = in.Platform.String()
	}

	if err := integration.ValidateCredentials(in.Platform, in.Secrets); err != nil {
		return nil, err
	}

	if err := o.throttleConnect(ctx, in); err != nil {
		return nil, err
	}

	adapter, err := o.factory(ctx, in.Platform, in.Secrets)
	if err != nil {
		return nil, err
	}

	if err := adapter.Authenticate(ctx); err != nil {
		adapter.Close()
		o.audit(ctx, &security.AuditEntry{
			UserID:   in.UserID,
			Platform: in.Platform.String(),
			Action:   security.ActionConnect,
			Detail:   map[string]any{"platform_id": in.PlatformID},
			Success:  false,
			Error:    err.Error(),
			SourceIP: in.SourceIP,
		})
		return nil, fmt.Errorf("%w: %v", integration.ErrAuthenticationFailed, err)
	}

	now := time.Now().UTC()
	cred := &security.Credential{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Platform:   in.Platform.String(),
		PlatformID: in.PlatformID,
		Name:       in.Name,
		Active:     true,
		ExpiresAt:  in.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Keep the identity and webhook secret of an existing connection.
	if existing, _, err := o.credentials.Find(ctx, in.UserID, in.PlatformID); err == nil {
		cred.ID = existing.ID
		cred.WebhookSecret = existing.WebhookSecret
		cred.CreatedAt = existing.CreatedAt
	}
	if cred.WebhookSecret == "" {
		secret, err := security.GenerateWebhookSecret()
		if err != nil {
			adapter.Close()
			return nil, err
		}
		cred.WebhookSecret = secret
	}

	ciphertext, err := o.vault.Encrypt(in.Secrets)
	if err != nil {
		adapter.Close()
		return nil, err
	}
	if err := o.credentials.Save(ctx, cred, ciphertext); err != nil {
		adapter.Close()
		return nil, err
	}

	o.register(in.UserID, in.PlatformID, &registration{
		adapter:    adapter,
		credential: cred,
		ciphertext: ciphertext,
	})

	if o.attempts != nil {
		if err := o.attempts.Reset(ctx, cache.ConnectKey(in.UserID, in.Platform.String())); err != nil {
			o.logger.Warn("Failed to reset connect attempt counter", zap.Error(err))
		}
	}

	o.audit(ctx, &security.AuditEntry{
		UserID:   in.UserID,
		Platform: in.Platform.String(),
		Action:   security.ActionConnect,
		Detail: map[string]any{
			"platform_id": in.PlatformID,
			"name":        in.Name,
		},
		Success:  true,
		SourceIP: in.SourceIP,
	})

	o.logger.Info("Platform connected",
		zap.String("user_id", in.UserID),
		zap.String("platform", in.Platform.String()),
		zap.String("platform_id", in.PlatformID),
	)

	return &ConnectResult{
		CredentialID:  cred.ID,
		Platform:      in.Platform,
		PlatformID:    in.PlatformID,
		WebhookSecret: cred.WebhookSecret,
		CreatedAt:     cred.CreatedAt,
	}, nil
}

func (o *Orchestrator) throttleConnect(ctx context.Context, in ConnectInput) error {
	if o.attempts == nil {
		return nil
	}
	key := cache.ConnectKey(in.UserID, in.Platform.String())
	n, err := o.attempts.Incr(ctx, key, o.config.ConnectWindow)
	if err != nil {
		// A broken counter must not block connects.
		o.logger.Warn("Connect attempt counter unavailable", zap.Error(err))
		return nil
	}
	if n > int64(o.config.ConnectMaxAttempts) {
		o.audit(ctx, &security.AuditEntry{
			UserID:   in.UserID,
			Platform: in.Platform.String(),
			Action:   security.ActionConnectThrottled,
			Detail:   map[string]any{"attempts": n},
			Success:  false,
			Error:    integration.ErrConnectThrottled.Error(),
			SourceIP: in.SourceIP,
		})
		return fmt.Errorf("%w: %d attempts in %s", integration.ErrConnectThrottled, n, o.config.ConnectWindow)
	}
	return nil
}

// Disconnect deregisters the adapter and revokes the stored credential.
// With purge set the credential row is deleted outright instead of being
// deactivated. It returns false when nothing was connected or stored.
func (o *Orchestrator) Disconnect(ctx context.Context, userID, platformID string, purge bool, sourceIP string) (bool, error) {
	reg := o.deregister(userID, platformID)
	if reg != nil {
		if err := reg.adapter.Close(); err != nil {
			o.logger.Warn("Adapter close failed", zap.Error(err))
		}
	}

	var err error
	if purge {
		err = o.credentials.Delete(ctx, userID, platformID)
	} else {
		err = o.credentials.Deactivate(ctx, userID, platformID)
	}
	stored := true
	if err != nil {
		if !errors.Is(err, security.ErrCredentialNotFound) {
			return reg != nil, err
		}
		stored = false
	}
	if reg == nil && !stored {
		return false, nil
	}

	platform := ""
	if reg != nil {
		platform = reg.credential.Platform
	}
	o.audit(ctx, &security.AuditEntry{
		UserID:   userID,
		Platform: platform,
		Action:   security.ActionDisconnect,
		Detail: map[string]any{
			"platform_id": platformID,
			"purged":      purge,
		},
		Success:  true,
		SourceIP: sourceIP,
	})

	return reg != nil || stored, nil
}

// Restore re-registers adapters for every active stored credential. Called
// once at startup; connections that fail to restore are logged and skipped
// so one bad credential cannot hold up boot.
func (o *Orchestrator) Restore(ctx context.Context) (int, error) {
	var restored int
	for _, platform := range integration.AllPlatforms() {
		creds, err := o.credentials.FindByPlatform(ctx, platform.String())
		if err != nil {
			return restored, err
		}
		for _, cred := range creds {
			if err := cred.Usable(time.Now().UTC()); err != nil {
				continue
			}
			if err := o.restoreOne(ctx, platform, cred); err != nil {
				o.logger.Warn("Failed to restore connection",
					zap.String("user_id", cred.UserID),
					zap.String("platform_id", cred.PlatformID),
					zap.Error(err),
				)
				continue
			}
			restored++
		}
	}
	return restored, nil
}

func (o *Orchestrator) restoreOne(ctx context.Context, platform integration.Platform, cred *security.Credential) error {
	_, ciphertext, err := o.credentials.Find(ctx, cred.UserID, cred.PlatformID)
	if err != nil {
		return err
	}
	secrets, err := o.vault.Decrypt(ciphertext)
	if err != nil {
		return err
	}
	adapter, err := o.factory(ctx, platform, secrets)
	if err != nil {
		return err
	}
	o.register(cred.UserID, cred.PlatformID, &registration{
		adapter:    adapter,
		credential: cred,
		ciphertext: ciphertext,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// DispatchAll fans the operation out across every adapter registered for
// the user. Adapters run concurrently up to FanoutConcurrency; one
// adapter's failure never stops its siblings. Exactly one DispatchResult
// is returned per call.
func (o *Orchestrator) DispatchAll(ctx context.Context, userID string, op integration.Operation, since *time.Time) (*integration.DispatchResult, error) {
	if !op.IsValid() {
		return nil, fmt.Errorf("integration: unknown operation %q", op)
	}

	regs := o.userRegistrations(userID)
	if len(regs) == 0 {
		return nil, integration.ErrNoAdapters
	}

	start := time.Now()
	result := &integration.DispatchResult{
		Operation: op,
		Attempted: len(regs),
		Results:   make(map[integration.Platform]*integration.SyncResult, len(regs)),
	}

	var (
		wg       sync.WaitGroup
		resultMu sync.Mutex
		sem      = make(chan struct{}, o.config.FanoutConcurrency)
	)

	for _, reg := range regs {
		wg.Add(1)
		go func(reg *registration) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			platform := reg.adapter.Platform()
			syncStart := time.Now()
			res, err := o.syncOne(ctx, reg, op, since)
			elapsed := time.Since(syncStart)

			if o.metrics != nil {
				o.metrics.RecordDispatchDuration(ctx, platform.String(), elapsed)
			}

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, platform)
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", platform, err))
				if o.metrics != nil {
					o.metrics.RecordRequest(ctx, platform.String(), "failure")
				}
				return
			}
			result.Succeeded = append(result.Succeeded, platform)
			result.Results[platform] = res
			if o.metrics != nil {
				o.metrics.RecordRequest(ctx, platform.String(), "success")
			}
		}(reg)
	}
	wg.Wait()
	result.Duration = time.Since(start)

	o.recordDispatch(result)

	action := security.ActionDispatch
	success := len(result.Failed) == 0
	if len(result.Succeeded) == 0 {
		action = security.ActionDispatchFailed
	}
	detail := map[string]any{
		"operation": op.String(),
		"attempted": result.Attempted,
		"succeeded": len(result.Succeeded),
		"failed":    len(result.Failed),
	}
	if len(result.Errors) > 0 {
		detail["errors"] = result.Errors
	}
	o.audit(ctx, &security.AuditEntry{
		UserID:  userID,
		Action:  action,
		Detail:  detail,
		Success: success,
	})

	return result, nil
}

// syncOne runs a single adapter sync with panic isolation. An adapter
// panic surfaces as that adapter's failure, never as a crashed dispatch.
func (o *Orchestrator) syncOne(ctx context.Context, reg *registration, op integration.Operation, since *time.Time) (res *integration.SyncResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("adapter panic: %v", r)
		}
	}()

	now := time.Now().UTC()
	if err := reg.credential.Usable(now); err != nil {
		return nil, err
	}

	res, err = reg.adapter.Sync(ctx, op, since)
	if err != nil {
		return nil, err
	}

	reg.credential.Touch(now)
	if saveErr := o.credentials.Save(ctx, reg.credential, reg.ciphertext); saveErr != nil {
		o.logger.Warn("Failed to persist credential last-used",
			zap.String("platform_id", reg.credential.PlatformID),
			zap.Error(saveErr),
		)
	}
	return res, nil
}

func (o *Orchestrator) recordDispatch(result *integration.DispatchResult) {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	o.stats.Dispatches++
	o.stats.PlatformsSucceeded += int64(len(result.Succeeded))
	o.stats.PlatformsFailed += int64(len(result.Failed))
	o.stats.LastDispatch = time.Now().UTC()
}

// Stats returns a copy of the dispatch statistics since process start.
func (o *Orchestrator) Stats() DispatchStats {
	o.statsMu.Lock()
	defer o.statsMu.Unlock()
	return o.stats
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// HandleWebhook verifies and routes one inbound platform callback to the
// adapter registered for (platform, user). Platforms without a signature
// scheme, and connections without a webhook secret, are accepted
// unverified with an audit trail saying so.
func (o *Orchestrator) HandleWebhook(ctx context.Context, in WebhookInput) (*WebhookResult, error) {
	reg := o.findByPlatform(in.UserID, in.Platform)
	if reg == nil {
		o.rejectWebhook(ctx, in, "no adapter registered")
		return nil, fmt.Errorf("%w: %s for user %s", integration.ErrAdapterNotFound, in.Platform, in.UserID)
	}

	verified := false
	scheme, err := security.SchemeFor(in.Platform.String())
	switch {
	case err != nil:
		o.skipVerification(ctx, in, "platform has no signature scheme")
	case reg.credential.WebhookSecret == "":
		o.skipVerification(ctx, in, "connection has no webhook secret")
	default:
		if err := scheme.Verify(in.Body, in.Signature, reg.credential.WebhookSecret); err != nil {
			o.rejectWebhook(ctx, in, err.Error())
			return nil, fmt.Errorf("%w: %v", integration.ErrInvalidSignature, err)
		}
		verified = true
	}

	var payload map[string]any
	if err := json.Unmarshal(in.Body, &payload); err != nil {
		o.rejectWebhook(ctx, in, "malformed payload")
		return nil, fmt.Errorf("integration: malformed webhook payload: %w", err)
	}

	count, err := reg.adapter.ExtractMessages(ctx, payload)
	if err != nil {
		o.rejectWebhook(ctx, in, err.Error())
		return nil, err
	}

	o.statsMu.Lock()
	o.stats.WebhooksAccepted++
	o.statsMu.Unlock()
	if o.metrics != nil {
		o.metrics.RecordWebhookVerification(ctx, in.Platform.String(), "accepted")
	}
	o.audit(ctx, &security.AuditEntry{
		UserID:   in.UserID,
		Platform: in.Platform.String(),
		Action:   security.ActionWebhookAccepted,
		Detail: map[string]any{
			"messages": count,
			"verified": verified,
		},
		Success:  true,
		SourceIP: in.SourceIP,
	})

	return &WebhookResult{Accepted: true, Verified: verified, Messages: count}, nil
}

func (o *Orchestrator) rejectWebhook(ctx context.Context, in WebhookInput, reason string) {
	o.statsMu.Lock()
	o.stats.WebhooksRejected++
	o.statsMu.Unlock()
	if o.metrics != nil {
		o.metrics.RecordWebhookVerification(ctx, in.Platform.String(), "rejected")
	}
	o.audit(ctx, &security.AuditEntry{
		UserID:   in.UserID,
		Platform: in.Platform.String(),
		Action:   security.ActionWebhookRejected,
		Success:  false,
		Error:    reason,
		SourceIP: in.SourceIP,
	})
}

func (o *Orchestrator) skipVerification(ctx context.Context, in WebhookInput, reason string) {
	if o.metrics != nil {
		o.metrics.RecordWebhookVerification(ctx, in.Platform.String(), "skipped")
	}
	o.audit(ctx, &security.AuditEntry{
		UserID:   in.UserID,
		Platform: in.Platform.String(),
		Action:   security.ActionVerificationSkipped,
		Detail:   map[string]any{"reason": reason},
		Success:  true,
		SourceIP: in.SourceIP,
	})
}

// ---------------------------------------------------------------------------
// Status / listing
// ---------------------------------------------------------------------------

// PlatformStatus probes one registered connection and snapshots its rate
// limit admission state.
func (o *Orchestrator) PlatformStatus(ctx context.Context, userID, platformID string) (*integration.HealthStatus, error) {
	o.mu.RLock()
	reg := o.adapters[userID][platformID]
	o.mu.RUnlock()
	if reg == nil {
		return nil, fmt.Errorf("%w: %s", integration.ErrAdapterNotFound, platformID)
	}
	status := o.probe(ctx, reg)
	return &status, nil
}

// AllStatuses probes every connection registered for the user.
func (o *Orchestrator) AllStatuses(ctx context.Context, userID string) []integration.HealthStatus {
	regs := o.userRegistrations(userID)
	statuses := make([]integration.HealthStatus, 0, len(regs))
	for _, reg := range regs {
		statuses = append(statuses, o.probe(ctx, reg))
	}
	return statuses
}

func (o *Orchestrator) probe(ctx context.Context, reg *registration) integration.HealthStatus {
	probeCtx, cancel := context.WithTimeout(ctx, o.config.StatusTimeout)
	defer cancel()

	status := integration.HealthStatus{
		Platform:  reg.adapter.Platform(),
		LastCheck: time.Now().UTC(),
		RateLimit: reg.adapter.Limiter().Snapshot(),
	}
	resp, err := reg.adapter.TestConnection(probeCtx)
	switch {
	case err != nil:
		status.Error = err.Error()
	case !resp.Success:
		status.Error = resp.Error
	default:
		status.Healthy = true
	}
	return status
}

// Connections lists the user's stored credentials, flagging which ones
// have a live adapter.
func (o *Orchestrator) Connections(ctx context.Context, userID string) ([]ConnectionView, error) {
	creds, err := o.credentials.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	o.mu.RLock()
	live := o.adapters[userID]
	views := make([]ConnectionView, 0, len(creds))
	for _, cred := range creds {
		_, registered := live[cred.PlatformID]
		views = append(views, ConnectionView{
			CredentialID: cred.ID,
			Platform:     cred.Platform,
			PlatformID:   cred.PlatformID,
			Name:         cred.Name,
			Active:       cred.Active,
			Registered:   registered,
			ExpiresAt:    cred.ExpiresAt,
			LastUsed:     cred.LastUsed,
			CreatedAt:    cred.CreatedAt,
		})
	}
	o.mu.RUnlock()
	return views, nil
}

// EvictIdleChats sweeps every registered adapter's per-chat windows and
// returns how many were dropped.
func (o *Orchestrator) EvictIdleChats() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	var evicted int
	for _, regs := range o.adapters {
		for _, reg := range regs {
			evicted += reg.adapter.Limiter().EvictIdleChats()
		}
	}
	return evicted
}

// Close deregisters and closes every adapter.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, regs := range o.adapters {
		for _, reg := range regs {
			if err := reg.adapter.Close(); err != nil {
				o.logger.Warn("Adapter close failed", zap.Error(err))
			}
		}
	}
	o.adapters = make(map[string]map[string]*registration)
	return nil
}

// ---------------------------------------------------------------------------
// Registry internals
// ---------------------------------------------------------------------------

func (o *Orchestrator) register(userID, platformID string, reg *registration) {
	o.mu.Lock()
	if o.adapters[userID] == nil {
		o.adapters[userID] = make(map[string]*registration)
	}
	previous := o.adapters[userID][platformID]
	o.adapters[userID][platformID] = reg
	o.mu.Unlock()

	if previous != nil {
		if err := previous.adapter.Close(); err != nil {
			o.logger.Warn("Replaced adapter close failed", zap.Error(err))
		}
	}
}

func (o *Orchestrator) deregister(userID, platformID string) *registration {
	o.mu.Lock()
	defer o.mu.Unlock()
	reg := o.adapters[userID][platformID]
	if reg != nil {
		delete(o.adapters[userID], platformID)
	}
	return reg
}

func (o *Orchestrator) userRegistrations(userID string) []*registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	regs := make([]*registration, 0, len(o.adapters[userID]))
	for _, reg := range o.adapters[userID] {
		regs = append(regs, reg)
	}
	return regs
}

func (o *Orchestrator) findByPlatform(userID string, platform integration.Platform) *registration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, reg := range o.adapters[userID] {
		if reg.adapter.Platform() == platform {
			return reg
		}
	}
	return nil
}

// audit appends one entry, sanitizing its detail map first. Audit failures
// are logged, never propagated; an unreachable audit store must not fail
// the audited operation.
func (o *Orchestrator) audit(ctx context.Context, entry *security.AuditEntry) {
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()
	entry.Detail = security.Sanitize(entry.Detail)
	if err := o.audits.Append(ctx, entry); err != nil {
		o.logger.Error("Failed to append audit entry",
			zap.String("action", entry.Action.String()),
			zap.Error(err),
		)
	}
}
