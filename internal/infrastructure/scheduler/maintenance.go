// Package scheduler runs the periodic maintenance loops: credential expiry
// sweeps, idle chat window eviction, and audit log archival with retention.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omnihub/backend/internal/domain/security"
)

// ChatEvictor drops per-chat rate limit windows that have been idle past
// their eviction threshold.
type ChatEvictor interface {
	EvictIdleChats() int
}

// AuditArchiver persists a batch of audit entries to cold storage and
// returns the object key it wrote.
type AuditArchiver interface {
	Archive(ctx context.Context, entries []*security.AuditEntry) (string, error)
}

// MaintenanceConfig holds configuration for the maintenance scheduler.
type MaintenanceConfig struct {
	Enabled         bool
	SweepInterval   time.Duration // Credential expiry and chat eviction cadence
	ArchiveInterval time.Duration // Audit archival cadence
	AuditRetention  time.Duration // Entries older than this are archived and deleted
	ArchiveBatch    int           // Max entries per archive object
	RunTimeout      time.Duration // Per-run timeout for sweep and archive
}

func (c MaintenanceConfig) withDefaults() MaintenanceConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.ArchiveInterval <= 0 {
		c.ArchiveInterval = 24 * time.Hour
	}
	if c.AuditRetention <= 0 {
		c.AuditRetention = 90 * 24 * time.Hour
	}
	if c.ArchiveBatch <= 0 {
		c.ArchiveBatch = 1000
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	return c
}

// MaintenanceScheduler owns the background maintenance goroutines.
type MaintenanceScheduler struct {
	credentials security.CredentialRepository
	audits      security.AuditRepository
	archiver    AuditArchiver // nil: entries past retention are deleted without archival
	evictor     ChatEvictor   // nil: no chat eviction
	logger      *zap.Logger
	config      MaintenanceConfig

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewMaintenanceScheduler creates a new maintenance scheduler.
func NewMaintenanceScheduler(
	credentials security.CredentialRepository,
	audits security.AuditRepository,
	archiver AuditArchiver,
	evictor ChatEvictor,
	logger *zap.Logger,
	config MaintenanceConfig,
) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		credentials: credentials,
		audits:      audits,
		archiver:    archiver,
		evictor:     evictor,
		logger:      logger,
		config:      config.withDefaults(),
	}
}

// Start launches the sweep and archive loops.
func (s *MaintenanceScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Maintenance scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(2)
	go s.runSweeps(ctx)
	go s.runArchives(ctx)

	s.logger.Info("Maintenance scheduler started",
		zap.Duration("sweep_interval", s.config.SweepInterval),
		zap.Duration("archive_interval", s.config.ArchiveInterval),
		zap.Duration("audit_retention", s.config.AuditRetention),
	)

	return nil
}

// Stop gracefully stops the scheduler, waiting for in-flight runs.
func (s *MaintenanceScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Maintenance scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Maintenance scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *MaintenanceScheduler) runSweeps(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sweep loop stopping")
			return
		case <-ticker.C:
			if err := s.SweepNow(ctx); err != nil {
				s.logger.Error("Maintenance sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *MaintenanceScheduler) runArchives(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Archive loop stopping")
			return
		case <-ticker.C:
			if err := s.ArchiveNow(ctx); err != nil {
				s.logger.Error("Audit archival failed", zap.Error(err))
			}
		}
	}
}

// SweepNow deactivates credentials past their expiry and evicts idle chat
// windows. It is called by the sweep loop and can be triggered manually.
func (s *MaintenanceScheduler) SweepNow(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	now := time.Now().UTC()
	expired, err := s.credentials.ExpireStale(runCtx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		s.logger.Info("Expired stale credentials", zap.Int64("count", expired))
		entry := &security.AuditEntry{
			Timestamp: now,
			UserID:    "system",
			Action:    security.ActionCredentialExpired,
			Detail:    map[string]any{"expired": expired},
			Success:   true,
		}
		if err := s.audits.Append(runCtx, entry); err != nil {
			s.logger.Warn("Failed to record credential expiry audit entry", zap.Error(err))
		}
	}

	if s.evictor != nil {
		if evicted := s.evictor.EvictIdleChats(); evicted > 0 {
			s.logger.Debug("Evicted idle chat windows", zap.Int("count", evicted))
		}
	}

	return nil
}

// ArchiveNow moves audit entries past the retention window to cold storage
// in batches, deleting each batch only after its archive object is written.
// Without an archiver the entries are deleted directly.
func (s *MaintenanceScheduler) ArchiveNow(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.config.AuditRetention)

	if s.archiver == nil {
		deleted, err := s.audits.DeleteOlderThan(runCtx, cutoff)
		if err != nil {
			return err
		}
		if deleted > 0 {
			s.logger.Info("Deleted audit entries past retention",
				zap.Int64("count", deleted),
				zap.Time("cutoff", cutoff),
			)
		}
		return nil
	}

	var archived int
	for {
		entries, err := s.audits.OlderThan(runCtx, cutoff, s.config.ArchiveBatch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			break
		}

		key, err := s.archiver.Archive(runCtx, entries)
		if err != nil {
			return err
		}

		// Entries arrive oldest first, so everything at or before the
		// newest timestamp in this batch has already been archived.
		newest := entries[len(entries)-1].Timestamp
		if _, err := s.audits.DeleteOlderThan(runCtx, newest.Add(time.Nanosecond)); err != nil {
			return err
		}

		archived += len(entries)
		s.logger.Debug("Archived audit batch",
			zap.String("key", key),
			zap.Int("entries", len(entries)),
		)
	}

	if archived > 0 {
		s.logger.Info("Audit archival complete",
			zap.Int("archived", archived),
			zap.Time("cutoff", cutoff),
		)
	}
	return nil
}
