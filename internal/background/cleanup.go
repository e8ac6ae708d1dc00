package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/finagent/identity/internal/repositories"
)

// auditRetentionDays controls how long audit entries are kept
const auditRetentionDays = 90

// CleanupManager periodically prunes the revocation ledger and old audit
// entries: expired revoked tokens, watermarks older than the maximum token
// lifetime, and audit logs past the retention window.
type CleanupManager struct {
	revokeRepo       *repositories.TokenRevocationRepository
	auditRepo        *repositories.AuditLogRepository
	maxTokenLifetime time.Duration
	logger           *slog.Logger
	interval         time.Duration
	stopCh           chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	revokeRepo *repositories.TokenRevocationRepository,
	auditRepo *repositories.AuditLogRepository,
	maxTokenLifetime time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		revokeRepo:       revokeRepo,
		auditRepo:        auditRepo,
		maxTokenLifetime: maxTokenLifetime,
		logger:           logger,
		interval:         interval,
		stopCh:           make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting revocation ledger cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokensDeleted, err := cm.revokeRepo.CleanupExpiredTokens(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired revoked tokens", slog.Any("error", err))
	} else if tokensDeleted > 0 {
		cm.logger.Info("expired revoked tokens pruned", slog.Int64("rows_deleted", tokensDeleted))
	}

	watermarksDeleted, err := cm.revokeRepo.CleanupWatermarks(cleanupCtx, cm.maxTokenLifetime)
	if err != nil {
		cm.logger.Error("failed to cleanup stale watermarks", slog.Any("error", err))
	} else if watermarksDeleted > 0 {
		cm.logger.Info("stale revocation watermarks pruned", slog.Int64("rows_deleted", watermarksDeleted))
	}

	auditDeleted, err := cm.auditRepo.Cleanup(cleanupCtx, auditRetentionDays)
	if err != nil {
		cm.logger.Error("failed to cleanup old audit logs", slog.Any("error", err))
	} else if auditDeleted > 0 {
		cm.logger.Info("old audit logs pruned", slog.Int64("rows_deleted", auditDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
