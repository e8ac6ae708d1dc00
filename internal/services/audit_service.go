package services

import (
	"context"
	"log/slog"

	"github.com/finagent/identity/internal/models"
)

// AuditLogRepository defines the interface for audit log persistence
type AuditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
	List(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
	GetByUserID(ctx context.Context, userID string, limit, offset int) ([]*models.AuditLog, error)
	GetByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	GetFailedAttempts(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// AuditRecorder records security events to the audit trail
type AuditRecorder interface {
	Record(ctx context.Context, log *models.AuditLog)
}

// AuditService persists audit events. Recording is best effort: a failed
// write is logged but never fails the operation being audited.
type AuditService struct {
	repo   AuditLogRepository
	logger *slog.Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:   repo,
		logger: logger,
	}
}

// Record writes an audit entry
func (s *AuditService) Record(ctx context.Context, log *models.AuditLog) {
	if _, err := s.repo.Create(ctx, log); err != nil {
		s.logger.Error("failed to record audit event",
			slog.String("action", log.Action),
			slog.Any("error", err))
	}
}

// List retrieves recent audit entries, optionally filtered by action or user
func (s *AuditService) List(ctx context.Context, action, userID string, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var logs []*models.AuditLog
	var err error

	switch {
	case userID != "":
		logs, err = s.repo.GetByUserID(ctx, userID, limit, offset)
	case action != "":
		logs, err = s.repo.GetByAction(ctx, action, limit, offset)
	default:
		logs, err = s.repo.List(ctx, limit, offset)
	}

	if err != nil {
		s.logger.Error("failed to list audit logs", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return logs, nil
}

// ListFailures retrieves recent failed events
func (s *AuditService) ListFailures(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	logs, err := s.repo.GetFailedAttempts(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list failed audit events", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return logs, nil
}
