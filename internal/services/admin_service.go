package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/finagent/identity/internal/models"
)

// AdminUserRepository is the subset of UserRepository methods needed by AdminService.
type AdminUserRepository interface {
	CountTotal(ctx context.Context) (int64, error)
	CountActive(ctx context.Context) (int64, error)
	CountLocked(ctx context.Context) (int64, error)
	CountByRole(ctx context.Context, role models.Role) (int64, error)
	CountNewSince(ctx context.Context, since time.Time) (int64, error)
}

// AdminAuditRepository is the subset of AuditLogRepository methods needed by AdminService.
type AdminAuditRepository interface {
	GetByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	GetFailedAttempts(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

// DashboardStatsResponse contains aggregate admin metrics.
type DashboardStatsResponse struct {
	TotalUsers    int64            `json:"total_users"`
	ActiveUsers   int64            `json:"active_users"`
	LockedUsers   int64            `json:"locked_users"`
	NewUsersToday int64            `json:"new_users_today"`
	RoleBreakdown map[string]int64 `json:"role_breakdown"`
}

// ActivityEntry is a single item in a recent-activity feed.
type ActivityEntry struct {
	Timestamp string  `json:"timestamp"`
	UserID    *string `json:"user_id,omitempty"`
	Username  *string `json:"username,omitempty"`
	Action    string  `json:"action"`
	Success   bool    `json:"success"`
}

// DashboardActivityResponse contains recent event feeds.
type DashboardActivityResponse struct {
	RecentLogins   []ActivityEntry `json:"recent_logins"`
	RecentLockouts []ActivityEntry `json:"recent_lockouts"`
	FailedEvents   []ActivityEntry `json:"failed_events"`
}

// AdminService aggregates data for admin dashboard endpoints.
type AdminService struct {
	userRepo  AdminUserRepository
	auditRepo AdminAuditRepository
	logger    *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(userRepo AdminUserRepository, auditRepo AdminAuditRepository, logger *slog.Logger) *AdminService {
	return &AdminService{
		userRepo:  userRepo,
		auditRepo: auditRepo,
		logger:    logger,
	}
}

// GetDashboardStats returns aggregate user and lockout counts.
func (s *AdminService) GetDashboardStats(ctx context.Context) (*DashboardStatsResponse, error) {
	total, err := s.userRepo.CountTotal(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count total users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	active, err := s.userRepo.CountActive(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count active users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	locked, err := s.userRepo.CountLocked(ctx)
	if err != nil {
		s.logger.Error("dashboard: failed to count locked users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	breakdown := make(map[string]int64, 3)
	for _, role := range []models.Role{models.RoleUser, models.RoleAdmin, models.RoleSysadmin} {
		count, err := s.userRepo.CountByRole(ctx, role)
		if err != nil {
			s.logger.Error("dashboard: failed to count users by role",
				slog.String("role", string(role)), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		breakdown[string(role)] = count
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	newToday, err := s.userRepo.CountNewSince(ctx, today)
	if err != nil {
		s.logger.Error("dashboard: failed to count new users today", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &DashboardStatsResponse{
		TotalUsers:    total,
		ActiveUsers:   active,
		LockedUsers:   locked,
		NewUsersToday: newToday,
		RoleBreakdown: breakdown,
	}, nil
}

// GetRecentActivity returns recent auth event feeds for the activity
// dashboard. limit is clamped to a maximum of 20.
func (s *AdminService) GetRecentActivity(ctx context.Context, limit int) (*DashboardActivityResponse, error) {
	if limit <= 0 || limit > 20 {
		limit = 20
	}

	logins, err := s.auditRepo.GetByAction(ctx, models.AuditActionLoginSuccess, limit, 0)
	if err != nil {
		s.logger.Error("dashboard: failed to fetch recent logins", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	lockouts, err := s.auditRepo.GetByAction(ctx, models.AuditActionAccountLocked, limit, 0)
	if err != nil {
		s.logger.Error("dashboard: failed to fetch recent lockouts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	failures, err := s.auditRepo.GetFailedAttempts(ctx, limit, 0)
	if err != nil {
		s.logger.Error("dashboard: failed to fetch failed events", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &DashboardActivityResponse{
		RecentLogins:   toActivityEntries(logins),
		RecentLockouts: toActivityEntries(lockouts),
		FailedEvents:   toActivityEntries(failures),
	}, nil
}

func toActivityEntries(logs []*models.AuditLog) []ActivityEntry {
	entries := make([]ActivityEntry, 0, len(logs))
	for _, log := range logs {
		entries = append(entries, ActivityEntry{
			Timestamp: log.CreatedAt.UTC().Format(time.RFC3339),
			UserID:    log.UserID,
			Username:  log.Username,
			Action:    log.Action,
			Success:   log.Success,
		})
	}
	return entries
}
