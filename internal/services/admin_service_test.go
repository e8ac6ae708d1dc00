package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finagent/identity/internal/models"
)

// mockAdminUserRepository implements AdminUserRepository for testing
type mockAdminUserRepository struct {
	CountTotalFunc    func(ctx context.Context) (int64, error)
	CountActiveFunc   func(ctx context.Context) (int64, error)
	CountLockedFunc   func(ctx context.Context) (int64, error)
	CountByRoleFunc   func(ctx context.Context, role models.Role) (int64, error)
	CountNewSinceFunc func(ctx context.Context, since time.Time) (int64, error)
}

func (m *mockAdminUserRepository) CountTotal(ctx context.Context) (int64, error) {
	if m.CountTotalFunc != nil {
		return m.CountTotalFunc(ctx)
	}
	return 0, nil
}

func (m *mockAdminUserRepository) CountActive(ctx context.Context) (int64, error) {
	if m.CountActiveFunc != nil {
		return m.CountActiveFunc(ctx)
	}
	return 0, nil
}

func (m *mockAdminUserRepository) CountLocked(ctx context.Context) (int64, error) {
	if m.CountLockedFunc != nil {
		return m.CountLockedFunc(ctx)
	}
	return 0, nil
}

func (m *mockAdminUserRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	if m.CountByRoleFunc != nil {
		return m.CountByRoleFunc(ctx, role)
	}
	return 0, nil
}

func (m *mockAdminUserRepository) CountNewSince(ctx context.Context, since time.Time) (int64, error) {
	if m.CountNewSinceFunc != nil {
		return m.CountNewSinceFunc(ctx, since)
	}
	return 0, nil
}

// mockAdminAuditRepository implements AdminAuditRepository for testing
type mockAdminAuditRepository struct {
	GetByActionFunc       func(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
	GetFailedAttemptsFunc func(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}

func (m *mockAdminAuditRepository) GetByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetByActionFunc != nil {
		return m.GetByActionFunc(ctx, action, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func (m *mockAdminAuditRepository) GetFailedAttempts(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
	if m.GetFailedAttemptsFunc != nil {
		return m.GetFailedAttemptsFunc(ctx, limit, offset)
	}
	return []*models.AuditLog{}, nil
}

func auditEntry(userID, username, action string, success bool) *models.AuditLog {
	return &models.AuditLog{
		UserID:    &userID,
		Username:  &username,
		Action:    action,
		Success:   success,
		CreatedAt: time.Now(),
	}
}

func TestAdminService_GetDashboardStats(t *testing.T) {
	roleCounts := map[models.Role]int64{
		models.RoleUser:     40,
		models.RoleAdmin:    4,
		models.RoleSysadmin: 1,
	}

	userRepo := &mockAdminUserRepository{
		CountTotalFunc:  func(ctx context.Context) (int64, error) { return 45, nil },
		CountActiveFunc: func(ctx context.Context) (int64, error) { return 42, nil },
		CountLockedFunc: func(ctx context.Context) (int64, error) { return 2, nil },
		CountByRoleFunc: func(ctx context.Context, role models.Role) (int64, error) {
			return roleCounts[role], nil
		},
		CountNewSinceFunc: func(ctx context.Context, since time.Time) (int64, error) { return 3, nil },
	}

	service := NewAdminService(userRepo, &mockAdminAuditRepository{}, slog.Default())

	stats, err := service.GetDashboardStats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(45), stats.TotalUsers)
	assert.Equal(t, int64(42), stats.ActiveUsers)
	assert.Equal(t, int64(2), stats.LockedUsers)
	assert.Equal(t, int64(3), stats.NewUsersToday)
	assert.Equal(t, int64(40), stats.RoleBreakdown["user"])
	assert.Equal(t, int64(4), stats.RoleBreakdown["admin"])
	assert.Equal(t, int64(1), stats.RoleBreakdown["sysadmin"])
}

func TestAdminService_GetDashboardStats_RepositoryError(t *testing.T) {
	userRepo := &mockAdminUserRepository{
		CountTotalFunc: func(ctx context.Context) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}

	service := NewAdminService(userRepo, &mockAdminAuditRepository{}, slog.Default())

	stats, err := service.GetDashboardStats(context.Background())

	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.Nil(t, stats)
}

func TestAdminService_GetRecentActivity(t *testing.T) {
	auditRepo := &mockAdminAuditRepository{
		GetByActionFunc: func(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
			switch action {
			case models.AuditActionLoginSuccess:
				return []*models.AuditLog{auditEntry("user-1", "alice", action, true)}, nil
			case models.AuditActionAccountLocked:
				return []*models.AuditLog{auditEntry("user-2", "bob", action, false)}, nil
			}
			return []*models.AuditLog{}, nil
		},
		GetFailedAttemptsFunc: func(ctx context.Context, limit, offset int) ([]*models.AuditLog, error) {
			return []*models.AuditLog{
				auditEntry("user-2", "bob", models.AuditActionLoginFailed, false),
				auditEntry("user-2", "bob", models.AuditActionLoginFailed, false),
			}, nil
		},
	}

	service := NewAdminService(&mockAdminUserRepository{}, auditRepo, slog.Default())

	activity, err := service.GetRecentActivity(context.Background(), 20)

	require.NoError(t, err)
	require.Len(t, activity.RecentLogins, 1)
	assert.Equal(t, models.AuditActionLoginSuccess, activity.RecentLogins[0].Action)
	require.Len(t, activity.RecentLockouts, 1)
	assert.Equal(t, "bob", *activity.RecentLockouts[0].Username)
	assert.Len(t, activity.FailedEvents, 2)
}

func TestAdminService_GetRecentActivity_ClampsLimit(t *testing.T) {
	var gotLimit int
	auditRepo := &mockAdminAuditRepository{
		GetByActionFunc: func(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
			gotLimit = limit
			return []*models.AuditLog{}, nil
		},
	}

	service := NewAdminService(&mockAdminUserRepository{}, auditRepo, slog.Default())

	_, err := service.GetRecentActivity(context.Background(), 500)

	require.NoError(t, err)
	assert.Equal(t, 20, gotLimit)
}
