package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/finagent/identity/internal/models"
	pkgauth "github.com/finagent/identity/pkg/auth"
	pkglogger "github.com/finagent/identity/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	DeleteWithRevocation(ctx context.Context, id, reason string) error
	RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) (*models.User, error)
	RecordLoginSuccess(ctx context.Context, id string) error
	ClearLock(ctx context.Context, id string) error
	CountByRole(ctx context.Context, role models.Role) (int64, error)
}

// UserService handles user account business logic
type UserService struct {
	repo        UserRepository
	revokeRepo  TokenRevocationRepository
	audit       AuditRecorder
	auditLogger *pkglogger.AuditLogger
	emails      EmailService
	logger      *slog.Logger
}

// NewUserService creates a new UserService
func NewUserService(
	repo UserRepository,
	revokeRepo TokenRevocationRepository,
	audit AuditRecorder,
	auditLogger *pkglogger.AuditLogger,
	emails EmailService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		repo:        repo,
		revokeRepo:  revokeRepo,
		audit:       audit,
		auditLogger: auditLogger,
		emails:      emails,
		logger:      logger,
	}
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found", slog.String("user_id", id))
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return user, nil
}

// ListUsers retrieves a list of users with pagination
func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Int("limit", limit), slog.Int("offset", offset), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return users, nil
}

// UpdateProfile updates the caller's own username and email
func (s *UserService) UpdateProfile(ctx context.Context, id, username, email string) (*models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if username = strings.TrimSpace(username); username != "" {
		user.Username = username
	}
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		user.Email = email
	}

	updated, err := s.repo.Update(ctx, id, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("profile updated", slog.String("user_id", id))
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &updated.ID,
		Username: &updated.Username,
		Action:   models.AuditActionProfileUpdated,
		Success:  true,
	})

	return updated, nil
}

// ChangePassword verifies the current password, stores the new one and
// revokes every outstanding token for the user. Clients must sign in again
// with the new password.
func (s *UserService) ChangePassword(ctx context.Context, id, currentPassword, newPassword, ipAddress string) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		s.logger.Info("password change rejected: wrong current password", slog.String("user_id", id))
		s.auditLogger.LogPasswordChange(id, ipAddress, false)
		s.audit.Record(ctx, &models.AuditLog{
			UserID:    &user.ID,
			Username:  &user.Username,
			Action:    models.AuditActionPasswordChanged,
			Success:   false,
			Reason:    optional("invalid_current_password"),
			IPAddress: optional(ipAddress),
		})
		return models.ErrUnauthorized
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return models.ErrWeakPassword
	}

	hashedPassword, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.repo.UpdatePassword(ctx, id, hashedPassword); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.revokeRepo.RevokeAllUserTokens(ctx, id, models.RevocationReasonPasswordChange); err != nil {
		s.logger.Error("failed to revoke tokens after password change", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password changed", slog.String("user_id", id))
	s.auditLogger.LogPasswordChange(id, ipAddress, true)
	s.audit.Record(ctx, &models.AuditLog{
		UserID:    &user.ID,
		Username:  &user.Username,
		Action:    models.AuditActionPasswordChanged,
		Success:   true,
		IPAddress: optional(ipAddress),
	})

	if err := s.emails.SendPasswordChangedNotice(ctx, user.Email, user.Username); err != nil {
		s.logger.Error("failed to send password change notice", slog.String("user_id", id), slog.Any("error", err))
	}

	return nil
}

// DeleteAccount removes the user and revokes every outstanding token in the
// same transaction, so tokens issued before deletion stop working
// immediately.
func (s *UserService) DeleteAccount(ctx context.Context, id string) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteWithRevocation(ctx, id, models.RevocationReasonAccountDeleted); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to delete user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("account deleted", slog.String("user_id", id))
	s.auditLogger.LogAccountAction("account_deleted", id, "", nil)
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &id,
		Username: &user.Username,
		Action:   models.AuditActionAccountDeleted,
		Success:  true,
	})

	return nil
}

// CreateUser creates a user with an explicit role. Used by admin endpoints
// and the sysadmin bootstrap.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string, role models.Role) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" || email == "" {
		return nil, models.ErrBadRequest
	}
	if !role.IsValid() {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, models.ErrWeakPassword
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hashedPassword, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         role,
		IsActive:     true,
	}

	createdUser, err := s.repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user created", slog.String("user_id", createdUser.ID), slog.String("role", string(role)))
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &createdUser.ID,
		Username: &createdUser.Username,
		Action:   models.AuditActionUserCreated,
		Success:  true,
		Details:  models.AuditDetails{"role": string(role)},
	})

	return createdUser, nil
}

// UpdateUser applies admin updates (role, active flag) to a user.
// Deactivating a user also revokes all their outstanding tokens.
func (s *UserService) UpdateUser(ctx context.Context, id string, role models.Role, isActive *bool) (*models.User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	deactivated := false

	if role != "" {
		if !role.IsValid() {
			return nil, models.ErrBadRequest
		}
		user.Role = role
	}
	if isActive != nil {
		deactivated = user.IsActive && !*isActive
		user.IsActive = *isActive
	}

	updated, err := s.repo.Update(ctx, id, user)
	if err != nil {
		s.logger.Error("failed to update user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if deactivated {
		if err := s.revokeRepo.RevokeAllUserTokens(ctx, id, models.RevocationReasonAdminAction); err != nil {
			s.logger.Error("failed to revoke tokens on deactivation", slog.String("user_id", id), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.auditLogger.LogAccountAction("account_deactivated", id, "", nil)
	}

	s.logger.Info("user updated", slog.String("user_id", id))
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &updated.ID,
		Username: &updated.Username,
		Action:   models.AuditActionUserUpdated,
		Success:  true,
	})

	return updated, nil
}

// UnlockUser clears an active lockout ahead of its expiry
func (s *UserService) UnlockUser(ctx context.Context, id string) error {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.ClearLock(ctx, id); err != nil {
		s.logger.Error("failed to unlock user", slog.String("user_id", id), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("user unlocked", slog.String("user_id", id))
	s.auditLogger.LogAccountAction("account_unlocked", id, "", map[string]string{"username": user.Username})
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &id,
		Username: &user.Username,
		Action:   models.AuditActionUserUnlocked,
		Success:  true,
	})

	return nil
}

// EnsureSysadmin creates the initial sysadmin account on first startup.
// The gate is "does any sysadmin exist", not the configured username, so an
// existing sysadmin under a different name suppresses the bootstrap.
func (s *UserService) EnsureSysadmin(ctx context.Context, username, email, password string) error {
	count, err := s.repo.CountByRole(ctx, models.RoleSysadmin)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = s.CreateUser(ctx, username, email, password, models.RoleSysadmin)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Another instance won the race
			return nil
		}
		return err
	}

	s.logger.Info("sysadmin account bootstrapped", slog.String("username", username))
	return nil
}
