package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/finagent/identity/internal/auth"
	"github.com/finagent/identity/internal/models"
	pkgauth "github.com/finagent/identity/pkg/auth"
	pkglogger "github.com/finagent/identity/pkg/logger"
)

// TokenRevocationRepository defines the interface for the revocation ledger
type TokenRevocationRepository interface {
	RevokeToken(ctx context.Context, token *models.RevokedToken) error
	RevokeAllUserTokens(ctx context.Context, userID, reason string) error
	IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)
}

// TimingWaiter pads failed login attempts to a uniform duration
type TimingWaiter interface {
	WaitFrom(startTime time.Time, success bool)
}

// LockoutPolicy holds the brute-force lockout parameters
type LockoutPolicy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
}

// AuthService handles authentication business logic
type AuthService struct {
	repo        UserRepository
	revokeRepo  TokenRevocationRepository
	tm          *auth.TokenManager
	audit       AuditRecorder
	auditLogger *pkglogger.AuditLogger
	emails      EmailService
	timing      TimingWaiter
	lockout     LockoutPolicy
	logger      *slog.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	revokeRepo TokenRevocationRepository,
	tm *auth.TokenManager,
	audit AuditRecorder,
	auditLogger *pkglogger.AuditLogger,
	emails EmailService,
	timing TimingWaiter,
	lockout LockoutPolicy,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		revokeRepo:  revokeRepo,
		tm:          tm,
		audit:       audit,
		auditLogger: auditLogger,
		emails:      emails,
		timing:      timing,
		lockout:     lockout,
		logger:      logger,
	}
}

// UserResponse represents a user in the HTTP response
type UserResponse struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	IsActive  bool    `json:"is_active"`
	LastLogin *string `json:"last_login,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// AuthResponse represents the response from auth operations
type AuthResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	User         *UserResponse `json:"user"`
}

// Register creates a new user account and signs it in
func (s *AuthService) Register(ctx context.Context, username, email, password, ipAddress string) (*AuthResponse, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if username == "" || email == "" {
		return nil, models.ErrBadRequest
	}

	if err := pkgauth.ValidatePassword(password); err != nil {
		s.logger.Info("registration rejected: weak password")
		return nil, models.ErrWeakPassword
	}

	// Check both unique identities up front for a clean conflict error. The
	// database constraints still back this up under concurrent registration.
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		s.logger.Info("registration failed: username taken")
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		s.logger.Info("registration failed: email taken")
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check email", slog.Any("error", err))
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
		Role:         models.RoleUser,
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

	pair, err := s.tm.IssuePair(createdUser)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", createdUser.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", createdUser.ID))
	s.audit.Record(ctx, &models.AuditLog{
		UserID:    &createdUser.ID,
		Username:  &createdUser.Username,
		Action:    models.AuditActionRegister,
		Success:   true,
		IPAddress: optional(ipAddress),
	})

	return authResponse(pair, createdUser), nil
}

// Login authenticates a user and returns a token pair. Failed attempts
// increment the lockout counter; reaching the threshold locks the account
// for the configured duration and a locked account rejects even correct
// credentials until the lock expires.
func (s *AuthService) Login(ctx context.Context, username, password, ipAddress string) (*AuthResponse, error) {
	start := time.Now()

	if username = strings.TrimSpace(username); username == "" {
		s.logger.Warn("login attempt with empty username")
		return nil, models.ErrUnauthorized
	}

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordLoginFailure(ctx, nil, username, ipAddress, "invalid_credentials")
			s.delay(start)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, user, username, ipAddress, "account_inactive")
		s.delay(start)
		return nil, models.ErrAccountInactive
	}

	now := time.Now()
	if user.Locked(now) {
		s.recordLoginFailure(ctx, user, username, ipAddress, "account_locked")
		s.delay(start)
		return nil, models.ErrAccountLocked
	}

	// An expired lock is cleared here so the failure counter starts fresh
	// rather than re-locking on the first miss.
	if user.LockedUntil != nil {
		if err := s.repo.ClearLock(ctx, user.ID); err != nil {
			s.logger.Error("failed to clear expired lock", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		if err := s.handleFailedPassword(ctx, user, ipAddress); err != nil {
			return nil, err
		}
		s.delay(start)
		return nil, models.ErrUnauthorized
	}

	if err := s.repo.RecordLoginSuccess(ctx, user.ID); err != nil {
		s.logger.Error("failed to record login success", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pair, err := s.tm.IssuePair(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: models.AuditActionLoginSuccess,
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: ipAddress,
		Success:   true,
	})
	s.audit.Record(ctx, &models.AuditLog{
		UserID:    &user.ID,
		Username:  &user.Username,
		Action:    models.AuditActionLoginSuccess,
		Success:   true,
		IPAddress: optional(ipAddress),
	})

	return authResponse(pair, user), nil
}

// handleFailedPassword bumps the failure counter atomically and, when the
// attempt crossed the lockout threshold, records the lock and alerts the
// account owner.
func (s *AuthService) handleFailedPassword(ctx context.Context, user *models.User, ipAddress string) error {
	lockedUntil := time.Now().Add(s.lockout.LockoutDuration)

	updated, err := s.repo.RecordLoginFailure(ctx, user.ID, s.lockout.MaxAttempts, lockedUntil)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.recordLoginFailure(ctx, user, user.Username, ipAddress, "invalid_credentials")

	if updated.Locked(time.Now()) {
		s.auditLogger.LogLockout(user.ID, user.Username, ipAddress, updated.FailedLoginAttempts, *updated.LockedUntil)
		s.audit.Record(ctx, &models.AuditLog{
			UserID:    &user.ID,
			Username:  &user.Username,
			Action:    models.AuditActionAccountLocked,
			Success:   false,
			Reason:    optional("max_attempts_exceeded"),
			IPAddress: optional(ipAddress),
		})

		if err := s.emails.SendLockoutAlert(ctx, user.Email, user.Username, *updated.LockedUntil); err != nil {
			s.logger.Error("failed to send lockout alert", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}

	return nil
}

// Refresh validates a refresh token and rotates it: the old refresh token is
// revoked and a fresh pair is issued. A stolen refresh token therefore stops
// working the moment the legitimate client uses it.
func (s *AuthService) Refresh(ctx context.Context, refreshTokenString string) (*AuthResponse, error) {
	if refreshTokenString = strings.TrimSpace(refreshTokenString); refreshTokenString == "" {
		return nil, models.ErrTokenInvalid
	}

	claims, err := s.tm.Verify(refreshTokenString, models.TokenKindRefresh)
	if err != nil {
		s.logger.Info("refresh token validation failed", slog.Any("error", err))
		return nil, err
	}

	issuedAt := time.Time{}
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	revoked, err := s.revokeRepo.IsRevoked(ctx, claims.ID, claims.UserID, issuedAt)
	if err != nil {
		s.logger.Error("revocation check failed", slog.String("jti", claims.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if revoked {
		s.logger.Warn("refresh attempt with revoked token", slog.String("user_id", claims.UserID))
		return nil, models.ErrTokenRevoked
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("user not found for token refresh", slog.String("user_id", claims.UserID))
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user for token refresh", slog.String("user_id", claims.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if !user.IsActive {
		return nil, models.ErrAccountInactive
	}

	// A lockout suspends the whole session surface: no fresh access tokens
	// until the lock expires.
	if user.Locked(time.Now()) {
		s.logger.Warn("refresh attempt on locked account", slog.String("user_id", user.ID))
		return nil, models.ErrAccountLocked
	}

	// Rotate: the old refresh token is single use
	if err := s.revokeRepo.RevokeToken(ctx, &models.RevokedToken{
		JTI:       claims.ID,
		UserID:    claims.UserID,
		TokenKind: models.TokenKindRefresh,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    models.RevocationReasonRotation,
	}); err != nil {
		s.logger.Error("failed to revoke rotated refresh token", slog.String("jti", claims.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pair, err := s.tm.IssuePair(user)
	if err != nil {
		s.logger.Error("failed to issue tokens", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.logger.Info("token refreshed", slog.String("user_id", user.ID))
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &user.ID,
		Username: &user.Username,
		Action:   models.AuditActionTokenRefreshed,
		Success:  true,
	})

	return authResponse(pair, user), nil
}

// Logout revokes the presented tokens. The signature is still verified but
// expiry is not, so a client can always clear out a stale session, and
// revoking an already revoked token is a no-op.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var userID, username string

	for _, tokenString := range []string{accessToken, refreshToken} {
		if strings.TrimSpace(tokenString) == "" {
			continue
		}

		claims, err := s.tm.ExtractClaims(tokenString)
		if err != nil {
			return models.ErrTokenInvalid
		}

		if err := s.revokeRepo.RevokeToken(ctx, &models.RevokedToken{
			JTI:       claims.ID,
			UserID:    claims.UserID,
			TokenKind: claims.Kind,
			ExpiresAt: claims.ExpiresAt.Time,
			Reason:    models.RevocationReasonLogout,
		}); err != nil {
			s.logger.Error("failed to revoke token", slog.String("jti", claims.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		userID = claims.UserID
		username = claims.Username
	}

	if userID == "" {
		return models.ErrTokenInvalid
	}

	s.logger.Info("user logged out", slog.String("user_id", userID))
	s.audit.Record(ctx, &models.AuditLog{
		UserID:   &userID,
		Username: &username,
		Action:   models.AuditActionLogout,
		Success:  true,
	})

	return nil
}

// recordLoginFailure writes the failure to both the structured log and the
// audit trail. user may be nil when the username did not resolve.
func (s *AuthService) recordLoginFailure(ctx context.Context, user *models.User, username, ipAddress, reason string) {
	event := pkglogger.AuditEvent{
		EventType:     models.AuditActionLoginFailed,
		IPAddress:     ipAddress,
		FailureReason: reason,
		Success:       false,
	}

	log := &models.AuditLog{
		Username:  optional(username),
		Action:    models.AuditActionLoginFailed,
		Success:   false,
		Reason:    optional(reason),
		IPAddress: optional(ipAddress),
	}

	if user != nil {
		event.UserID = user.ID
		event.Username = user.Username
		log.UserID = &user.ID
	}

	s.auditLogger.LogAuthAttempt(event)
	s.audit.Record(ctx, log)
}

func (s *AuthService) delay(start time.Time) {
	if s.timing != nil {
		s.timing.WaitFrom(start, false)
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func authResponse(pair *models.TokenPair, user *models.User) *AuthResponse {
	return &AuthResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		User:         userModelToResponse(user),
	}
}

// userModelToResponse converts a user model to response DTO
func userModelToResponse(user *models.User) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
	if user.LastLogin != nil {
		lastLogin := user.LastLogin.Format(time.RFC3339)
		resp.LastLogin = &lastLogin
	}
	return resp
}
