package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finagent/identity/internal/auth"
	"github.com/finagent/identity/internal/models"
	pkgauth "github.com/finagent/identity/pkg/auth"
	pkglogger "github.com/finagent/identity/pkg/logger"
)

const testJWTSecret = "test-secret-32-characters-long-for-testing"

type authServiceFixture struct {
	service    *AuthService
	userRepo   *MockUserRepository
	revokeRepo *MockTokenRevocationRepository
	audit      *MockAuditRecorder
	emails     *MockEmailService
	timing     *MockTimingDelay
	tm         *auth.TokenManager
}

func newAuthServiceFixture(userRepo *MockUserRepository) *authServiceFixture {
	logger := slog.Default()
	revokeRepo := &MockTokenRevocationRepository{}
	audit := &MockAuditRecorder{}
	emails := &MockEmailService{}
	timing := &MockTimingDelay{}
	tm := auth.NewTokenManager(testJWTSecret, 30*time.Minute, 7*24*time.Hour)

	service := NewAuthService(
		userRepo, revokeRepo, tm,
		audit, pkglogger.NewAuditLogger(logger),
		emails, timing,
		LockoutPolicy{MaxAttempts: 5, LockoutDuration: 15 * time.Minute},
		logger,
	)

	return &authServiceFixture{
		service:    service,
		userRepo:   userRepo,
		revokeRepo: revokeRepo,
		audit:      audit,
		emails:     emails,
		timing:     timing,
		tm:         tm,
	}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := pkgauth.HashPassword(password)
	require.NoError(t, err)
	return hash
}

// ============================================================================
// Register
// ============================================================================

func TestAuthService_Register_Success(t *testing.T) {
	var createdUser *models.User

	f := newAuthServiceFixture(&MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			createdUser = user
			user.ID = "user-1"
			user.CreatedAt = time.Now()
			user.UpdatedAt = time.Now()
			return user, nil
		},
	})

	resp, err := f.service.Register(context.Background(), "alice", "alice@example.com", "SecureP@ss123", "10.0.0.1")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "alice", resp.User.Username)

	require.NotNil(t, createdUser)
	assert.Equal(t, models.RoleUser, createdUser.Role)
	assert.True(t, createdUser.IsActive)
	assert.NotEqual(t, "SecureP@ss123", createdUser.PasswordHash)

	assert.True(t, f.audit.HasAction(models.AuditActionRegister))
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	f := newAuthServiceFixture(&MockUserRepository{})

	weakPasswords := []string{
		"short",
		"nouppercase123!",
		"NOLOWERCASE123!",
		"NoDigits!!",
		"NoSpecial123",
		"password",
	}

	for _, weak := range weakPasswords {
		resp, err := f.service.Register(context.Background(), "bob", "bob@example.com", weak, "")
		assert.ErrorIs(t, err, models.ErrWeakPassword, "password %q should be rejected", weak)
		assert.Nil(t, resp)
	}
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	existing := NewTestUser("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return existing, nil
		},
	})

	resp, err := f.service.Register(context.Background(), "alice", "other@example.com", "SecureP@ss123", "")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, resp)
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	existing := NewTestUser("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByEmailFunc: func(ctx context.Context, email string) (*models.User, error) {
			return existing, nil
		},
	})

	resp, err := f.service.Register(context.Background(), "bob", "alice@example.com", "SecureP@ss123", "")

	assert.ErrorIs(t, err, models.ErrConflict)
	assert.Nil(t, resp)
}

func TestAuthService_Register_NormalizesEmail(t *testing.T) {
	var createdUser *models.User

	f := newAuthServiceFixture(&MockUserRepository{
		CreateFunc: func(ctx context.Context, user *models.User) (*models.User, error) {
			createdUser = user
			user.ID = "user-1"
			return user, nil
		},
	})

	_, err := f.service.Register(context.Background(), "alice", "  Alice@Example.COM ", "SecureP@ss123", "")

	require.NoError(t, err)
	require.NotNil(t, createdUser)
	assert.Equal(t, "alice@example.com", createdUser.Email)
}

// ============================================================================
// Login
// ============================================================================

func TestAuthService_Login_Success(t *testing.T) {
	user := NewTestUserWithPassword("user-1", "alice", "alice@example.com", mustHash(t, "SecureP@ss123"))
	successRecorded := false

	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return user, nil
		},
		RecordLoginSuccessFunc: func(ctx context.Context, id string) error {
			successRecorded = true
			return nil
		},
	})

	resp, err := f.service.Login(context.Background(), "alice", "SecureP@ss123", "10.0.0.1")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEmpty(t, resp.AccessToken)
	assert.True(t, successRecorded)
	assert.True(t, f.audit.HasAction(models.AuditActionLoginSuccess))
	assert.Equal(t, 0, f.timing.Calls)
}

func TestAuthService_Login_UnknownUser(t *testing.T) {
	f := newAuthServiceFixture(&MockUserRepository{})

	resp, err := f.service.Login(context.Background(), "ghost", "SecureP@ss123", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, resp)
	assert.True(t, f.audit.HasAction(models.AuditActionLoginFailed))
	assert.Equal(t, 1, f.timing.Calls, "unknown user should get the timing pad")
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	user := NewTestUserWithPassword("user-1", "alice", "alice@example.com", mustHash(t, "SecureP@ss123"))

	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) (*models.User, error) {
			bumped := *user
			bumped.FailedLoginAttempts = 1
			return &bumped, nil
		},
	})

	resp, err := f.service.Login(context.Background(), "alice", "WrongPassword123!", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, resp)
	assert.True(t, f.audit.HasAction(models.AuditActionLoginFailed))
	assert.False(t, f.audit.HasAction(models.AuditActionAccountLocked))
	assert.Empty(t, f.emails.LockoutAlerts)
	assert.Equal(t, 1, f.timing.Calls)
}

func TestAuthService_Login_FifthFailureLocksAccount(t *testing.T) {
	user := NewTestUserWithPassword("user-1", "alice", "alice@example.com", mustHash(t, "SecureP@ss123"))
	user.FailedLoginAttempts = 4

	var passedMax int
	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return user, nil
		},
		RecordLoginFailureFunc: func(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) (*models.User, error) {
			passedMax = maxAttempts
			locked := *user
			locked.FailedLoginAttempts = 5
			locked.LockedUntil = &lockedUntil
			return &locked, nil
		},
	})

	resp, err := f.service.Login(context.Background(), "alice", "WrongPassword123!", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, resp)
	assert.Equal(t, 5, passedMax)
	assert.True(t, f.audit.HasAction(models.AuditActionAccountLocked))
	assert.Equal(t, []string{"alice@example.com"}, f.emails.LockoutAlerts)
}

func TestAuthService_Login_LockedRejectsCorrectPassword(t *testing.T) {
	user := NewTestUserLocked("user-1", "alice", "alice@example.com")
	user.PasswordHash = mustHash(t, "SecureP@ss123")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return user, nil
		},
	})

	resp, err := f.service.Login(context.Background(), "alice", "SecureP@ss123", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Nil(t, resp)
	assert.True(t, f.audit.HasAction(models.AuditActionLoginFailed))
	assert.Equal(t, 1, f.timing.Calls, "locked account should get the timing pad")
}

func TestAuthService_Login_ExpiredLockIsCleared(t *testing.T) {
	user := NewTestUserWithPassword("user-1", "alice", "alice@example.com", mustHash(t, "SecureP@ss123"))
	expired := time.Now().Add(-1 * time.Minute)
	user.FailedLoginAttempts = 5
	user.LockedUntil = &expired

	lockCleared := false
	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return user, nil
		},
		ClearLockFunc: func(ctx context.Context, id string) error {
			lockCleared = true
			return nil
		},
	})

	resp, err := f.service.Login(context.Background(), "alice", "SecureP@ss123", "10.0.0.1")

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, lockCleared, "expired lock should be cleared before password check")
}

func TestAuthService_Login_InactiveAccount(t *testing.T) {
	user := NewTestUserInactive("user-1", "alice", "alice@example.com")
	user.PasswordHash = mustHash(t, "SecureP@ss123")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByUsernameFunc: func(ctx context.Context, username string) (*models.User, error) {
			return user, nil
		},
	})

	resp, err := f.service.Login(context.Background(), "alice", "SecureP@ss123", "10.0.0.1")

	assert.ErrorIs(t, err, models.ErrAccountInactive)
	assert.Nil(t, resp)
	assert.Equal(t, 1, f.timing.Calls, "inactive account should get the timing pad")
}

func TestAuthService_Login_EmptyUsername(t *testing.T) {
	f := newAuthServiceFixture(&MockUserRepository{})

	resp, err := f.service.Login(context.Background(), "   ", "SecureP@ss123", "")

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, resp)
}

// ============================================================================
// Refresh
// ============================================================================

func TestAuthService_Refresh_RotatesToken(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	resp, err := f.service.Refresh(context.Background(), pair.RefreshToken)

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.NotEqual(t, pair.RefreshToken, resp.RefreshToken)

	// The old refresh token landed on the ledger with the rotation reason
	require.Len(t, f.revokeRepo.RevokedTokens, 1)
	revoked := f.revokeRepo.RevokedTokens[0]
	assert.Equal(t, models.TokenKindRefresh, revoked.TokenKind)
	assert.Equal(t, models.RevocationReasonRotation, revoked.Reason)
	assert.Equal(t, "user-1", revoked.UserID)

	assert.True(t, f.audit.HasAction(models.AuditActionTokenRefreshed))
}

func TestAuthService_Refresh_RevokedToken(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	})
	f.revokeRepo.IsRevokedFunc = func(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
		return true, nil
	}

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	resp, err := f.service.Refresh(context.Background(), pair.RefreshToken)

	assert.ErrorIs(t, err, models.ErrTokenRevoked)
	assert.Nil(t, resp)
}

func TestAuthService_Refresh_LedgerErrorFailsClosed(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{})
	f.revokeRepo.IsRevokedFunc = func(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
		return false, errors.New("connection refused")
	}

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	resp, err := f.service.Refresh(context.Background(), pair.RefreshToken)

	assert.ErrorIs(t, err, models.ErrInternalServer)
	assert.Nil(t, resp)
}

func TestAuthService_Refresh_RejectsAccessToken(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")
	f := newAuthServiceFixture(&MockUserRepository{})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	resp, err := f.service.Refresh(context.Background(), pair.AccessToken)

	assert.ErrorIs(t, err, models.ErrTokenInvalid)
	assert.Nil(t, resp)
}

func TestAuthService_Refresh_DeletedUser(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")
	f := newAuthServiceFixture(&MockUserRepository{})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	resp, err := f.service.Refresh(context.Background(), pair.RefreshToken)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Nil(t, resp)
}

func TestAuthService_Refresh_InactiveUser(t *testing.T) {
	user := NewTestUserInactive("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	resp, err := f.service.Refresh(context.Background(), pair.RefreshToken)

	assert.ErrorIs(t, err, models.ErrAccountInactive)
	assert.Nil(t, resp)
}

func TestAuthService_Refresh_LockedUser(t *testing.T) {
	user := NewTestUserLocked("user-1", "alice", "alice@example.com")

	f := newAuthServiceFixture(&MockUserRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.User, error) {
			return user, nil
		},
	})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	// A lockout blocks token minting through refresh, not just login
	resp, err := f.service.Refresh(context.Background(), pair.RefreshToken)

	assert.ErrorIs(t, err, models.ErrAccountLocked)
	assert.Nil(t, resp)
	assert.Empty(t, f.revokeRepo.RevokedTokens, "no rotation should happen for a locked account")
}

// ============================================================================
// Logout
// ============================================================================

func TestAuthService_Logout_RevokesBothTokens(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")
	f := newAuthServiceFixture(&MockUserRepository{})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	err = f.service.Logout(context.Background(), pair.AccessToken, pair.RefreshToken)

	require.NoError(t, err)
	require.Len(t, f.revokeRepo.RevokedTokens, 2)

	kinds := map[string]bool{}
	for _, revoked := range f.revokeRepo.RevokedTokens {
		kinds[revoked.TokenKind] = true
		assert.Equal(t, models.RevocationReasonLogout, revoked.Reason)
	}
	assert.True(t, kinds[models.TokenKindAccess])
	assert.True(t, kinds[models.TokenKindRefresh])

	assert.True(t, f.audit.HasAction(models.AuditActionLogout))
}

func TestAuthService_Logout_ExpiredTokenStillRevoked(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")
	f := newAuthServiceFixture(&MockUserRepository{})

	expiredTM := auth.NewTokenManager(testJWTSecret, -1*time.Minute, -1*time.Minute)
	pair, err := expiredTM.IssuePair(user)
	require.NoError(t, err)

	err = f.service.Logout(context.Background(), pair.AccessToken, pair.RefreshToken)

	require.NoError(t, err)
	assert.Len(t, f.revokeRepo.RevokedTokens, 2)
}

func TestAuthService_Logout_AccessTokenOnly(t *testing.T) {
	user := NewTestUser("user-1", "alice", "alice@example.com")
	f := newAuthServiceFixture(&MockUserRepository{})

	pair, err := f.tm.IssuePair(user)
	require.NoError(t, err)

	err = f.service.Logout(context.Background(), pair.AccessToken, "")

	require.NoError(t, err)
	assert.Len(t, f.revokeRepo.RevokedTokens, 1)
}

func TestAuthService_Logout_InvalidToken(t *testing.T) {
	f := newAuthServiceFixture(&MockUserRepository{})

	err := f.service.Logout(context.Background(), "not-a-token", "")

	assert.ErrorIs(t, err, models.ErrTokenInvalid)
	assert.Empty(t, f.revokeRepo.RevokedTokens)
}
