package services

import (
	"context"
	"time"

	"github.com/finagent/identity/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc              func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc        func(ctx context.Context, username string) (*models.User, error)
	GetByEmailFunc           func(ctx context.Context, email string) (*models.User, error)
	ListFunc                 func(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateFunc               func(ctx context.Context, user *models.User) (*models.User, error)
	UpdateFunc               func(ctx context.Context, id string, user *models.User) (*models.User, error)
	UpdatePasswordFunc       func(ctx context.Context, id, passwordHash string) error
	DeleteWithRevocationFunc func(ctx context.Context, id, reason string) error
	RecordLoginFailureFunc   func(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) (*models.User, error)
	RecordLoginSuccessFunc   func(ctx context.Context, id string) error
	ClearLockFunc            func(ctx context.Context, id string) error
	CountByRoleFunc          func(ctx context.Context, role models.Role) (int64, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, limit, offset)
	}
	return []*models.User{}, nil
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) Update(ctx context.Context, id string, user *models.User) (*models.User, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordFunc != nil {
		return m.UpdatePasswordFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) DeleteWithRevocation(ctx context.Context, id, reason string) error {
	if m.DeleteWithRevocationFunc != nil {
		return m.DeleteWithRevocationFunc(ctx, id, reason)
	}
	return nil
}

func (m *MockUserRepository) RecordLoginFailure(ctx context.Context, id string, maxAttempts int, lockedUntil time.Time) (*models.User, error) {
	if m.RecordLoginFailureFunc != nil {
		return m.RecordLoginFailureFunc(ctx, id, maxAttempts, lockedUntil)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) RecordLoginSuccess(ctx context.Context, id string) error {
	if m.RecordLoginSuccessFunc != nil {
		return m.RecordLoginSuccessFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) ClearLock(ctx context.Context, id string) error {
	if m.ClearLockFunc != nil {
		return m.ClearLockFunc(ctx, id)
	}
	return nil
}

func (m *MockUserRepository) CountByRole(ctx context.Context, role models.Role) (int64, error) {
	if m.CountByRoleFunc != nil {
		return m.CountByRoleFunc(ctx, role)
	}
	return 0, nil
}

// MockTokenRevocationRepository implements TokenRevocationRepository for testing
type MockTokenRevocationRepository struct {
	RevokeTokenFunc         func(ctx context.Context, token *models.RevokedToken) error
	RevokeAllUserTokensFunc func(ctx context.Context, userID, reason string) error
	IsRevokedFunc           func(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error)

	RevokedTokens []*models.RevokedToken
	Watermarks    map[string]string
}

func (m *MockTokenRevocationRepository) RevokeToken(ctx context.Context, token *models.RevokedToken) error {
	if m.RevokeTokenFunc != nil {
		return m.RevokeTokenFunc(ctx, token)
	}
	m.RevokedTokens = append(m.RevokedTokens, token)
	return nil
}

func (m *MockTokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	if m.RevokeAllUserTokensFunc != nil {
		return m.RevokeAllUserTokensFunc(ctx, userID, reason)
	}
	if m.Watermarks == nil {
		m.Watermarks = make(map[string]string)
	}
	m.Watermarks[userID] = reason
	return nil
}

func (m *MockTokenRevocationRepository) IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	if m.IsRevokedFunc != nil {
		return m.IsRevokedFunc(ctx, jti, userID, issuedAt)
	}
	for _, token := range m.RevokedTokens {
		if token.JTI == jti {
			return true, nil
		}
	}
	if _, ok := m.Watermarks[userID]; ok {
		return true, nil
	}
	return false, nil
}

// MockAuditRecorder collects audit entries in memory
type MockAuditRecorder struct {
	Recorded []*models.AuditLog
}

func (m *MockAuditRecorder) Record(ctx context.Context, log *models.AuditLog) {
	m.Recorded = append(m.Recorded, log)
}

// HasAction reports whether an entry with the given action was recorded
func (m *MockAuditRecorder) HasAction(action string) bool {
	for _, log := range m.Recorded {
		if log.Action == action {
			return true
		}
	}
	return false
}

// MockEmailService implements EmailService for testing
type MockEmailService struct {
	SendLockoutAlertFunc          func(ctx context.Context, email, username string, lockedUntil time.Time) error
	SendPasswordChangedNoticeFunc func(ctx context.Context, email, username string) error

	LockoutAlerts   []string
	PasswordNotices []string
}

func (m *MockEmailService) SendLockoutAlert(ctx context.Context, email, username string, lockedUntil time.Time) error {
	if m.SendLockoutAlertFunc != nil {
		return m.SendLockoutAlertFunc(ctx, email, username, lockedUntil)
	}
	m.LockoutAlerts = append(m.LockoutAlerts, email)
	return nil
}

func (m *MockEmailService) SendPasswordChangedNotice(ctx context.Context, email, username string) error {
	if m.SendPasswordChangedNoticeFunc != nil {
		return m.SendPasswordChangedNoticeFunc(ctx, email, username)
	}
	m.PasswordNotices = append(m.PasswordNotices, email)
	return nil
}

// MockTimingDelay implements TimingWaiter without sleeping
type MockTimingDelay struct {
	Calls int
}

func (m *MockTimingDelay) WaitFrom(startTime time.Time, success bool) {
	m.Calls++
}

// NewTestUser builds an active user for tests
func NewTestUser(id, username, email string) *models.User {
	now := time.Now()
	return &models.User{
		ID:        id,
		Username:  username,
		Email:     email,
		Role:      models.RoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewTestUserWithPassword builds a user with a stored password hash
func NewTestUserWithPassword(id, username, email, passwordHash string) *models.User {
	user := NewTestUser(id, username, email)
	user.PasswordHash = passwordHash
	return user
}

// NewTestUserLocked builds a user with an active lockout
func NewTestUserLocked(id, username, email string) *models.User {
	user := NewTestUser(id, username, email)
	lockedUntil := time.Now().Add(15 * time.Minute)
	user.FailedLoginAttempts = 5
	user.LockedUntil = &lockedUntil
	return user
}

// NewTestUserInactive builds a deactivated user
func NewTestUserInactive(id, username, email string) *models.User {
	user := NewTestUser(id, username, email)
	user.IsActive = false
	return user
}
