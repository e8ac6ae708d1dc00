package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finagent/identity/internal/models"
)

const testSecret = "test-secret-32-characters-long-for-testing"

func testUser() *models.User {
	return &models.User{
		ID:       "user-1",
		Username: "alice",
		Role:     models.RoleUser,
	}
}

func TestIssuePairAndVerify(t *testing.T) {
	tm := NewTokenManager(testSecret, 30*time.Minute, 7*24*time.Hour)

	pair, err := tm.IssuePair(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "bearer", pair.TokenType)

	accessClaims, err := tm.Verify(pair.AccessToken, models.TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", accessClaims.UserID)
	assert.Equal(t, "alice", accessClaims.Username)
	assert.Equal(t, models.RoleUser, accessClaims.Role)
	assert.Equal(t, models.TokenKindAccess, accessClaims.Kind)
	assert.NotEmpty(t, accessClaims.ID)

	refreshClaims, err := tm.Verify(pair.RefreshToken, models.TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, models.TokenKindRefresh, refreshClaims.Kind)

	// Each token carries its own jti
	assert.NotEqual(t, accessClaims.ID, refreshClaims.ID)
}

func TestVerifyRejectsKindMismatch(t *testing.T) {
	tm := NewTokenManager(testSecret, 30*time.Minute, 7*24*time.Hour)

	pair, err := tm.IssuePair(testUser())
	require.NoError(t, err)

	_, err = tm.Verify(pair.RefreshToken, models.TokenKindAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)

	_, err = tm.Verify(pair.AccessToken, models.TokenKindRefresh)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager(testSecret, -1*time.Minute, 7*24*time.Hour)

	pair, err := tm.IssuePair(testUser())
	require.NoError(t, err)

	_, err = tm.Verify(pair.AccessToken, models.TokenKindAccess)
	assert.ErrorIs(t, err, models.ErrTokenExpired)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tm := NewTokenManager(testSecret, 30*time.Minute, 7*24*time.Hour)
	other := NewTokenManager("another-secret-32-characters-long!!", 30*time.Minute, 7*24*time.Hour)

	pair, err := other.IssuePair(testUser())
	require.NoError(t, err)

	_, err = tm.Verify(pair.AccessToken, models.TokenKindAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 30*time.Minute, 7*24*time.Hour)

	pair, err := tm.IssuePair(testUser())
	require.NoError(t, err)

	tampered := pair.AccessToken[:len(pair.AccessToken)-2] + "xx"
	_, err = tm.Verify(tampered, models.TokenKindAccess)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	tm := NewTokenManager(testSecret, 30*time.Minute, 7*24*time.Hour)

	for _, tokenString := range []string{"", "not-a-token", "a.b.c"} {
		_, err := tm.Verify(tokenString, models.TokenKindAccess)
		assert.ErrorIs(t, err, models.ErrTokenInvalid)
	}
}

func TestExtractClaimsAcceptsExpiredToken(t *testing.T) {
	tm := NewTokenManager(testSecret, -1*time.Minute, 7*24*time.Hour)

	pair, err := tm.IssuePair(testUser())
	require.NoError(t, err)

	// Verify refuses the expired token but ExtractClaims still reads it
	_, err = tm.Verify(pair.AccessToken, models.TokenKindAccess)
	require.ErrorIs(t, err, models.ErrTokenExpired)

	claims, err := tm.ExtractClaims(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.NotEmpty(t, claims.ID)
}

func TestExtractClaimsStillChecksSignature(t *testing.T) {
	tm := NewTokenManager(testSecret, 30*time.Minute, 7*24*time.Hour)
	other := NewTokenManager("another-secret-32-characters-long!!", 30*time.Minute, 7*24*time.Hour)

	pair, err := other.IssuePair(testUser())
	require.NoError(t, err)

	_, err = tm.ExtractClaims(pair.AccessToken)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}
