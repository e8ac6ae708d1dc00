package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/finagent/identity/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             string
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             secret,
		accessTokenExpiry:  accessExpiry,
		refreshTokenExpiry: refreshExpiry,
	}
}

// IssuePair generates a fresh access/refresh token pair for the user.
// Each token carries its own jti so they can be revoked independently.
func (tm *TokenManager) IssuePair(user *models.User) (*models.TokenPair, error) {
	accessToken, err := tm.generate(user, models.TokenKindAccess, tm.accessTokenExpiry)
	if err != nil {
		return nil, err
	}

	refreshToken, err := tm.generate(user, models.TokenKindRefresh, tm.refreshTokenExpiry)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "bearer",
	}, nil
}

func (tm *TokenManager) generate(user *models.User, kind string, expiry time.Duration) (string, error) {
	now := time.Now()

	claims := &models.TokenClaims{
		Kind:     kind,
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}

	return tokenString, nil
}

// Verify parses and validates a token, requiring the given kind. Expired
// tokens return models.ErrTokenExpired; everything else that fails
// signature, structure or kind checks returns models.ErrTokenInvalid.
func (tm *TokenManager) Verify(tokenString, kind string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, models.ErrTokenInvalid
	}

	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Kind != kind {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

// ExtractClaims verifies the signature but skips expiry validation. Used on
// logout so an already-expired token can still be added to the revocation
// ledger.
func (tm *TokenManager) ExtractClaims(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, tm.keyFunc, jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Kind == "" || claims.ID == "" {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}

func (tm *TokenManager) keyFunc(token *jwt.Token) (interface{}, error) {
	// Verify signing method
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(tm.secret), nil
}
