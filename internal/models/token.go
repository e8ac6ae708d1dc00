package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the "type" claim
const (
	TokenKindAccess  = "access"
	TokenKindRefresh = "refresh"
)

// TokenClaims is the claim set signed into every session token. Role is a
// snapshot taken at issuance; a role change only takes effect once the
// token expires or is revoked.
type TokenClaims struct {
	Kind     string `json:"type"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back to the HTTP layer.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
