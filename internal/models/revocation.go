package models

import "time"

// Revocation reasons
const (
	RevocationReasonLogout         = "logout"
	RevocationReasonRotation       = "refresh_rotation"
	RevocationReasonPasswordChange = "password_change"
	RevocationReasonAccountDeleted = "account_deleted"
	RevocationReasonAdminAction    = "admin_action"
)

// RevokedToken is one entry in the revocation ledger, keyed by jti. Entries
// are prunable once ExpiresAt has passed: an expired token is already
// rejected on expiry grounds before the ledger is consulted.
type RevokedToken struct {
	JTI       string
	UserID    string
	TokenKind string
	ExpiresAt time.Time
	RevokedAt time.Time
	Reason    string
}
