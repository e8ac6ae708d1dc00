package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Audit actions
const (
	AuditActionLoginSuccess    = "login_success"
	AuditActionLoginFailed     = "login_failed"
	AuditActionAccountLocked   = "account_locked"
	AuditActionLogout          = "logout"
	AuditActionTokenRefreshed  = "token_refreshed"
	AuditActionRegister        = "register"
	AuditActionProfileUpdated  = "profile_updated"
	AuditActionPasswordChanged = "password_changed"
	AuditActionAccountDeleted  = "account_deleted"
	AuditActionUserCreated     = "user_created"
	AuditActionUserUpdated     = "user_updated"
	AuditActionUserUnlocked    = "user_unlocked"
)

type AuditLog struct {
	ID        string       `json:"id"`
	UserID    *string      `json:"user_id,omitempty"`
	Username  *string      `json:"username,omitempty"`
	Action    string       `json:"action"`
	Success   bool         `json:"success"`
	Reason    *string      `json:"reason,omitempty"`
	IPAddress *string      `json:"ip_address,omitempty"`
	Details   AuditDetails `json:"details,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// AuditDetails holds additional context for audit entries, stored as JSONB
type AuditDetails map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *AuditDetails) Scan(value interface{}) error {
	if value == nil {
		*d = make(AuditDetails)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrBadRequest
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = AuditDetails(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d AuditDetails) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
