package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Password policy violation
	ErrWeakPassword = errors.New("password does not meet complexity requirements")

	// Account state errors
	ErrAccountLocked   = errors.New("account is temporarily locked")
	ErrAccountInactive = errors.New("account is disabled or deleted")

	// Token verification errors
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("token is malformed or has an invalid signature")
	ErrTokenRevoked = errors.New("token has been revoked")
)
