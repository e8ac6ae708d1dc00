package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{
			name:       "valid strong password",
			password:   "SecureP@ss123",
			shouldFail: false,
		},
		{
			name:       "valid with digit and special",
			password:   "Passw0rd!",
			shouldFail: false,
		},
		{
			name:       "too short",
			password:   "Pass@1",
			shouldFail: true,
		},
		{
			name:       "missing uppercase",
			password:   "securepass@123",
			shouldFail: true,
		},
		{
			name:       "missing lowercase",
			password:   "SECUREPASS@123",
			shouldFail: true,
		},
		{
			name:       "missing digit",
			password:   "SecurePass@xyz",
			shouldFail: true,
		},
		{
			name:       "missing special character",
			password:   "SecurePass123",
			shouldFail: true,
		},
		{
			name:       "common password rejected",
			password:   "password",
			shouldFail: true,
		},
		{
			name:       "common password with different case rejected",
			password:   "Password123",
			shouldFail: true,
		},
		{
			name:       "too long",
			password:   "Aa1!" + strings.Repeat("x", 130),
			shouldFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail {
				if err == nil {
					t.Errorf("expected error for %q, got nil", tt.password)
				} else if !strings.Contains(err.Error(), "invalid password") {
					t.Errorf("error message should stay generic, got: %v", err)
				}
			} else if err != nil {
				t.Errorf("expected no error for %q, got: %v", tt.password, err)
			}
		})
	}
}

func TestValidatePasswordCollectsAllFailures(t *testing.T) {
	err := ValidatePassword("abc")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	validationErr, ok := err.(*PasswordValidationError)
	if !ok {
		t.Fatalf("expected *PasswordValidationError, got %T", err)
	}

	// Short, no uppercase, no digit, no special character
	if len(validationErr.Errors) != 4 {
		t.Errorf("expected 4 rule failures, got %d: %v", len(validationErr.Errors), validationErr.Errors)
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == "" {
		t.Error("hash should not be empty")
	}

	if hash == password {
		t.Error("hash should not equal plaintext password")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword with correct password failed: %v", err)
	}

	if err := ComparePassword(hash, "WrongPassword123!"); err == nil {
		t.Error("ComparePassword with wrong password should fail")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestHashPasswordProducesUniqueSalts(t *testing.T) {
	password := "SecureP@ss123"

	first, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	second, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if first == second {
		t.Error("two hashes of the same password should differ")
	}
}
