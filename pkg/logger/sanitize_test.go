package logger

import "testing"

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		email string
		want  string
	}{
		{"alice@example.com", "a****@*******.com"},
		{"a@b.io", "a@*.io"},
		{"not-an-email", "[invalid-email]"},
		{"@example.com", "[invalid-email]"},
		{"alice@", "[invalid-email]"},
	}

	for _, tt := range tests {
		if got := SanitizedEmail(tt.email); got != tt.want {
			t.Errorf("SanitizedEmail(%q) = %q, want %q", tt.email, got, tt.want)
		}
	}
}

func TestSanitizeQueryString(t *testing.T) {
	if !SanitizeQueryString("token=abc123") {
		t.Error("query with token should be redacted")
	}
	if !SanitizeQueryString("user=bob&PASSWORD=x") {
		t.Error("match should be case insensitive")
	}
	if SanitizeQueryString("page=2&limit=10") {
		t.Error("plain pagination query should pass through")
	}
	if SanitizeQueryString("") {
		t.Error("empty query should pass through")
	}
}
