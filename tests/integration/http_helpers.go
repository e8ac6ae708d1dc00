package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/finagent/identity/internal/auth"
	"github.com/finagent/identity/internal/config"
	"github.com/finagent/identity/internal/database"
	"github.com/finagent/identity/internal/handlers"
	middlewareCustom "github.com/finagent/identity/internal/middleware"
	"github.com/finagent/identity/internal/routes"
	"github.com/finagent/identity/internal/services"
	pkghttp "github.com/finagent/identity/pkg/http"
	pkglogger "github.com/finagent/identity/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To       string
	Username string
	Kind     string
}

// MockEmailService captures security notifications for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendLockoutAlert records the lockout notification
func (m *MockEmailService) SendLockoutAlert(ctx context.Context, email, username string, lockedUntil time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{To: email, Username: username, Kind: "lockout_alert"})
	return nil
}

// SendPasswordChangedNotice records the password change notification
func (m *MockEmailService) SendPasswordChangedNotice(ctx context.Context, email, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{To: email, Username: username, Kind: "password_changed"})
	return nil
}

// GetLastEmail returns the most recent notification sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// Count returns the number of notifications of the given kind
func (m *MockEmailService) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, email := range m.SentEmails {
		if email.Kind == kind {
			count++
		}
	}
	return count
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService
	Config       *config.Config
	UserService  *services.UserService

	logger *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) *TestServer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret-32-characters-long-for-testing",
			AccessTokenExpiry:  30 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			CleanupInterval:    1 * time.Hour,
		},
		Lockout: config.LockoutConfig{
			MaxAttempts:     5,
			LockoutDuration: 15 * time.Minute,
		},
		Server: config.ServerConfig{
			Port:           "0",
			Env:            "test",
			AllowedOrigins: []string{},
		},
	}

	userRepo, revokeRepo, auditRepo := InitializeRepositories(db)

	mockEmail := &MockEmailService{
		SentEmails: []SentEmail{},
	}

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Keep failed-attempt padding short so lockout tests run quickly
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   1,
		RandomDelayMs: 1,
	})

	auditService := services.NewAuditService(auditRepo, logger)
	authService := services.NewAuthService(
		userRepo, revokeRepo, tokenManager, auditService, auditLogger,
		mockEmail, timingDelay,
		services.LockoutPolicy{
			MaxAttempts:     cfg.Lockout.MaxAttempts,
			LockoutDuration: cfg.Lockout.LockoutDuration,
		},
		logger,
	)
	userService := services.NewUserService(userRepo, revokeRepo, auditService, auditLogger, mockEmail, logger)
	adminService := services.NewAdminService(userRepo, auditRepo, logger)

	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, ipConfig)
	userHandler := handlers.NewUserHandler(userService, ipConfig)
	adminHandler := handlers.NewAdminHandler(userService, adminService, auditService)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// High IP rate limit: every test request comes from the same address
	routes.RegisterRoutes(r, authHandler, userHandler, adminHandler, tokenManager, revokeRepo,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Config:       cfg,
		UserService:  userService,
		logger:       logger,
	}
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// RequestWithAuth makes an authenticated HTTP request with access token
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	headers := map[string]string{
		"Authorization": "Bearer " + accessToken,
	}
	return ts.Request(method, path, body, headers)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// ExtractTokensFromResponse extracts access/refresh tokens from auth response
func ExtractTokensFromResponse(resp *http.Response) (accessToken, refreshToken string, err error) {
	defer resp.Body.Close()

	var authResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return "", "", fmt.Errorf("failed to parse response: %w", err)
	}

	if access, ok := authResp["access_token"].(string); ok {
		accessToken = access
	}
	if refresh, ok := authResp["refresh_token"].(string); ok {
		refreshToken = refresh
	}

	return
}

// GetErrorResponse extracts error code and message from error response
func GetErrorResponse(resp *http.Response) (code, message string, err error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", "", err
	}
	if c, ok := errResp["error"].(string); ok {
		code = c
	}
	if msg, ok := errResp["message"].(string); ok {
		message = msg
	}
	return
}
