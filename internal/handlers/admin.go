package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/finagent/identity/internal/models"
	"github.com/finagent/identity/internal/services"
	pkghttp "github.com/finagent/identity/pkg/http"
)

// AdminUserServiceInterface defines the user management operations exposed to admins
type AdminUserServiceInterface interface {
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	CreateUser(ctx context.Context, username, email, password string, role models.Role) (*models.User, error)
	UpdateUser(ctx context.Context, id string, role models.Role, isActive *bool) (*models.User, error)
	DeleteAccount(ctx context.Context, id string) error
	UnlockUser(ctx context.Context, id string) error
}

// AdminDashboardInterface defines the dashboard aggregation operations
type AdminDashboardInterface interface {
	GetDashboardStats(ctx context.Context) (*services.DashboardStatsResponse, error)
	GetRecentActivity(ctx context.Context, limit int) (*services.DashboardActivityResponse, error)
}

// AuditQueryInterface defines audit trail queries for admins
type AuditQueryInterface interface {
	List(ctx context.Context, action, userID string, limit, offset int) ([]*models.AuditLog, error)
}

// AdminHandler handles administrative HTTP requests
type AdminHandler struct {
	users     AdminUserServiceInterface
	dashboard AdminDashboardInterface
	audit     AuditQueryInterface
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(users AdminUserServiceInterface, dashboard AdminDashboardInterface, audit AuditQueryInterface) *AdminHandler {
	return &AdminHandler{
		users:     users,
		dashboard: dashboard,
		audit:     audit,
	}
}

// CreateUserRequest represents the admin request body for creating a user
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=user admin sysadmin"`
}

// UpdateUserRequest represents the admin request body for updating a user
type UpdateUserRequest struct {
	Role     string `json:"role" validate:"omitempty,oneof=user admin sysadmin"`
	IsActive *bool  `json:"is_active"`
}

// ListUsers returns a page of user accounts
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	users, err := h.users.ListUsers(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	resp := make([]map[string]interface{}, 0, len(users))
	for _, user := range users {
		resp = append(resp, userToResponse(user))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":  resp,
		"limit":  limit,
		"offset": offset,
	})
}

// GetUser returns a single user by ID
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// CreateUser creates a user with an explicit role
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, req.Password, models.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrWeakPassword):
			pkghttp.WriteBadRequest(w, "Password does not meet the complexity requirements")
		case errors.Is(err, models.ErrConflict):
			pkghttp.WriteConflict(w, "Username or email is already registered")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid user request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusCreated, userToResponse(user))
}

// UpdateUser updates a user's role or active flag
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id, models.Role(req.Role), req.IsActive)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			pkghttp.WriteNotFound(w, "User not found")
		case errors.Is(err, models.ErrBadRequest):
			pkghttp.WriteBadRequest(w, "Invalid user request")
		default:
			pkghttp.WriteInternalError(w, "Internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, userToResponse(user))
}

// DeleteUser removes a user account and revokes its tokens
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.users.DeleteAccount(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnlockUser clears an active lockout ahead of its expiry
func (h *AdminHandler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.users.UnlockUser(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account unlocked"})
}

// GetStats returns aggregate dashboard metrics
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.GetDashboardStats(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetActivity returns recent auth event feeds
func (h *AdminHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)

	activity, err := h.dashboard.GetRecentActivity(r.Context(), limit)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, activity)
}

// GetAuditLogs returns audit trail entries with optional filters
func (h *AdminHandler) GetAuditLogs(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	userID := r.URL.Query().Get("user_id")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	logs, err := h.audit.List(r.Context(), action, userID, limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   logs,
		"limit":  limit,
		"offset": offset,
	})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	if value := r.URL.Query().Get(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}
