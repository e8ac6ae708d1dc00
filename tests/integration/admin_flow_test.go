package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finagent/identity/internal/models"
)

func loginAs(t *testing.T, ts *TestServer, username, password string) string {
	t.Helper()

	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	accessToken, _, err := ExtractTokensFromResponse(resp)
	require.NoError(t, err)
	require.NotEmpty(t, accessToken)
	return accessToken
}

func TestRoleOrdering(t *testing.T) {
	ctx := context.Background()
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	userName, userEmail, password := TestUser("plain")
	_, err := SeedUser(ctx, testDB.Pool, userName, userEmail, password, models.RoleUser)
	require.NoError(t, err)

	adminName, adminEmail, _ := TestUser("admin")
	_, err = SeedUser(ctx, testDB.Pool, adminName, adminEmail, password, models.RoleAdmin)
	require.NoError(t, err)

	sysName, sysEmail, _ := TestUser("sys")
	_, err = SeedUser(ctx, testDB.Pool, sysName, sysEmail, password, models.RoleSysadmin)
	require.NoError(t, err)

	userToken := loginAs(t, ts, userName, password)
	adminToken := loginAs(t, ts, adminName, password)
	sysToken := loginAs(t, ts, sysName, password)

	cases := []struct {
		name   string
		token  string
		path   string
		status int
	}{
		{"user denied user management", userToken, "/admin/users", http.StatusForbidden},
		{"admin allowed user management", adminToken, "/admin/users", http.StatusOK},
		{"sysadmin allowed user management", sysToken, "/admin/users", http.StatusOK},
		{"user denied dashboard", userToken, "/admin/stats", http.StatusForbidden},
		{"admin denied dashboard", adminToken, "/admin/stats", http.StatusForbidden},
		{"sysadmin allowed dashboard", sysToken, "/admin/stats", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := ts.RequestWithAuth(http.MethodGet, tc.path, tc.token, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
			resp.Body.Close()
		})
	}
}

func TestAdminUserLifecycle(t *testing.T) {
	ctx := context.Background()
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	adminName, adminEmail, password := TestUser("lifecycle-admin")
	_, err := SeedUser(ctx, testDB.Pool, adminName, adminEmail, password, models.RoleAdmin)
	require.NoError(t, err)
	adminToken := loginAs(t, ts, adminName, password)

	// Create a user with an explicit role
	newName, newEmail, newPassword := TestUser("created")
	resp, err := ts.RequestWithAuth(http.MethodPost, "/admin/users", adminToken, map[string]string{
		"username": newName,
		"email":    newEmail,
		"password": newPassword,
		"role":     "user",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &created))
	createdID, ok := created["id"].(string)
	require.True(t, ok)

	// Deactivate the account
	inactive := false
	resp, err = ts.RequestWithAuth(http.MethodPatch, "/admin/users/"+createdID, adminToken, map[string]interface{}{
		"is_active": &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated map[string]interface{}
	require.NoError(t, ParseJSONResponse(resp, &updated))
	assert.Equal(t, false, updated["is_active"])

	// Deactivated accounts cannot sign in
	resp, err = ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": newName,
		"password": newPassword,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Delete the account
	resp, err = ts.RequestWithAuth(http.MethodDelete, "/admin/users/"+createdID, adminToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.RequestWithAuth(http.MethodGet, "/admin/users/"+createdID, adminToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAdminUnlockClearsLockout(t *testing.T) {
	ctx := context.Background()
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	adminName, adminEmail, password := TestUser("unlock-admin")
	_, err := SeedUser(ctx, testDB.Pool, adminName, adminEmail, password, models.RoleAdmin)
	require.NoError(t, err)
	adminToken := loginAs(t, ts, adminName, password)

	lockedName, lockedEmail, lockedPassword := TestUser("locked")
	locked, err := SeedUser(ctx, testDB.Pool, lockedName, lockedEmail, lockedPassword, models.RoleUser)
	require.NoError(t, err)
	require.NoError(t, SetLock(ctx, testDB.Pool, locked.ID, 5, time.Now().Add(15*time.Minute)))

	// Locked out even with the correct password
	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": lockedName,
		"password": lockedPassword,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, message, err := GetErrorResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "Authentication failed", message)

	// Admin unlock lifts it immediately
	resp, err = ts.RequestWithAuth(http.MethodPost, "/admin/users/"+locked.ID+"/unlock", adminToken, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": lockedName,
		"password": lockedPassword,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAuditTrailRecordsLoginOutcomes(t *testing.T) {
	ctx := context.Background()
	ts := NewTestServer(testDB.DB)
	defer ts.Close()

	adminName, adminEmail, password := TestUser("audit-admin")
	admin, err := SeedUser(ctx, testDB.Pool, adminName, adminEmail, password, models.RoleAdmin)
	require.NoError(t, err)

	// One failure, then one success
	resp, err := ts.Request(http.MethodPost, "/auth/login", map[string]string{
		"username": adminName,
		"password": "WrongPassword123!",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	adminToken := loginAs(t, ts, adminName, password)

	resp, err = ts.RequestWithAuth(http.MethodGet, "/admin/audit?user_id="+admin.ID, adminToken, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var auditResp struct {
		Logs []struct {
			Action  string `json:"action"`
			Success bool   `json:"success"`
		} `json:"logs"`
	}
	require.NoError(t, ParseJSONResponse(resp, &auditResp))

	actions := make(map[string]bool)
	for _, entry := range auditResp.Logs {
		actions[entry.Action] = true
	}
	assert.True(t, actions["login_failed"])
	assert.True(t, actions["login_success"])
}
