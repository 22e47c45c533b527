package middleware

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"challenge-quest/services"
	"challenge-quest/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuth map[string]utils.Identity

func (s stubAuth) Authenticate(_ context.Context, token string) (utils.Identity, error) {
	if token == "disabled" {
		return utils.Identity{}, services.ErrAccountDisabled
	}
	id, ok := s[token]
	if !ok {
		return utils.Identity{}, services.ErrUnauthorized
	}
	return id, nil
}

func newApp(t *testing.T) (*fiber.App, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	auth := stubAuth{
		"user-token":  {UserID: "u1"},
		"admin-token": {UserID: "a1", IsAdmin: true},
	}

	app := fiber.New()
	app.Use(RequestLog(log), Metrics(), Identity(auth, "gateway-secret", log))
	whoami := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": UserID(c), "is_admin": IsAdmin(c)})
	}
	app.Get("/open", whoami)
	app.Get("/me", RequireAuth(), whoami)
	app.Get("/admin", RequireAdmin(), whoami)
	return app, hook
}

func do(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestIdentityAndGuards(t *testing.T) {
	app, _ := newApp(t)

	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		code    string
		userID  string
	}{
		{name: "anonymous on open route", path: "/open", status: 200},
		{name: "anonymous on protected route", path: "/me", status: 401, code: "UNAUTHORIZED"},
		{name: "valid bearer", path: "/me", headers: map[string]string{"Authorization": "Bearer user-token"}, status: 200, userID: "u1"},
		{name: "invalid bearer", path: "/open", headers: map[string]string{"Authorization": "Bearer nope"}, status: 401, code: "UNAUTHORIZED"},
		{name: "disabled account", path: "/me", headers: map[string]string{"Authorization": "Bearer disabled"}, status: 401, code: "ACCOUNT_DISABLED"},
		{name: "non-admin on admin route", path: "/admin", headers: map[string]string{"Authorization": "Bearer user-token"}, status: 403, code: "FORBIDDEN"},
		{name: "admin", path: "/admin", headers: map[string]string{"Authorization": "Bearer admin-token"}, status: 200, userID: "a1"},
		{name: "gateway forwarded user", path: "/admin", headers: map[string]string{
			"Authorization": "Bearer gateway-secret", "X-User-ID": "g1", "X-User-Admin": "true",
		}, status: 200, userID: "g1"},
		{name: "gateway without user", path: "/me", headers: map[string]string{"Authorization": "Bearer gateway-secret"}, status: 401, code: "UNAUTHORIZED"},
		{name: "gateway token prefix", path: "/me", headers: map[string]string{
			"Authorization": "Bearer gateway-secre", "X-User-ID": "g1",
		}, status: 401, code: "UNAUTHORIZED"},
		{name: "gateway token with suffix", path: "/me", headers: map[string]string{
			"Authorization": "Bearer gateway-secret2", "X-User-ID": "g1",
		}, status: 401, code: "UNAUTHORIZED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, tt.path, tt.headers)
			assert.Equal(t, tt.status, status)
			if tt.code != "" {
				assert.Equal(t, tt.code, body["code"])
				assert.NotEmpty(t, body["error"])
				assert.NotEmpty(t, body["kind"])
			}
			if tt.userID != "" {
				assert.Equal(t, tt.userID, body["user_id"])
			}
		})
	}
}

func TestRequestLogFields(t *testing.T) {
	app, hook := newApp(t)
	status, _ := do(t, app, "/me", map[string]string{"Authorization": "Bearer user-token"})
	require.Equal(t, 200, status)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, "request", entry.Message)
	assert.Equal(t, "GET", entry.Data["method"])
	assert.Equal(t, "/me", entry.Data["path"])
	assert.Equal(t, 200, entry.Data["status"])
	assert.Equal(t, "u1", entry.Data["user_id"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 400, StatusFor(services.KindState))
	assert.Equal(t, 409, StatusFor(services.KindConflict))
	assert.Equal(t, 503, StatusFor(services.KindInfrastructure))
	assert.Equal(t, 500, StatusFor("UNKNOWN"))
}
