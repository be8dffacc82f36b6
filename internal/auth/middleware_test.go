package auth

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/taskboard/task-service/pkg/util"
)

func newMiddlewareApp(tm *TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var de *apperrors.DomainError
			if errors.As(err, &de) {
				return c.Status(de.HTTPStatus).SendString(de.Message)
			}
			return fiber.DefaultErrorHandler(c, err)
		},
	})
	app.Use(NewAuthMiddleware(tm).Handle)
	app.Get("/whoami", func(c *fiber.Ctx) error {
		userID, ok := UserIDFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(userID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	valid, _, err := tm.Issue("user-123")
	require.NoError(t, err)

	expired := NewTokenManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	stale, _, err := expired.Issue("user-123")
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedBody   string
	}{
		{"missing authorization header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header"},
		{"no token", "Bearer", http.StatusUnauthorized, "invalid authorization header"},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized, "invalid token"},
		{"expired token", "Bearer " + stale, http.StatusUnauthorized, "token expired"},
		{"valid token", "Bearer " + valid, http.StatusOK, "user-123"},
		{"lowercase scheme", "bearer " + valid, http.StatusOK, "user-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMiddlewareApp(tm)

			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Equal(t, tt.expectedBody, string(body))
		})
	}
}
