package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/model"
)

func body(t *testing.T, r io.Reader) string {
	t.Helper()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())

	app.Get("/test", func(c *fiber.Ctx) error {
		rid := c.Locals(RequestIDLocalKey).(string)
		assert.Equal(t, rid, RequestIDFromContext(c.UserContext()))
		return c.SendString(rid)
	})

	t.Run("should generate new request id if not present", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		rid := resp.Header.Get(RequestIDHeader)
		assert.NotEmpty(t, rid)
		assert.Equal(t, rid, body(t, resp.Body))
	})

	t.Run("should preserve existing request id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "test-id-123")

		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, "test-id-123", resp.Header.Get(RequestIDHeader))
		assert.Equal(t, "test-id-123", body(t, resp.Body))
	})

	t.Run("should replace oversized request id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("a", 200))

		resp, err := app.Test(req)
		require.NoError(t, err)

		rid := resp.Header.Get(RequestIDHeader)
		assert.Len(t, rid, 36)
	})
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()

	app.Use(RequestID())
	app.Use(LoggerWithWriter(&buf, time.UTC))

	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	var logData map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))

	assert.Equal(t, resp.Header.Get(RequestIDHeader), logData["request_id"])
	assert.Equal(t, "GET", logData["method"])
	assert.Equal(t, "/test", logData["path"])
	assert.Equal(t, float64(fiber.StatusAccepted), logData["status"])
	assert.Equal(t, "http", logData["component"])
	assert.Equal(t, "info", logData["level"])
	assert.NotNil(t, logData["latency"])
	assert.NotEmpty(t, logData["ts"])
}

func TestLogger_ErrorLevels(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(fiber.StatusInternalServerError)
		},
	})
	app.Use(LoggerWithWriter(&buf, time.UTC))

	app.Get("/missing", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "nope")
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return assert.AnError
	})

	for path, level := range map[string]string{"/missing": "warn", "/boom": "error"} {
		buf.Reset()
		_, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)

		var logData map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logData))
		assert.Equal(t, level, logData["level"], path)
	}
}

func signed(t *testing.T, secret []byte, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func TestAuth(t *testing.T) {
	secret := []byte("test-secret")
	app := fiber.New()
	app.Use(Auth(secret))
	app.Get("/me", func(c *fiber.Ctx) error {
		caller, ok := CallerFromCtx(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(caller)
	})

	valid := func(sub, role string) Claims {
		return Claims{
			Role: role,
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   sub,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	call := func(token string) (int, model.Caller) {
		req := httptest.NewRequest("GET", "/me", nil)
		if token != "" {
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		var caller model.Caller
		if resp.StatusCode == fiber.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&caller))
		}
		return resp.StatusCode, caller
	}

	t.Run("user token", func(t *testing.T) {
		status, caller := call(signed(t, secret, jwt.SigningMethodHS256, valid("user-a", "")))
		assert.Equal(t, fiber.StatusOK, status)
		assert.Equal(t, model.Caller{ID: "user-a", Role: model.RoleUser}, caller)
	})

	t.Run("admin token", func(t *testing.T) {
		status, caller := call(signed(t, secret, jwt.SigningMethodHS256, valid("root", "admin")))
		assert.Equal(t, fiber.StatusOK, status)
		assert.True(t, caller.IsAdmin())
	})

	t.Run("unknown role is a user", func(t *testing.T) {
		_, caller := call(signed(t, secret, jwt.SigningMethodHS256, valid("user-a", "superuser")))
		assert.Equal(t, model.RoleUser, caller.Role)
	})

	t.Run("missing token", func(t *testing.T) {
		status, _ := call("")
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("wrong secret", func(t *testing.T) {
		status, _ := call(signed(t, []byte("other"), jwt.SigningMethodHS256, valid("user-a", "")))
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("expired", func(t *testing.T) {
		claims := valid("user-a", "")
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		status, _ := call(signed(t, secret, jwt.SigningMethodHS256, claims))
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("other algorithm", func(t *testing.T) {
		status, _ := call(signed(t, secret, jwt.SigningMethodHS512, valid("user-a", "")))
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})

	t.Run("no subject", func(t *testing.T) {
		status, _ := call(signed(t, secret, jwt.SigningMethodHS256, valid("", "")))
		assert.Equal(t, fiber.StatusUnauthorized, status)
	})
}
