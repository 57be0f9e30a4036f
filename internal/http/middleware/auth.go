package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"docvault/internal/model"
)

// CallerLocalKey is the Fiber locals key holding the authenticated model.Caller.
const CallerLocalKey = "caller"

// Claims is the token payload accepted by Auth. The subject is the caller ID.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Auth verifies an HS256 bearer token and stores the resulting caller in locals.
// Tokens without a subject are rejected; a missing role means a regular user.
func Auth(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
		}

		claims := &Claims{}
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || claims.Subject == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		role := model.RoleUser
		if model.Role(claims.Role) == model.RoleAdmin {
			role = model.RoleAdmin
		}

		c.Locals(CallerLocalKey, model.Caller{ID: claims.Subject, Role: role})
		return c.Next()
	}
}

// CallerFromCtx returns the caller stored by Auth.
func CallerFromCtx(c *fiber.Ctx) (model.Caller, bool) {
	caller, ok := c.Locals(CallerLocalKey).(model.Caller)
	return caller, ok
}
