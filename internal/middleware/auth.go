// Package middleware provides the HTTP middleware chain for the proxy.
package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
)

const subjectLocalKey = "auth_subject"

// AuthMiddleware verifies bearer tokens signed with the shared HMAC secret.
type AuthMiddleware struct {
	secret    []byte
	skipPaths []string
}

// NewAuthMiddleware creates the middleware. An empty secret disables
// authentication entirely; every request passes through.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret:    []byte(secret),
		skipPaths: []string{"/health"},
	}
}

// RequireAuth returns the handler enforcing a valid bearer token.
func (m *AuthMiddleware) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(m.secret) == 0 {
			return c.Next()
		}
		for _, path := range m.skipPaths {
			if c.Path() == path {
				return c.Next()
			}
		}

		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Bearer token required",
			})
		}

		claims := jwt.MapClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return m.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			fiberlog.Debugf("Rejected token: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			c.Locals(subjectLocalKey, sub)
		}
		return c.Next()
	}
}

// Subject returns the authenticated subject stored by RequireAuth, empty when
// the request was anonymous.
func Subject(c *fiber.Ctx) string {
	if sub, ok := c.Locals(subjectLocalKey).(string); ok {
		return sub
	}
	return ""
}
