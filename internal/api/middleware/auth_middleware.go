package middleware

import (
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/pkg/utils"
)

type AuthMiddleware struct {
	apiKey    string
	secretKey string
}

func NewAuthMiddleware(apiKey, secretKey string) *AuthMiddleware {
	return &AuthMiddleware{apiKey: apiKey, secretKey: secretKey}
}

// AuthMiddleware accepts either the operator API key in X-API-Key or a
// bearer token signed with the secret key.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := c.Get("X-API-Key")
		tokenString, _ := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")

		if apiKey == "" && tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key or token",
			})
		}

		if apiKey != "" {
			if m.apiKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.apiKey)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid API key",
				})
			}
			c.Locals("operator", "api_key")
			return c.Next()
		}

		claims, err := utils.ValidateOperatorToken(m.secretKey, tokenString)
		if err != nil {
			slog.Warn("operator token rejected", "error", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("operator", claims.Operator)
		return c.Next()
	}
}
