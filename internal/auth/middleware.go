package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware validates the bearer token and stores claims on the context.
func AuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			authHeader = c.Cookies("access_token")
			if authHeader == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "missing authorization token",
				})
			}
		} else {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid authorization header format",
				})
			}
			authHeader = parts[1]
		}

		claims, err := jwtManager.ValidateAccessToken(authHeader)
		if err != nil {
			if err == ErrExpiredToken {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "token expired",
					"code":  "TOKEN_EXPIRED",
				})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals("userID", claims.UserID)
		c.Locals("email", claims.Email)
		c.Locals("fullName", claims.FullName)
		c.Locals("claims", claims)

		return c.Next()
	}
}

// OptionalAuthMiddleware stores claims when a valid token is present but never
// rejects the request. Role resolution treats the missing account as an
// anonymous caller, which public boards still serve.
func OptionalAuthMiddleware(jwtManager *JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			authHeader = c.Cookies("access_token")
		} else if strings.HasPrefix(authHeader, "Bearer ") {
			authHeader = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if authHeader == "" {
			return c.Next()
		}

		claims, err := jwtManager.ValidateAccessToken(authHeader)
		if err == nil {
			c.Locals("userID", claims.UserID)
			c.Locals("email", claims.Email)
			c.Locals("fullName", claims.FullName)
			c.Locals("claims", claims)
		}

		return c.Next()
	}
}
