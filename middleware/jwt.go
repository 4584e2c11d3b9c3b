package middleware

import (
	"errors"

	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const userKey = "user"

// JWT verifies HS512 access tokens from the Authorization header or, for
// streaming clients that cannot set headers, the token query parameter.
func JWT(secret []byte) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{
			JWTAlg: jwtware.HS512,
			Key:    secret,
		},
		ContextKey:  userKey,
		TokenLookup: "header:Authorization,query:token",
		AuthScheme:  "Bearer",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) {
				return Fail(c, fiber.StatusBadRequest, "Missing or malformed JWT")
			}
			return Fail(c, fiber.StatusUnauthorized, "Invalid or expired JWT")
		},
	})
}

// UserID is the verified caller id. Empty when the token carries no id or
// is still waiting for a second factor.
func UserID(c *fiber.Ctx) string {
	token, ok := c.Locals(userKey).(*jwt.Token)
	if !ok {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	if otp, _ := claims["otp"].(bool); otp {
		return ""
	}
	id, _ := claims["id"].(string)
	return id
}

// Identity rejects requests whose token does not name a usable identity.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return Fail(c, fiber.StatusBadRequest, "2FA required or identity missing")
		}
		return c.Next()
	}
}

// Fail writes the error envelope used by every endpoint.
func Fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"message": message,
		"data":    nil,
	})
}
