// Package middleware provides authentication, rate limiting and request
// instrumentation for the feed API.
package middleware

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"heartline/internal/models"
	"heartline/internal/observability"
)

// TokenIssuer is the iss claim the API issues and accepts.
const TokenIssuer = "heartline-api"

// UserIDLocal is the fiber.Ctx local holding the authenticated user ID (uint).
const UserIDLocal = "userID"

// AuthRequired enforces a valid bearer token signed with secret.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization header required"))
		}

		userID, err := ParseUserID(tokenString, secret)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized, err)
		}

		setUser(c, userID)
		return c.Next()
	}
}

// OptionalAuth records the user when a valid token is present and continues either way.
func OptionalAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokenString, ok := bearerToken(c.Get(fiber.HeaderAuthorization)); ok {
			if userID, err := ParseUserID(tokenString, secret); err == nil {
				setUser(c, userID)
			}
		}
		return c.Next()
	}
}

// UserID returns the authenticated user, or 0.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(UserIDLocal).(uint)
	return id
}

// ParseUserID validates tokenString and returns its subject as a user ID.
func ParseUserID(tokenString, secret string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "Invalid signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(TokenIssuer))
	if err != nil || !token.Valid {
		return 0, models.NewUnauthorizedError("Invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, models.NewUnauthorizedError("Invalid token structure - missing subject")
	}

	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return 0, models.NewUnauthorizedError("Invalid user ID in token")
	}
	return uint(userID), nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" {
		return "", false
	}
	return token, true
}

func setUser(c *fiber.Ctx, userID uint) {
	c.Locals(UserIDLocal, userID)
	ctx := context.WithValue(c.UserContext(), observability.UserIDKey, userID)
	c.SetUserContext(ctx)
}
