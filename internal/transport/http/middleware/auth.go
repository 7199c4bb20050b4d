// Package middleware holds the echo middleware for the chat API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/riyak972/capstone-chat/internal/auth"
	"github.com/riyak972/capstone-chat/internal/domain"
)

const (
	// TokenCookie is the cookie carrying the session JWT.
	TokenCookie = "token"

	userIDKey = "userID"
)

// RequireAuth rejects requests without a valid token in the token cookie or
// an Authorization bearer header.
func RequireAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr := tokenFromRequest(c)
			if tokenStr == "" {
				return unauthorized(c, "Authentication required")
			}

			claims, err := auth.ValidateToken(secret, tokenStr)
			if err != nil {
				return unauthorized(c, "Invalid or expired token")
			}

			c.Set(userIDKey, claims.UserID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user of the request, or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func unauthorized(c echo.Context, msg string) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{
		"code":  string(domain.CodeUnauthorized),
		"error": msg,
	})
}
