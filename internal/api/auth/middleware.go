package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// AuthorContextKey holds the authenticated author id
	AuthorContextKey ContextKey = "author_id"
)

// RequireAuth validates the Bearer token and stashes the asserted author id
// in the request context. The engine trusts this identity assertion; it
// does not authenticate beyond signature verification.
func RequireAuth(jwtSecret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Extract token from Authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			// Check Bearer token format
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			authorID, err := validateToken(tokenParts[1], jwtSecret)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}

			c.Set(string(AuthorContextKey), authorID)

			return next(c)
		}
	}
}

func validateToken(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token missing subject claim")
	}

	return sub, nil
}

// MustGetAuthorID returns the author id set by RequireAuth. Panics if
// called from a route that is not behind the middleware.
func MustGetAuthorID(c echo.Context) string {
	authorID, ok := c.Get(string(AuthorContextKey)).(string)
	if !ok || authorID == "" {
		panic("author id missing from context; route not behind RequireAuth")
	}
	return authorID
}
