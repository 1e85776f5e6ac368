package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Middleware resolves the caller from a bearer token. The token is read from
// the Authorization header, or from the "token" query parameter for
// WebSocket upgrades where browsers cannot set headers.
//
// Requests without a token continue as anonymous so that handlers can answer
// in their own format (the chat socket replies with an error frame);
// RequireAuth rejects them on plain JSON routes. A token that is present but
// invalid is always rejected.
func Middleware(issuer *TokenIssuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}
			if tokenStr == "" {
				return next(c)
			}

			caller, err := issuer.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set("user_id", caller.UserID.String())
			c.SetRequest(c.Request().WithContext(WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return c.QueryParam("token"), nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// RequireAuth rejects anonymous callers.
func RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !CallerFromContext(c.Request().Context()).Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			return next(c)
		}
	}
}
