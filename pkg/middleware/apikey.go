package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
)

// APIKey requires "Authorization: Bearer <key>". An empty key disables the check.
func APIKey(logger ectologger.Logger, key string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if key == "" {
			return next
		}
		return func(c echo.Context) error {
			presented := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
				logger.WithContext(c.Request().Context()).Warn("request has an invalid api key")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
			}
			return next(c)
		}
	}
}
