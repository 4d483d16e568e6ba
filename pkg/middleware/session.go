package middleware

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/labstack/echo/v4"
)

// SessionResolver maps a bearer token to the agent holding the active session.
type SessionResolver interface {
	ResolveToken(token string) (agentID string, role string, ok bool)
}

// Session rejects requests whose bearer token does not match the active session.
func Session(logger ectologger.Logger, sessions SessionResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Session")
			defer span.End()

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			agentID, role, ok := sessions.ResolveToken(strings.TrimPrefix(auth, "Bearer "))
			if !ok {
				logger.WithContext(ctx).Warn("session token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid session")
			}

			ctx = context.SetAgentID(ctx, agentID)
			ctx = context.SetRole(ctx, role)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
