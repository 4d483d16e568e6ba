package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/labstack/echo/v4"
)

// Logger writes one access line per request. Server errors log at error level and
// client errors at warn.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			ctx := req.Context()
			entry := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    context.GetRequestID(ctx),
				"agent_id":      context.GetAgentID(ctx),
				"namespace":     context.GetNamespace(ctx),
				"method":        req.Method,
				"route":         c.Path(),
				"status":        res.Status,
				"remote_ip":     c.RealIP(),
				"response_time": time.Since(start),
				"response_size": res.Size,
			})

			switch {
			case res.Status >= http.StatusInternalServerError:
				entry.Error("Request failed")
			case res.Status >= http.StatusBadRequest:
				entry.Warn("Request rejected")
			default:
				entry.Info("Request")
			}
			return nil
		}
	}
}
