package loggingmw

import (
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/pkg/logging"
)

// RequestLogger stores a request-scoped logger in the context and writes one
// "request_done" line per request. Successful requests under a quiet prefix are not logged.
func RequestLogger(base *slog.Logger, quiet ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Response().Header().Get(echo.HeaderXRequestID)
			}

			l := base.With("method", req.Method, "route", c.Path(), "path", req.URL.Path, "remote_ip", c.RealIP(), "user_agent", req.UserAgent())
			if rid != "" {
				l = l.With("request_id", rid)
				c.Response().Header().Set(echo.HeaderXRequestID, rid)
			}
			c.SetRequest(req.WithContext(logging.IntoContext(req.Context(), l)))

			start := time.Now()
			err := next(c)
			if err != nil {
				// Render the error now so the logged status is the one the client gets.
				c.Echo().HTTPErrorHandler(err, c)
			}
			status := c.Response().Status

			if status < 400 && isQuiet(req.URL.Path, quiet) {
				return nil
			}

			attrs := []any{"status", status, "duration_ms", time.Since(start).Milliseconds()}
			if uid, ok := c.Get("user_id").(string); ok && uid != "" {
				attrs = append(attrs, "user_id", uid, "role", c.Get("role"))
			}
			switch {
			case status >= 500:
				l.Error("request_done", append(attrs, "error", errText(err))...)
			case status >= 400:
				l.Warn("request_done", append(attrs, "error", errText(err))...)
			default:
				l.Info("request_done", append(attrs, "bytes", c.Response().Size)...)
			}
			return nil
		}
	}
}

func isQuiet(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
