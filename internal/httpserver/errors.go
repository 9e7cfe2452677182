package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/pkg/logging"
)

// ErrorHandler renders an error page for browsers and {"error": ...} for API clients.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	l := logging.FromContext(c.Request().Context()).With("handler", "http.error")

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	} else if status := statusOf(err); status != http.StatusInternalServerError {
		code = status
		msg = userMessage(err)
	}

	if code >= http.StatusInternalServerError {
		l.Error("request_failed", "status", code, "error", err)
		msg = http.StatusText(code)
	}

	var out error
	switch {
	case c.Request().Method == http.MethodHead:
		out = c.NoContent(code)
	case wantsJSON(c):
		out = c.JSON(code, map[string]any{"error": msg})
	default:
		out = render(c, code, "error", http.StatusText(code), map[string]any{"Code": code, "Message": msg})
	}
	if out != nil {
		l.Error("error_page_failed", "error", out)
	}
}
