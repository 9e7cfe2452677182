package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	middleware "github.com/neopharm/pharmacy/pkg/middleware/auth"
)

var (
	adminRoles      = []string{models.RoleAdmin}
	pharmacistRoles = []string{models.RoleAdmin, models.RolePharmacist}
)

var errUnauthorized = errors.New("unauthorized")

// currentUserID reads the subject stored by the auth middleware.
func currentUserID(c echo.Context) (uint, error) {
	s, ok := c.Get("user_id").(string)
	if !ok || s == "" {
		return 0, errUnauthorized
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, errUnauthorized
	}
	return uint(id), nil
}

func currentRole(c echo.Context) string {
	s, _ := c.Get("role").(string)
	return s
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusNotFound, "not found")
	}
	return uint(id), nil
}

func paramCategory(c echo.Context, name string) (models.Category, error) {
	cat, err := models.ParseCategory(c.Param(name))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusNotFound, "Invalid drug type")
	}
	return cat, nil
}

// quantityParam reads quantity from the query string or the form body, falling back
// to def when it is absent.
func quantityParam(c echo.Context, def int) (int, error) {
	v := c.QueryParam("quantity")
	if v == "" {
		v = c.FormValue("quantity")
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &fieldError{field: "quantity", value: v}
	}
	return n, nil
}

// statusOf maps service sentinels onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInsufficientStock),
		errors.Is(err, service.ErrExpired),
		errors.Is(err, service.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// userMessage turns a service error into text for a flash or a JSON body. Validation,
// conflict and forbidden errors carry their own detail in front of the sentinel.
func userMessage(err error) string {
	var detail error
	switch {
	case errors.Is(err, service.ErrInsufficientStock):
		return "Insufficient stock"
	case errors.Is(err, service.ErrExpired):
		return "This item has expired"
	case errors.Is(err, service.ErrEmptyCart):
		return "Your cart is empty"
	case errors.Is(err, service.ErrNotFound):
		return "Not found"
	case errors.Is(err, service.ErrInvalidCredentials):
		return "Invalid mobile number or password"
	case errors.Is(err, service.ErrValidation):
		detail = service.ErrValidation
	case errors.Is(err, service.ErrConflict):
		detail = service.ErrConflict
	case errors.Is(err, service.ErrForbidden):
		detail = service.ErrForbidden
	default:
		return "Something went wrong, please try again"
	}
	msg := strings.TrimSuffix(err.Error(), ": "+detail.Error())
	if msg == "" || msg == detail.Error() {
		return "Invalid input"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]any{"success": false, "error": msg})
}

// safeNext accepts only local absolute paths.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}

// back returns the same-host referer path, or fallback.
func back(c echo.Context, fallback string) string {
	ref := c.Request().Referer()
	if ref == "" {
		return fallback
	}
	u, err := url.Parse(ref)
	if err != nil || (u.Host != "" && u.Host != c.Request().Host) {
		return fallback
	}
	return safeNext(u.RequestURI(), fallback)
}

func redirect(c echo.Context, to string) error {
	return c.Redirect(http.StatusSeeOther, to)
}

func parseMoney(field, v string) (decimal.Decimal, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, &fieldError{field: field, value: v}
	}
	return d, nil
}

func parseDate(field, v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, &fieldError{field: field, value: v}
	}
	return &t, nil
}

type fieldError struct {
	field string
	value string
}

func (e *fieldError) Error() string { return "invalid " + e.field + " " + strconv.Quote(e.value) }

func (e *fieldError) Unwrap() error { return service.ErrValidation }

var wantsJSON = middleware.WantsJSON
