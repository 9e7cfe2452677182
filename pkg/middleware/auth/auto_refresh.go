package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	jwthelp "github.com/neopharm/pharmacy/pkg/jwt"
	"github.com/neopharm/pharmacy/pkg/logging"
	"github.com/neopharm/pharmacy/pkg/tokens"
)

// Refresher rotates a refresh token into a new token pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error)
}

type AutoRefreshMiddleware struct {
	JWTSecret     []byte
	Refresher     Refresher
	SecureCookies bool
	LoginPath     string
}

func NewAutoRefreshMiddleware(secret []byte, refresher Refresher, secureCookies bool) *AutoRefreshMiddleware {
	return &AutoRefreshMiddleware{
		JWTSecret:     secret,
		Refresher:     refresher,
		SecureCookies: secureCookies,
		LoginPath:     "/",
	}
}

type ValidatorFunc func(claims *tokens.AccessClaims) error

func (m *AutoRefreshMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return m.requireAuthWithValidator(next, nil)
}

// RequireRole lets the request through only when the token role is one of roles.
func (m *AutoRefreshMiddleware) RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return m.requireAuthWithValidator(next, func(claims *tokens.AccessClaims) error {
			if _, ok := allowed[claims.Role]; !ok {
				return echo.NewHTTPError(http.StatusForbidden, "you do not have permission to access this page")
			}
			return nil
		})
	}
}

func (m *AutoRefreshMiddleware) requireAuthWithValidator(next echo.HandlerFunc, validator ValidatorFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		l := logging.FromContext(c.Request().Context()).With("mw", "auth")

		accessCookie, err := c.Cookie(jwthelp.AccessCookie)
		if err != nil || accessCookie.Value == "" {
			return m.tryRefresh(c, next, validator)
		}

		claims, err := tokens.AccessClaimsFromToken(accessCookie.Value, m.JWTSecret)
		if err == nil && claims != nil {
			if validator != nil {
				if validationErr := validator(claims); validationErr != nil {
					l.Warn("access_denied", "status", 403, "role", claims.Role)
					return validationErr
				}
			}
			setUserContext(c, claims)
			return next(c)
		}

		if !errors.Is(err, jwt.ErrTokenExpired) {
			m.clearAuthCookies(c)
			l.Warn("invalid_access_token", "status", 401, "error", err)
			return m.unauthorized(c, "invalid access token")
		}

		return m.tryRefresh(c, next, validator)
	}
}

func (m *AutoRefreshMiddleware) tryRefresh(c echo.Context, next echo.HandlerFunc, validator ValidatorFunc) error {
	l := logging.FromContext(c.Request().Context()).With("mw", "auth")

	refreshCookie, err := c.Cookie(jwthelp.RefreshCookie)
	if err != nil || refreshCookie.Value == "" || m.Refresher == nil {
		return m.unauthorized(c, "authentication required")
	}

	pair, err := m.Refresher.Refresh(c.Request().Context(), refreshCookie.Value)
	if err != nil {
		m.clearAuthCookies(c)
		l.Warn("refresh_failed", "status", 401, "error", err)
		return m.unauthorized(c, "session expired")
	}

	SetTokenCookies(c, pair, m.SecureCookies)

	newClaims, err := tokens.AccessClaimsFromToken(pair.AccessToken, m.JWTSecret)
	if err != nil || newClaims == nil {
		m.clearAuthCookies(c)
		return m.unauthorized(c, "new access token invalid")
	}

	if validator != nil {
		if validationErr := validator(newClaims); validationErr != nil {
			return validationErr
		}
	}

	setUserContext(c, newClaims)
	return next(c)
}

func (m *AutoRefreshMiddleware) unauthorized(c echo.Context, msg string) error {
	if WantsJSON(c) {
		return echo.NewHTTPError(http.StatusUnauthorized, msg)
	}
	target := m.LoginPath + "?next=" + url.QueryEscape(c.Request().URL.RequestURI())
	return c.Redirect(http.StatusSeeOther, target)
}

func (m *AutoRefreshMiddleware) clearAuthCookies(c echo.Context) {
	ClearTokenCookies(c, m.SecureCookies)
}

// SetTokenCookies writes both auth cookies for a freshly issued pair.
func SetTokenCookies(c echo.Context, pair *tokens.Pair, secure bool) {
	c.SetCookie(jwthelp.CreateCookie(jwthelp.AccessCookie, pair.AccessToken, "/", pair.AccessExp, secure))
	c.SetCookie(jwthelp.CreateCookie(jwthelp.RefreshCookie, pair.RefreshToken, "/", pair.RefreshExp, secure))
}

func ClearTokenCookies(c echo.Context, secure bool) {
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.AccessCookie, "/", secure))
	c.SetCookie(jwthelp.DeleteCookie(jwthelp.RefreshCookie, "/", secure))
}

func setUserContext(c echo.Context, claims *tokens.AccessClaims) {
	c.Set("user_id", claims.Subject)
	c.Set("role", claims.Role)
}

// WantsJSON reports whether the client expects a JSON answer instead of a page.
func WantsJSON(c echo.Context) bool {
	req := c.Request()
	if req.Header.Get("X-Requested-With") == "XMLHttpRequest" || req.Header.Get("HX-Request") != "" {
		return true
	}
	if strings.HasPrefix(req.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(req.Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON)
}
