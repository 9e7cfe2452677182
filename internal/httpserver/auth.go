package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/transport"
	jwthelp "github.com/neopharm/pharmacy/pkg/jwt"
	"github.com/neopharm/pharmacy/pkg/logging"
	middleware "github.com/neopharm/pharmacy/pkg/middleware/auth"
	"github.com/neopharm/pharmacy/pkg/tokens"
)

type AuthHTTP struct {
	Auth          *service.AuthService
	Users         *service.UserService
	SecureCookies bool
}

func (h *AuthHTTP) LoginPage(c echo.Context) error {
	if ck, err := c.Cookie(jwthelp.AccessCookie); err == nil && ck.Value != "" {
		if _, err := tokens.AccessClaimsFromToken(ck.Value, h.Auth.JWTSecret); err == nil {
			return redirect(c, safeNext(c.QueryParam("next"), "/dashboard"))
		}
	}
	return render(c, http.StatusOK, "login", "Sign in", map[string]any{"Next": c.QueryParam("next"), "Mobile": ""})
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	pair, _, err := h.Auth.Login(ctx, req.Mobile, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			l.Warn("login_error", "status", 401, "error", err)
			flashError(c, "Invalid mobile number or password")
			return render(c, http.StatusUnauthorized, "login", "Sign in", map[string]any{"Next": req.Next, "Mobile": req.Mobile})
		}
		l.Error("login_error", "status", 500, "error", err)
		return err
	}

	middleware.SetTokenCookies(c, pair, h.SecureCookies)
	return redirect(c, safeNext(req.Next, "/dashboard"))
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.logout")

	if ck, err := c.Cookie(jwthelp.RefreshCookie); err == nil && ck.Value != "" {
		if err := h.Auth.LogOut(ctx, ck.Value); err != nil {
			l.Error("logout_error", "status", 500, "error", err)
		}
	}
	middleware.ClearTokenCookies(c, h.SecureCookies)
	flashSuccess(c, "You have been logged out")
	return redirect(c, "/")
}

// ExtendSession rotates the refresh token so an active page keeps its session.
func (h *AuthHTTP) ExtendSession(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.extend_session")

	ck, err := c.Cookie(jwthelp.RefreshCookie)
	if err != nil || ck.Value == "" {
		return jsonError(c, http.StatusUnauthorized, "session expired")
	}
	pair, err := h.Auth.Refresh(ctx, ck.Value)
	if err != nil {
		l.Warn("extend_session_error", "status", 401, "error", err)
		middleware.ClearTokenCookies(c, h.SecureCookies)
		return jsonError(c, http.StatusUnauthorized, "session expired")
	}
	middleware.SetTokenCookies(c, pair, h.SecureCookies)
	return c.JSON(http.StatusOK, map[string]any{
		"success":    true,
		"expires_at": pair.AccessExp.Unix(),
	})
}

func (h *AuthHTTP) RegisterPage(c echo.Context) error {
	return render(c, http.StatusOK, "register", "Register user", map[string]any{
		"UserTypes": models.UserTypes,
		"Action":    "/register",
		"Form":      transport.RegisterRequest{},
	})
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.register")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	u, err := h.Users.Register(ctx, service.RegisterInput{
		Username: req.Username,
		Mobile:   req.Mobile,
		FullName: req.FullName,
		UserType: req.UserType,
		Password: req.Password,
		Confirm:  req.Confirm,
		IsStaff:  req.IsStaff,
	})
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			return err
		}
		l.Warn("register_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return render(c, status, "register", "Register user", map[string]any{"UserTypes": models.UserTypes, "Action": "/register", "Form": req})
	}

	flashSuccess(c, "User "+u.Username+" registered")
	return redirect(c, "/admin/users")
}

func (h *AuthHTTP) Profile(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	u, err := h.Users.Get(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "profile", "Profile", map[string]any{"User": u, "UserTypes": models.UserTypes})
}

func (h *AuthHTTP) UpdateProfile(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.update_profile")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	var req transport.ProfileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	_, err = h.Users.UpdateProfile(ctx, userID, service.ProfileInput{
		Username: req.Username,
		Mobile:   req.Mobile,
		FullName: req.FullName,
		UserType: req.UserType,
	}, currentRole(c) == models.RoleAdmin)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			return err
		}
		l.Warn("update_profile_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return redirect(c, "/profile")
	}
	flashSuccess(c, "Profile updated")
	return redirect(c, "/profile")
}

func (h *AuthHTTP) PasswordPage(c echo.Context) error {
	return render(c, http.StatusOK, "password", "Change password", map[string]any{"RequireOld": true, "Action": "/profile/change-password"})
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth.change_password")

	userID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	var req transport.PasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Users.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword, req.Confirm); err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			return err
		}
		l.Warn("change_password_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return render(c, status, "password", "Change password", map[string]any{"RequireOld": true, "Action": "/profile/change-password"})
	}
	flashSuccess(c, "Your password was changed")
	return redirect(c, "/profile")
}
