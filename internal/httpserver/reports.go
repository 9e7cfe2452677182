package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/util"
	"github.com/neopharm/pharmacy/pkg/logging"
)

type ReportHTTP struct {
	Reports  *service.ReportService
	Users    *service.UserService
	LowStock int
}

// RequireAccess admits pharmacists and admins by role, and anyone else holding
// the view_report permission directly or through a group. It runs after RequireAuth.
func (h *ReportHTTP) RequireAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch currentRole(c) {
		case models.RoleAdmin, models.RolePharmacist:
			return next(c)
		}
		userID, err := currentUserID(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		if h.Users != nil {
			u, err := h.Users.Get(c.Request().Context(), userID)
			if err == nil && u.HasPerm(models.PermViewReport) {
				return next(c)
			}
			if err != nil {
				logging.FromContext(c.Request().Context()).Warn("report_access_lookup_failed", "user_id", userID, "error", err)
			}
		}
		return echo.NewHTTPError(http.StatusForbidden, "you do not have permission to access this page")
	}
}

func (h *ReportHTTP) Inventory(c echo.Context) error {
	threshold := util.ParseIntDefault(c.QueryParam("threshold"), h.LowStock)
	rep, err := h.Reports.Inventory(c.Request().Context(), threshold)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "report_inventory", "Inventory report", map[string]any{"Report": rep})
}

func (h *ReportHTTP) Sales(c echo.Context) error {
	days := util.ParseIntDefault(c.QueryParam("days"), service.DefaultSalesDays)
	rep, err := h.Reports.Sales(c.Request().Context(), days)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "report_sales", "Sales report", map[string]any{"Report": rep})
}
