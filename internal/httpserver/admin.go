package httpserver

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/models"
	"github.com/neopharm/pharmacy/internal/service"
	"github.com/neopharm/pharmacy/internal/transport"
	"github.com/neopharm/pharmacy/pkg/logging"
)

type AdminHTTP struct {
	Users *service.UserService
	Drugs *service.DrugService
}

func (h *AdminHTTP) Index(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := h.Users.Counts(ctx)
	if err != nil {
		return err
	}
	drugs, err := h.Drugs.Counts(ctx)
	if err != nil {
		return err
	}
	groups, err := h.Users.ListGroups(ctx)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "admin", "Administration", map[string]any{
		"Users":      users,
		"Drugs":      drugs,
		"Groups":     len(groups),
		"Categories": models.Categories,
	})
}

func (h *AdminHTTP) ListUsers(c echo.Context) error {
	category := c.Param("category")
	if category == "" {
		category = service.UsersAll
	}
	list, err := h.Users.List(c.Request().Context(), category)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown user category")
	}
	return render(c, http.StatusOK, "users", "Users", map[string]any{
		"Users":      list,
		"Category":   category,
		"Categories": service.UserCategories,
	})
}

func (h *AdminHTTP) CreateUserPage(c echo.Context) error {
	return render(c, http.StatusOK, "register", "Create user", map[string]any{
		"UserTypes": models.UserTypes,
		"Action":    "/admin/users/create",
		"Form":      transport.RegisterRequest{},
	})
}

func (h *AdminHTTP) CreateUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.create_user")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
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
		l.Warn("create_user_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return render(c, status, "register", "Create user", map[string]any{
			"UserTypes": models.UserTypes,
			"Action":    "/admin/users/create",
			"Form":      req,
		})
	}
	flashSuccess(c, "User "+u.Username+" created")
	return redirect(c, "/admin/users")
}

func (h *AdminHTTP) user(c echo.Context) (*models.User, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	return h.Users.Get(c.Request().Context(), id)
}

func (h *AdminHTTP) EditUserPage(c echo.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "user_edit", "Edit "+u.Username, map[string]any{"User": u, "UserTypes": models.UserTypes})
}

func (h *AdminHTTP) EditUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.edit_user")

	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req transport.UserUpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	u, err := h.Users.Update(ctx, id, service.UserUpdate{
		Username:    req.Username,
		Mobile:      req.Mobile,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		FullName:    req.FullName,
		UserType:    req.UserType,
		IsActive:    req.IsActive,
		IsStaff:     req.IsStaff,
		IsSuperuser: req.IsSuperuser,
		NewPassword: req.NewPassword,
	})
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError || status == http.StatusNotFound {
			return err
		}
		l.Warn("edit_user_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return redirect(c, c.Request().URL.Path)
	}
	flashSuccess(c, "User "+u.Username+" updated")
	return redirect(c, "/admin/users")
}

func (h *AdminHTTP) DeleteUserPage(c echo.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "confirm_delete", "Delete "+u.Username, map[string]any{
		"Object": "user " + u.Username,
		"Action": c.Request().URL.Path,
		"Cancel": "/admin/users",
	})
}

func (h *AdminHTTP) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.delete_user")

	actorID, err := currentUserID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Users.Delete(ctx, actorID, id); err != nil {
		status := statusOf(err)
		l.Warn("delete_user_error", "status", status, "error", err)
		if status == http.StatusForbidden {
			flashError(c, userMessage(err))
			return redirect(c, "/admin/users")
		}
		return err
	}
	flashSuccess(c, "User deleted")
	return redirect(c, "/admin/users")
}

func (h *AdminHTTP) PermissionsPage(c echo.Context) error {
	ctx := c.Request().Context()
	u, err := h.user(c)
	if err != nil {
		return err
	}
	groups, err := h.Users.ListGroups(ctx)
	if err != nil {
		return err
	}
	perms, err := h.Users.ListPermissions(ctx)
	if err != nil {
		return err
	}
	var groupIDs, permIDs []uint
	for _, g := range u.Groups {
		groupIDs = append(groupIDs, g.ID)
	}
	for _, p := range u.Permissions {
		permIDs = append(permIDs, p.ID)
	}
	return render(c, http.StatusOK, "user_permissions", "Permissions for "+u.Username, map[string]any{
		"User":        u,
		"Groups":      groups,
		"Permissions": perms,
		"GroupIDs":    groupIDs,
		"PermIDs":     permIDs,
	})
}

func (h *AdminHTTP) SetPermissions(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req transport.PermissionsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := h.Users.SetPermissions(ctx, id, req.Groups, req.Permissions); err != nil {
		logging.FromContext(ctx).Warn("set_permissions_error", "handler", "admin.set_permissions", "status", statusOf(err), "error", err)
		return err
	}
	flashSuccess(c, "Permissions updated")
	return redirect(c, "/admin/users")
}

func (h *AdminHTTP) ChangePasswordPage(c echo.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "password", "Change password for "+u.Username, map[string]any{
		"RequireOld": true,
		"Action":     c.Request().URL.Path,
	})
}

func (h *AdminHTTP) ChangePassword(c echo.Context) error {
	return h.password(c, true)
}

func (h *AdminHTTP) SetPasswordPage(c echo.Context) error {
	u, err := h.user(c)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "password", "Set password for "+u.Username, map[string]any{
		"RequireOld": false,
		"Action":     c.Request().URL.Path,
	})
}

func (h *AdminHTTP) SetPassword(c echo.Context) error {
	return h.password(c, false)
}

func (h *AdminHTTP) password(c echo.Context, requireOld bool) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin.password")

	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req transport.PasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if requireOld {
		err = h.Users.ChangePassword(ctx, id, req.OldPassword, req.NewPassword, req.Confirm)
	} else {
		err = h.Users.SetPassword(ctx, id, req.NewPassword, req.Confirm)
	}
	if err != nil {
		status := statusOf(err)
		if status != http.StatusBadRequest {
			return err
		}
		l.Warn("password_error", "status", status, "error", err)
		flashError(c, userMessage(err))
		return redirect(c, c.Request().URL.Path)
	}
	flashSuccess(c, "Password updated")
	return redirect(c, "/admin/users")
}

func (h *AdminHTTP) Groups(c echo.Context) error {
	groups, err := h.Users.ListGroups(c.Request().Context())
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "groups", "Groups", map[string]any{"Groups": groups})
}

func (h *AdminHTTP) Group(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	g, members, err := h.Users.GetGroup(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "group_detail", "Group "+g.Name, map[string]any{"Group": g, "Members": members})
}

func (h *AdminHTTP) groupForm(c echo.Context, status int, title string, g *models.Group, name string) error {
	perms, err := h.Users.ListPermissions(c.Request().Context())
	if err != nil {
		return err
	}
	var selected []uint
	if g != nil {
		for _, p := range g.Permissions {
			selected = append(selected, p.ID)
		}
	}
	return render(c, status, "group_form", title, map[string]any{
		"Name":        name,
		"Permissions": perms,
		"Selected":    selected,
		"Action":      c.Request().URL.Path,
	})
}

func (h *AdminHTTP) CreateGroupPage(c echo.Context) error {
	return h.groupForm(c, http.StatusOK, "Create group", nil, "")
}

func (h *AdminHTTP) CreateGroup(c echo.Context) error {
	ctx := c.Request().Context()
	var req transport.GroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	g, err := h.Users.CreateGroup(ctx, req.Name, req.Permissions)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			return err
		}
		logging.FromContext(ctx).Warn("create_group_error", "handler", "admin.create_group", "status", status, "error", err)
		flashError(c, userMessage(err))
		return h.groupForm(c, status, "Create group", nil, req.Name)
	}
	flashSuccess(c, "Group "+g.Name+" created")
	return redirect(c, "/admin/groups")
}

func (h *AdminHTTP) EditGroupPage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	g, _, err := h.Users.GetGroup(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return h.groupForm(c, http.StatusOK, "Edit group", g, g.Name)
}

func (h *AdminHTTP) EditGroup(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req transport.GroupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	g, err := h.Users.UpdateGroup(ctx, id, req.Name, req.Permissions)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError || status == http.StatusNotFound {
			return err
		}
		logging.FromContext(ctx).Warn("edit_group_error", "handler", "admin.edit_group", "status", status, "error", err)
		flashError(c, userMessage(err))
		return redirect(c, c.Request().URL.Path)
	}
	flashSuccess(c, "Group "+g.Name+" updated")
	return redirect(c, "/admin/groups")
}

func (h *AdminHTTP) DeleteGroupPage(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	g, _, err := h.Users.GetGroup(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "confirm_delete", "Delete group", map[string]any{
		"Object": "group " + g.Name,
		"Action": c.Request().URL.Path,
		"Cancel": "/admin/groups",
	})
}

func (h *AdminHTTP) DeleteGroup(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Users.DeleteGroup(c.Request().Context(), id); err != nil {
		return err
	}
	flashSuccess(c, "Group deleted")
	return redirect(c, "/admin/groups")
}

func (h *AdminHTTP) ModelBrowser(c echo.Context) error {
	counts, err := h.Drugs.Counts(c.Request().Context())
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "model_browser", "Model browser", map[string]any{
		"Categories": models.Categories,
		"Counts":     counts,
	})
}

func (h *AdminHTTP) SelectModel(c echo.Context) error {
	v := c.QueryParam("category")
	if v == "" {
		v = c.FormValue("category")
	}
	cat, err := models.ParseCategory(v)
	if err != nil {
		flashError(c, "Choose a drug category")
		return redirect(c, "/admin/model-browser")
	}
	return redirect(c, "/admin/model-browser/"+string(cat))
}

func (h *AdminHTTP) ModelList(c echo.Context) error {
	cat, err := paramCategory(c, "category")
	if err != nil {
		return err
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	var list []models.Drug
	if q != "" {
		list, err = h.Drugs.Search(c.Request().Context(), q, cat, htmlSearchLimit)
	} else {
		list, err = h.Drugs.List(c.Request().Context(), cat)
	}
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "model_list", cat.Label(), map[string]any{
		"Category": cat,
		"Drugs":    list,
		"Query":    q,
	})
}

func (h *AdminHTTP) RenameDrugPage(c echo.Context) error {
	cat, err := paramCategory(c, "category")
	if err != nil {
		return err
	}
	id, err := paramID(c, "drug_id")
	if err != nil {
		return err
	}
	d, err := h.Drugs.Get(c.Request().Context(), cat, id)
	if err != nil {
		return err
	}
	return render(c, http.StatusOK, "model_edit", "Rename "+d.Name, map[string]any{"Drug": d, "Category": cat})
}

func (h *AdminHTTP) RenameDrug(c echo.Context) error {
	ctx := c.Request().Context()
	cat, err := paramCategory(c, "category")
	if err != nil {
		return err
	}
	id, err := paramID(c, "drug_id")
	if err != nil {
		return err
	}
	d, err := h.Drugs.Rename(ctx, cat, id, c.FormValue("name"))
	if err != nil {
		status := statusOf(err)
		if status != http.StatusBadRequest {
			return err
		}
		logging.FromContext(ctx).Warn("rename_drug_error", "handler", "admin.rename_drug", "status", status, "error", err)
		flashError(c, userMessage(err))
		return redirect(c, c.Request().URL.Path)
	}
	flashSuccess(c, "Renamed to "+d.Name)
	return redirect(c, "/admin/model-browser/"+string(cat))
}
