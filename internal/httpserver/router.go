package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/neopharm/pharmacy/internal/middleware/csrf"
	middleware "github.com/neopharm/pharmacy/pkg/middleware/auth"
)

type Deps struct {
	Auth    *AuthHTTP
	Store   *StoreHTTP
	Cart    *CartHTTP
	Forms   *FormHTTP
	Admin   *AdminHTTP
	Reports *ReportHTTP

	JWTSecret     []byte
	Refresher     middleware.Refresher
	SecureCookies bool
	// Ready reports whether the backing stores answer; nil means always ready.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	e.Renderer = r
	e.HTTPErrorHandler = ErrorHandler

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	csrfCfg := csrf.DefaultConfig()
	csrfCfg.Secure = d.SecureCookies
	e.Use(csrf.Middleware(csrfCfg))

	authMW := middleware.NewAutoRefreshMiddleware(d.JWTSecret, d.Refresher, d.SecureCookies)
	anyUser := authMW.RequireAuth
	pharmacist := authMW.RequireRole(pharmacistRoles...)
	admin := authMW.RequireRole(adminRoles...)

	e.GET("/", d.Auth.LoginPage)
	e.POST("/", d.Auth.Login)
	e.POST("/logout", d.Auth.LogOut)
	e.POST("/api/extend-session", d.Auth.ExtendSession, anyUser)

	e.GET("/register", d.Auth.RegisterPage, admin)
	e.POST("/register", d.Auth.Register, admin)

	e.GET("/profile", d.Auth.Profile, anyUser)
	e.POST("/profile", d.Auth.UpdateProfile, anyUser)
	e.GET("/profile/change-password", d.Auth.PasswordPage, anyUser)
	e.POST("/profile/change-password", d.Auth.ChangePassword, anyUser)

	e.GET("/dashboard", d.Store.Dashboard, anyUser)
	e.GET("/store", d.Store.Store, anyUser)

	e.GET("/add-item", d.Store.AddItemPage, pharmacist)
	e.POST("/add-item", d.Store.AddItem, pharmacist)
	e.GET("/edit-item/:drug_type/:pk", d.Store.EditItemPage, pharmacist)
	e.POST("/edit-item/:drug_type/:pk", d.Store.EditItem, pharmacist)
	e.GET("/delete-item/:drug_type/:pk", d.Store.DeleteItemPage, pharmacist)
	e.POST("/delete-item/:drug_type/:pk", d.Store.DeleteItem, pharmacist)
	e.GET("/return/:drug_type/:pk", d.Store.ReturnPage, pharmacist)
	e.POST("/return/:drug_type/:pk", d.Store.ReturnItem, pharmacist)
	e.POST("/update-stock/:drug_type/:pk", d.Store.UpdateStock, pharmacist)

	e.POST("/add-to-cart/:drug_type/:pk", d.Store.AddToCart, anyUser)
	e.POST("/quick-dispense/:drug_type/:pk", d.Store.QuickDispense, anyUser)

	e.GET("/search", d.Store.Search, anyUser)
	e.GET("/search-items", d.Store.SearchItems, anyUser)
	e.GET("/get-category-drugs", d.Store.CategoryDrugs, anyUser)

	e.GET("/cart", d.Cart.Cart, anyUser)
	e.POST("/cart/clear", d.Cart.ClearCart, anyUser)
	e.POST("/update-cart/:pk", d.Cart.UpdateCart, anyUser)
	e.POST("/remove-from-cart/:pk", d.Cart.RemoveFromCart, anyUser)
	e.GET("/dispense", d.Cart.DispensePage, anyUser)
	e.POST("/dispense", d.Cart.Dispense, anyUser)
	e.GET("/receipt", d.Cart.LatestReceipt, anyUser)
	e.GET("/receipt/:id", d.Cart.Receipt, anyUser)

	forms := e.Group("/forms")
	forms.GET("", d.Forms.List, anyUser)
	forms.GET("/:form_id", d.Forms.Detail, anyUser)
	forms.GET("/:form_id/edit", d.Forms.EditPage, pharmacist)
	forms.POST("/:form_id/edit", d.Forms.Edit, pharmacist)
	forms.GET("/:form_id/items/add", d.Forms.AddItemPage, pharmacist)
	forms.POST("/:form_id/items/add", d.Forms.AddItem, pharmacist)
	forms.GET("/:form_id/items/:item_id/edit", d.Forms.EditItemPage, pharmacist)
	forms.POST("/:form_id/items/:item_id/edit", d.Forms.EditItem, pharmacist)
	forms.GET("/:form_id/items/:item_id/remove", d.Forms.RemoveItemPage, pharmacist)
	forms.POST("/:form_id/items/:item_id/remove", d.Forms.RemoveItem, pharmacist)

	adm := e.Group("/admin", admin)
	adm.GET("", d.Admin.Index)
	adm.GET("/users", d.Admin.ListUsers)
	adm.GET("/users/category/:category", d.Admin.ListUsers)
	adm.GET("/users/create", d.Admin.CreateUserPage)
	adm.POST("/users/create", d.Admin.CreateUser)
	adm.GET("/users/:id/edit", d.Admin.EditUserPage)
	adm.POST("/users/:id/edit", d.Admin.EditUser)
	adm.GET("/users/:id/delete", d.Admin.DeleteUserPage)
	adm.POST("/users/:id/delete", d.Admin.DeleteUser)
	adm.GET("/users/:id/permissions", d.Admin.PermissionsPage)
	adm.POST("/users/:id/permissions", d.Admin.SetPermissions)
	adm.GET("/users/:id/change-password", d.Admin.ChangePasswordPage)
	adm.POST("/users/:id/change-password", d.Admin.ChangePassword)
	adm.GET("/users/:id/set-password", d.Admin.SetPasswordPage)
	adm.POST("/users/:id/set-password", d.Admin.SetPassword)

	adm.GET("/groups", d.Admin.Groups)
	adm.GET("/groups/create", d.Admin.CreateGroupPage)
	adm.POST("/groups/create", d.Admin.CreateGroup)
	adm.GET("/groups/:id", d.Admin.Group)
	adm.GET("/groups/:id/edit", d.Admin.EditGroupPage)
	adm.POST("/groups/:id/edit", d.Admin.EditGroup)
	adm.GET("/groups/:id/delete", d.Admin.DeleteGroupPage)
	adm.POST("/groups/:id/delete", d.Admin.DeleteGroup)

	adm.GET("/model-browser", d.Admin.ModelBrowser)
	adm.GET("/model-browser/select", d.Admin.SelectModel)
	adm.POST("/model-browser/select", d.Admin.SelectModel)
	adm.GET("/model-browser/:category", d.Admin.ModelList)
	adm.GET("/model-browser/:category/:drug_id/edit", d.Admin.RenameDrugPage)
	adm.POST("/model-browser/:category/:drug_id/edit", d.Admin.RenameDrug)

	reports := e.Group("/reports", anyUser, d.Reports.RequireAccess)
	reports.GET("/inventory", d.Reports.Inventory)
	reports.GET("/sales", d.Reports.Sales)
}
