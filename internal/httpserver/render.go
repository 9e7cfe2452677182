package httpserver

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/neopharm/pharmacy/internal/middleware/csrf"
	"github.com/neopharm/pharmacy/internal/models"
)

//go:embed templates
var templateFS embed.FS

// Renderer executes one page template inside the shared layout.
type Renderer struct {
	pages map[string]*template.Template
	now   func() time.Time
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: map[string]*template.Template{}, now: time.Now}

	base, err := template.New("layout").Funcs(r.funcs()).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, err
	}
	files, err := fs.Glob(templateFS, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		t, err := template.Must(base.Clone()).ParseFS(templateFS, f)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		r.pages[strings.TrimSuffix(path.Base(f), ".html")] = t
	}
	return r, nil
}

func (r *Renderer) Render(w io.Writer, name string, data any, c echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return t.ExecuteTemplate(w, "layout", data)
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
		"date": func(t any) string {
			switch v := t.(type) {
			case time.Time:
				return v.Format(time.DateOnly)
			case *time.Time:
				if v != nil {
					return v.Format(time.DateOnly)
				}
			}
			return ""
		},
		"datetime":    func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
		"expiry":      func(d any) string { return asDrug(d).ExpirationStatus(r.now()) },
		"expired":     func(d any) bool { return asDrug(d).IsExpired(r.now()) },
		"value":       func(d any) string { return asDrug(d).StockValue().StringFixed(2) },
		"displayName": func(u any) string { return asUser(u).DisplayName() },
		"role":        func(u any) string { return asUser(u).Role() },
		"label":       func(c models.Category) string { return c.Label() },
		"count":       func(m map[string]int64, c models.Category) int64 { return m[string(c)] },
		"add":         func(a, b int) int { return a + b },
		"selected": func(a, b any) template.HTMLAttr {
			if fmt.Sprint(a) == fmt.Sprint(b) {
				return "selected"
			}
			return ""
		},
		"checked": func(ok bool) template.HTMLAttr {
			if ok {
				return "checked"
			}
			return ""
		},
		"contains": func(ids []uint, id uint) bool {
			for _, v := range ids {
				if v == id {
					return true
				}
			}
			return false
		},
	}
}

func asDrug(v any) *models.Drug {
	switch d := v.(type) {
	case *models.Drug:
		if d != nil {
			return d
		}
	case models.Drug:
		return &d
	}
	return &models.Drug{}
}

func asUser(v any) *models.User {
	switch u := v.(type) {
	case *models.User:
		if u != nil {
			return u
		}
	case models.User:
		return &u
	}
	return &models.User{}
}

// view is the data every page receives; Data carries the page's own values.
type view struct {
	Title   string
	Path    string
	UserID  uint
	Role    string
	CSRF    string
	Flashes []Flash
	Data    any
}

func (v view) IsAdmin() bool { return v.Role == models.RoleAdmin }

func (v view) IsPharmacist() bool { return v.Role == models.RoleAdmin || v.Role == models.RolePharmacist }

func (v view) LoggedIn() bool { return v.UserID != 0 }

func render(c echo.Context, status int, name, title string, data any) error {
	v := view{
		Title:   title,
		Path:    c.Request().URL.Path,
		Role:    currentRole(c),
		CSRF:    csrf.Token(c),
		Flashes: popFlashes(c),
		Data:    data,
	}
	v.UserID, _ = currentUserID(c)
	return c.Render(status, name, v)
}
