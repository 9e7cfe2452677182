package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwthelp "github.com/neopharm/pharmacy/pkg/jwt"
	"github.com/neopharm/pharmacy/pkg/tokens"
)

var testSecret = []byte("mw-secret")

type fakeRefresher struct {
	pair  *tokens.Pair
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	f.calls++
	return f.pair, f.err
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, c.Get("user_id").(string)+":"+c.Get("role").(string))
}

func accessToken(t *testing.T, role string, exp time.Time) string {
	t.Helper()
	tok, err := tokens.NewAccessToken(testSecret, "5", role, exp)
	require.NoError(t, err)
	return tok
}

func serve(m echo.MiddlewareFunc, req *http.Request) *httptest.ResponseRecorder {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := m(okHandler)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

func TestRequireAuth_ValidToken(t *testing.T) {
	mw := NewAutoRefreshMiddleware(testSecret, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/store", nil)
	req.AddCookie(&http.Cookie{Name: jwthelp.AccessCookie, Value: accessToken(t, "pharm-tech", time.Now().Add(time.Minute))})

	rec := serve(mw.RequireAuth, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5:pharm-tech", rec.Body.String())
}

func TestRequireAuth_MissingToken_RedirectsBrowser(t *testing.T) {
	mw := NewAutoRefreshMiddleware(testSecret, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/cart?x=1", nil)
	rec := serve(mw.RequireAuth, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?next=%2Fcart%3Fx%3D1", rec.Header().Get(echo.HeaderLocation))
}

func TestRequireAuth_MissingToken_JSONClientGets401(t *testing.T) {
	mw := NewAutoRefreshMiddleware(testSecret, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/search-items?q=para", nil)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	rec := serve(mw.RequireAuth, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_ExpiredToken_Refreshes(t *testing.T) {
	newAccess := accessToken(t, "admin", time.Now().Add(time.Minute))
	ref := &fakeRefresher{pair: &tokens.Pair{
		AccessToken:  newAccess,
		RefreshToken: "new-refresh",
		AccessExp:    time.Now().Add(time.Minute),
		RefreshExp:   time.Now().Add(time.Hour),
	}}
	mw := NewAutoRefreshMiddleware(testSecret, ref, false)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: jwthelp.AccessCookie, Value: accessToken(t, "admin", time.Now().Add(-time.Minute))})
	req.AddCookie(&http.Cookie{Name: jwthelp.RefreshCookie, Value: "old-refresh"})

	rec := serve(mw.RequireAuth, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ref.calls)

	var names []string
	for _, ck := range rec.Result().Cookies() {
		names = append(names, ck.Name)
	}
	assert.ElementsMatch(t, []string{jwthelp.AccessCookie, jwthelp.RefreshCookie}, names)
}

func TestRequireAuth_RefreshFails_ClearsCookies(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("revoked")}
	mw := NewAutoRefreshMiddleware(testSecret, ref, false)

	req := httptest.NewRequest(http.MethodGet, "/api/extend-session", nil)
	req.AddCookie(&http.Cookie{Name: jwthelp.RefreshCookie, Value: "old-refresh"})

	rec := serve(mw.RequireAuth, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	for _, ck := range rec.Result().Cookies() {
		assert.Equal(t, -1, ck.MaxAge)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name string
		role string
		code int
	}{
		{name: "admin allowed", role: "admin", code: http.StatusOK},
		{name: "pharmacist allowed", role: "pharmacist", code: http.StatusOK},
		{name: "pharm-tech forbidden", role: "pharm-tech", code: http.StatusForbidden},
	}

	mw := NewAutoRefreshMiddleware(testSecret, nil, false)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/add-item", nil)
			req.AddCookie(&http.Cookie{Name: jwthelp.AccessCookie, Value: accessToken(t, tt.role, time.Now().Add(time.Minute))})
			rec := serve(mw.RequireRole("admin", "pharmacist"), req)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}
