package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	flashCookie  = "flash"
	flashOutKey  = "flash_out"
	flashSeenKey = "flash_seen"
)

type Flash struct {
	Level   string `json:"l"`
	Message string `json:"m"`
}

// addFlash queues a message for the next rendered page, which is usually the redirect target.
func addFlash(c echo.Context, level, msg string) {
	list, _ := c.Get(flashOutKey).([]Flash)
	list = append(list, Flash{Level: level, Message: msg})
	c.Set(flashOutKey, list)

	b, err := json.Marshal(list)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(b),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func flashSuccess(c echo.Context, msg string) { addFlash(c, "success", msg) }
func flashError(c echo.Context, msg string)   { addFlash(c, "error", msg) }

// popFlashes returns the messages carried in by the cookie plus those queued during this
// request, and expires the cookie.
func popFlashes(c echo.Context) []Flash {
	if seen, ok := c.Get(flashSeenKey).([]Flash); ok {
		return seen
	}
	var out []Flash
	if ck, err := c.Cookie(flashCookie); err == nil && ck.Value != "" {
		if b, err := base64.RawURLEncoding.DecodeString(ck.Value); err == nil {
			_ = json.Unmarshal(b, &out)
		}
	}
	queued, _ := c.Get(flashOutKey).([]Flash)
	out = append(out, queued...)
	if len(out) > 0 {
		c.SetCookie(&http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	c.Set(flashSeenKey, out)
	return out
}
