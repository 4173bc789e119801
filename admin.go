package pubsite

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

func (a *App) requireAdmin(c echo.Context) error {
	return c.Redirect(http.StatusSeeOther, a.page("admin"))
}

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(false, CsrfToken(c)))
	}
	return a.renderAdminDashboard(c, c.QueryParam("msg"))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	if !a.loginLimiter.Check(c.RealIP()) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	pass := c.FormValue("password")
	if subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) == 1 {
		if err := setAdminSession(c); err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, a.page("admin"))
	}
	a.loginLimiter.Record(c.RealIP())
	a.Logger.Warn("admin login failed", "ip", c.RealIP())
	return RenderStatus(c, http.StatusUnauthorized, a.Views.AdminLogin(true, CsrfToken(c)))
}

func (a *App) handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, a.page("admin"))
}

func (a *App) handleAdminPage(c echo.Context) error {
	if !IsAdmin(c) {
		return a.requireAdmin(c)
	}
	page, err := a.Store.GetPage(c.Param("slug"), c.QueryParam("locale"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return Render(c, a.Views.AdminPageForm(page, CsrfToken(c)))
}

func (a *App) dashboardRedirect(c echo.Context, msg string) error {
	return c.Redirect(http.StatusSeeOther, a.page("admin")+"?msg="+url.QueryEscape(msg))
}

func (a *App) handleAdminSavePage(c echo.Context) error {
	if !IsAdmin(c) {
		return a.requireAdmin(c)
	}
	if err := c.Request().ParseForm(); err != nil {
		return err
	}
	title := strings.TrimSpace(c.FormValue("title"))
	slug := strings.Trim(strings.TrimSpace(c.FormValue("slug")), "/")
	if slug == "" {
		slug = Slugify(title)
	}
	if slug == "" {
		return a.dashboardRedirect(c, "Slug is required. Add a title or slug.")
	}
	date := strings.TrimSpace(c.FormValue("date"))
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return a.dashboardRedirect(c, "Invalid date format. Use YYYY-MM-DD.")
	}
	kind := c.FormValue("kind")
	if kind != KindPost {
		kind = KindPage
	}
	locale := strings.TrimSpace(c.FormValue("locale"))
	if locale == a.Links.Language() {
		locale = ""
	}
	if err := a.Store.SavePage(Page{
		Slug:      slug,
		Locale:    locale,
		Kind:      kind,
		Title:     title,
		Date:      date,
		Summary:   c.FormValue("summary"),
		Published: c.FormValue("published") != "",
	}); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return a.renderAdminDashboard(c, "saved")
}

func (a *App) handleAdminDeletePage(c echo.Context) error {
	if !IsAdmin(c) {
		return a.requireAdmin(c)
	}
	if err := a.Store.DeletePage(c.Param("slug"), c.QueryParam("locale")); err != nil {
		return err
	}
	a.Cache.Invalidate()
	return a.renderAdminDashboard(c, "deleted")
}

func (a *App) handleAdminSubmission(c echo.Context) error {
	if !IsAdmin(c) {
		return a.requireAdmin(c)
	}
	sub, err := a.Store.GetSubmission(c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return Render(c, a.Views.AdminSubmission(sub, CsrfToken(c)))
}

func (a *App) handleAdminDeleteSubmission(c echo.Context) error {
	if !IsAdmin(c) {
		return a.requireAdmin(c)
	}
	if err := a.Store.DeleteSubmission(c.Param("id")); err != nil {
		return err
	}
	return a.renderAdminDashboard(c, "deleted")
}

func (a *App) renderAdminDashboard(c echo.Context, msg string) error {
	pages, err := a.Store.ListAllPages()
	if err != nil {
		return err
	}
	subs, err := a.Store.ListSubmissions(c.QueryParam("form"), 100)
	if err != nil {
		return err
	}
	return Render(c, a.Views.AdminDashboard(pages, subs, msg, CsrfToken(c)))
}
