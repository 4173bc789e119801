package pubsite

import (
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const sessionName = "admin_session"

func (a *App) setupMiddleware() {
	e := a.Echo

	e.IPExtractor = echo.ExtractIPFromXFFHeader(
		echo.TrustLoopback(true),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(true),
	)

	e.HTTPErrorHandler = a.httpErrorHandler

	e.Pre(middleware.NonWWWRedirect())
	e.Pre(a.trailingSlash(http.StatusMovedPermanently, func(c echo.Context) bool {
		return c.Request().Method != http.MethodGet || a.isFilePath(c.Request().URL.Path)
	}))
	// Non-GET requests are rewritten in place; a redirect would drop the body.
	e.Pre(a.trailingSlash(0, func(c echo.Context) bool {
		return c.Request().Method == http.MethodGet || a.isFilePath(c.Request().URL.Path)
	}))

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			a.Logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	e.Use(middleware.Recover())

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return strings.HasPrefix(c.Request().URL.Path, a.file("public")+"/")
		},
	}))

	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' https: data:",
		HSTSMaxAge:            31536000,
		HSTSExcludeSubdomains: false,
	}))

	if len(a.Config.CORSAllowOrigin) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: a.Config.CORSAllowOrigin,
			AllowMethods: []string{http.MethodPost, http.MethodOptions},
			Skipper: func(c echo.Context) bool {
				return !a.isFormPath(c.Request().URL.Path)
			},
		}))
	}

	e.Use(session.Middleware(a.newSessionStore()))

	e.Use(middleware.CSRFWithConfig(middleware.CSRFConfig{
		ContextKey:  middleware.DefaultCSRFConfig.ContextKey,
		TokenLookup: "header:X-CSRF-Token,form:_csrf",
		CookieName:  "_csrf",
		CookiePath:  a.Links.Base(),
		CookieSameSite: func() http.SameSite {
			return http.SameSiteLaxMode
		}(),
		CookieSecure: a.Config.CookieSecure,
		// Forms are posted from the static site, which has no token.
		Skipper: func(c echo.Context) bool {
			return a.isFormPath(c.Request().URL.Path)
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return c.String(http.StatusForbidden, "Forbidden")
		},
	}))

	e.Use(a.cacheControl)
}

// trailingSlash enforces the configured trailing-slash policy. A zero
// redirect code rewrites the request path instead of redirecting.
func (a *App) trailingSlash(code int, skip middleware.Skipper) echo.MiddlewareFunc {
	cfg := middleware.TrailingSlashConfig{RedirectCode: code, Skipper: skip}
	if a.Links.Config().Site.TrailingSlash {
		return middleware.AddTrailingSlashWithConfig(cfg)
	}
	return middleware.RemoveTrailingSlashWithConfig(cfg)
}

func (a *App) isFilePath(path string) bool {
	return strings.HasPrefix(path, a.file("public")+"/") ||
		path == a.file("sitemap.xml") || path == a.file("feed.xml") ||
		path == a.file("robots.txt") || path == a.file("favicon.svg") ||
		path == a.file("metrics")
}

func (a *App) isFormPath(path string) bool {
	return strings.HasPrefix(path, a.file("forms")+"/")
}

func (a *App) cacheControl(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := c.Request().URL.Path
		h := c.Response().Header()
		switch {
		case strings.HasPrefix(path, a.file("public")+"/"):
			h.Set("Cache-Control", "public, max-age=31536000, immutable")
		case path == a.file("sitemap.xml") || path == a.file("feed.xml") || path == a.file("robots.txt"):
			h.Set("Cache-Control", "public, max-age=86400")
		default:
			h.Set("Cache-Control", "no-store")
		}
		return next(c)
	}
}

func (a *App) newSessionStore() *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
	store.Options = &sessions.Options{
		Path:     a.Links.Base(),
		HttpOnly: true,
		MaxAge:   60 * 60 * 12,
		SameSite: http.SameSiteLaxMode,
		Secure:   a.Config.CookieSecure,
	}
	return store
}

// IsAdmin checks if the current session is authenticated.
func IsAdmin(c echo.Context) bool {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return false
	}
	auth, ok := sess.Values["authenticated"].(bool)
	return ok && auth
}

func setAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Values["authenticated"] = true
	return sess.Save(c.Request(), c.Response())
}

func clearAdminSession(c echo.Context) error {
	sess, err := session.Get(sessionName, c)
	if err != nil {
		return err
	}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CsrfToken extracts the CSRF token from the Echo context.
func CsrfToken(c echo.Context) string {
	token, _ := c.Get(middleware.DefaultCSRFConfig.ContextKey).(string)
	return token
}
