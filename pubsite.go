// Package pubsite is the dynamic companion of a statically generated site.
// It builds permalinks for the site's pages, accepts form submissions and
// forwards them by email through Mailgun, keeps a page index for the sitemap
// and RSS feed, and serves a small admin for pages and submissions.
//
// Users provide their own templ templates via the ViewFuncs struct; pubsite
// owns the handlers, middleware and storage.
package pubsite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eringen/pubsite/forms"
	"github.com/eringen/pubsite/permalink"
)

// ViewFuncs holds user-provided templ components rendered by the admin and
// error handlers.
type ViewFuncs struct {
	AdminLogin      func(showError bool, csrfToken string) templ.Component
	AdminDashboard  func(pages []Page, submissions []Submission, message string, csrfToken string) templ.Component
	AdminPageForm   func(page Page, csrfToken string) templ.Component
	AdminSubmission func(sub Submission, csrfToken string) templ.Component
	NotFound        func() templ.Component
	ServerError     func() templ.Component
}

// App is the central pubsite application. It wires together the store,
// cache, permalink builder, form handler, middleware and templates.
type App struct {
	Config   SiteConfig
	Echo     *echo.Echo
	Store    *Store
	Cache    *PageCache
	Links    *permalink.Builder
	Forms    forms.Handler
	Metrics  *forms.Metrics
	Registry *prometheus.Registry
	Logger   *slog.Logger
	Views    ViewFuncs

	loginLimiter *Limiter
	formLimiter  *Limiter
	customRoutes []func(*App)
	staticDir    string
}

// New creates a new App with the given configuration and view functions.
func New(cfg SiteConfig, views ViewFuncs, opts ...Option) *App {
	cfg.setDefaults()
	views.setDefaults()

	a := &App{
		Config:    cfg,
		Echo:      echo.New(),
		Views:     views,
		Logger:    slog.Default(),
		staticDir: "public",
	}
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Setup validates the configuration and initializes the database, cache,
// form delivery, middleware and routes. Start calls it; tests call it
// directly and drive a.Echo with httptest.
func (a *App) Setup() error {
	if a.Config.AdminPassword == "" {
		return fmt.Errorf("pubsite: AdminPassword is required")
	}
	if a.Config.SessionSecret == "" {
		return fmt.Errorf("pubsite: SessionSecret is required")
	}

	links, err := permalink.NewBuilder(a.Config.Links)
	if err != nil {
		return fmt.Errorf("pubsite: links: %w", err)
	}
	a.Links = links

	store, err := NewStore(a.Config.DatabasePath)
	if err != nil {
		return fmt.Errorf("pubsite: init store: %w", err)
	}
	a.Store = store

	a.Cache = NewPageCache(a.Store, a.Config.PageCacheTTL)

	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
	}
	a.Metrics = forms.NewMetrics(a.Registry)

	if a.Forms == nil {
		h, err := a.newMailHandler()
		if err != nil {
			return err
		}
		a.Forms = h
	}

	a.loginLimiter = NewLimiter(5, time.Minute)
	a.formLimiter = NewLimiter(a.Config.FormRateLimit, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start runs Setup and serves HTTP until the server is shut down.
func (a *App) Start() error {
	if err := a.Setup(); err != nil {
		return err
	}
	a.Logger.Info("pubsite listening", "addr", a.Config.Addr, "base", a.Links.Base(), "forms", len(a.Config.Forms))
	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) newMailHandler() (forms.Handler, error) {
	if a.Config.MailgunDomain == "" || a.Config.MailgunAPIKey == "" {
		a.Logger.Warn("mailgun is not configured, form submissions are stored but not emailed")
		return forms.HandlerFunc(func(_ context.Context, formName string, data forms.Fields, attachments []forms.Attachment, _ forms.FormConfig) error {
			a.Logger.Info("form submission not emailed", "form", formName, "fields", len(data), "attachments", len(attachments))
			a.Metrics.Observe(formName, forms.OutcomeSkipped)
			return forms.ErrNoTransport
		}), nil
	}
	sender, err := forms.NewMailgunSender(forms.MailgunConfig{
		Domain: a.Config.MailgunDomain,
		APIKey: a.Config.MailgunAPIKey,
		Region: a.Config.MailgunRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("pubsite: %w", err)
	}
	return forms.NewMailHandler(sender,
		forms.WithFrom(a.Config.MailFrom),
		forms.WithLogger(a.Logger),
		forms.WithMetrics(a.Metrics),
	), nil
}

// page returns the route path for a page-like endpoint (trailing-slash policy applies).
func (a *App) page(segment string) string {
	return a.Links.Permalink(segment, "")
}

// file returns the route path for a file-like endpoint.
func (a *App) file(segment string) string {
	return a.Links.Asset(segment)
}

func (a *App) setupRoutes() {
	e := a.Echo

	e.Static(a.file("public"), a.staticDir)
	e.GET(a.file("favicon.svg"), a.handleFavicon)
	e.GET(a.file("robots.txt"), a.handleRobots)
	e.GET(a.file("sitemap.xml"), a.handleSitemap)
	e.GET(a.file("feed.xml"), a.handleFeed)
	if a.Config.MetricsEnabled {
		e.GET(a.file("metrics"), echo.WrapHandler(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	}

	e.POST(a.page("forms/:name"), a.handleFormSubmit)

	e.GET(a.page("admin"), a.handleAdmin)
	e.POST(a.page("admin/login"), a.handleAdminLogin)
	e.POST(a.page("admin/logout"), a.handleAdminLogout)
	e.POST(a.page("admin/pages"), a.handleAdminSavePage)
	e.GET(a.page("admin/pages/:slug"), a.handleAdminPage)
	e.DELETE(a.page("admin/pages/:slug"), a.handleAdminDeletePage)
	e.GET(a.page("admin/submissions/:id"), a.handleAdminSubmission)
	e.DELETE(a.page("admin/submissions/:id"), a.handleAdminDeleteSubmission)
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.loginLimiter != nil {
		a.loginLimiter.Stop()
	}
	if a.formLimiter != nil {
		a.formLimiter.Stop()
	}
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}
