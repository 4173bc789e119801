package pubsite

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/eringen/pubsite/forms"
	"github.com/eringen/pubsite/permalink"
)

// SiteConfig holds all configuration for a pubsite instance.
type SiteConfig struct {
	Name        string `yaml:"name"        env:"SITE_NAME"`        // Site name (default "Site")
	Description string `yaml:"description" env:"SITE_DESCRIPTION"` // RSS and JSON-LD description
	Author      string `yaml:"author"      env:"SITE_AUTHOR"`

	Links permalink.Config `yaml:"links"`
	Forms forms.Registry   `yaml:"forms"`

	Addr         string `yaml:"addr"     env:"ADDR"`          // Listen address (default ":3000")
	DatabasePath string `yaml:"database" env:"DATABASE_PATH"` // SQLite path (default "data/site.db")

	AdminPassword string `yaml:"-" env:"ADMIN_PASSWORD"` // Required: admin login password
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"` // Required: session encryption secret
	CookieSecure  bool   `yaml:"cookieSecure" env:"COOKIE_SECURE"`

	MailgunDomain string `yaml:"mailgunDomain" env:"MAILGUN_DOMAIN"`
	MailgunAPIKey string `yaml:"-"             env:"MAILGUN_API_KEY"`
	MailgunRegion string `yaml:"mailgunRegion" env:"MAILGUN_REGION"`
	MailFrom      string `yaml:"mailFrom"      env:"MAIL_FROM"` // default sender for forms without one

	MaxUploadSize   int64         `yaml:"maxUploadSize"   env:"MAX_UPLOAD_SIZE"`   // bytes per request (default 10MB)
	ImageMaxWidth   int           `yaml:"imageMaxWidth"   env:"IMAGE_MAX_WIDTH"`   // downscale image attachments wider than this (0 keeps originals)
	FormRateLimit   int           `yaml:"formRateLimit"   env:"FORM_RATE_LIMIT"`   // submissions per IP per minute (default 10)
	PageCacheTTL    time.Duration `yaml:"pageCacheTTL"    env:"PAGE_CACHE_TTL"`    // default 5min
	MetricsEnabled  bool          `yaml:"metrics"         env:"METRICS_ENABLED"`   // expose /metrics
	CORSAllowOrigin []string      `yaml:"corsAllowOrigin" env:"CORS_ALLOW_ORIGIN"` // origins allowed to post forms (default: links.site.site)
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Site"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/site.db"
	}
	if c.MaxUploadSize == 0 {
		c.MaxUploadSize = 10 << 20
	}
	if c.FormRateLimit == 0 {
		c.FormRateLimit = 10
	}
	if c.PageCacheTTL == 0 {
		c.PageCacheTTL = 5 * time.Minute
	}
	if len(c.CORSAllowOrigin) == 0 && c.Links.Site.Site != "" {
		c.CORSAllowOrigin = []string{c.Links.Site.Site}
	}
}

// LoadConfig reads the YAML file at path (a missing file is allowed), then
// applies environment overrides. Variables from envFiles are loaded first
// and never override the process environment.
func LoadConfig(path string, envFiles ...string) (SiteConfig, error) {
	var cfg SiteConfig
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("pubsite: load %s: %w", f, err)
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("pubsite: read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("pubsite: parse %s: %w", path, err)
			}
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("pubsite: environment: %w", err)
	}
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback runs after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithFormHandler replaces the Mailgun-backed form handler.
func WithFormHandler(h forms.Handler) Option {
	return func(a *App) {
		a.Forms = h
	}
}

// WithLogger sets the application logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		a.Logger = l
	}
}

// WithRegistry sets the Prometheus registry used for metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *App) {
		a.Registry = reg
	}
}
