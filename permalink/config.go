package permalink

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/text/language"
)

// SiteConfig describes where the site is served from.
type SiteConfig struct {
	Site          string `yaml:"site"          env:"SITE_URL"`            // absolute origin, e.g. "https://example.com" (optional)
	Base          string `yaml:"base"          env:"SITE_BASE"`           // mount path (default "/")
	TrailingSlash bool   `yaml:"trailingSlash" env:"SITE_TRAILING_SLASH"` // generated paths end with "/"
}

// I18nConfig describes the default language and locale routing.
type I18nConfig struct {
	Language      string   `yaml:"language"      env:"SITE_LANGUAGE"`       // default locale (default "en")
	TextDirection string   `yaml:"textDirection" env:"SITE_TEXT_DIRECTION"` // "ltr" or "rtl" (default "ltr")
	Routing       bool     `yaml:"routing"       env:"SITE_I18N_ROUTING"`   // prefix non-default locales
	Locales       []string `yaml:"locales"       env:"SITE_LOCALES"`        // allowed locales; empty allows any valid tag
}

// BlogConfig holds the path segments used for blog content.
type BlogConfig struct {
	Base         string `yaml:"base"`         // default "blog"
	CategoryBase string `yaml:"categoryBase"` // default "category"
	TagBase      string `yaml:"tagBase"`      // default "tag"
	PostPattern  string `yaml:"postPattern"`  // default "%blog%/%slug%"
}

// Config is the complete, read-only input to a Builder.
type Config struct {
	Site SiteConfig `yaml:"site"`
	I18n I18nConfig `yaml:"i18n"`
	Blog BlogConfig `yaml:"blog"`
}

// Provider supplies configuration to a Builder. Tests inject a Static value
// instead of swapping package state.
type Provider interface {
	Config() Config
}

// Static is a Provider returning a fixed Config.
type Static Config

// Config implements Provider.
func (s Static) Config() Config { return Config(s) }

const (
	DirLTR = "ltr"
	DirRTL = "rtl"
)

func (c *Config) setDefaults() {
	if strings.TrimSpace(c.Site.Base) == "" {
		c.Site.Base = "/"
	}
	if strings.TrimSpace(c.I18n.Language) == "" {
		c.I18n.Language = "en"
	}
	if c.I18n.TextDirection == "" {
		c.I18n.TextDirection = DirLTR
	}
	if c.Blog.Base == "" {
		c.Blog.Base = "blog"
	}
	if c.Blog.CategoryBase == "" {
		c.Blog.CategoryBase = "category"
	}
	if c.Blog.TagBase == "" {
		c.Blog.TagBase = "tag"
	}
	if c.Blog.PostPattern == "" {
		c.Blog.PostPattern = "%blog%/%slug%"
	}
}

func (c *Config) validate() error {
	if c.Site.Site != "" {
		u, err := url.Parse(c.Site.Site)
		if err != nil {
			return fmt.Errorf("permalink: invalid site %q: %w", c.Site.Site, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("permalink: site %q must be an absolute URL", c.Site.Site)
		}
	}
	switch c.I18n.TextDirection {
	case DirLTR, DirRTL:
	default:
		return fmt.Errorf("permalink: text direction %q must be %q or %q", c.I18n.TextDirection, DirLTR, DirRTL)
	}
	if _, err := language.Parse(c.I18n.Language); err != nil {
		return fmt.Errorf("permalink: default language %q: %w", c.I18n.Language, err)
	}
	for _, l := range c.I18n.Locales {
		if _, err := language.Parse(l); err != nil {
			return fmt.Errorf("permalink: locale %q: %w", l, err)
		}
	}
	return nil
}

// normalizeLocale turns a BCP 47 tag into the lowercase form used in paths.
// Unparseable input yields "".
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	tag, err := language.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(tag.String())
}
