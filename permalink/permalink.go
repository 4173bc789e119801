// Package permalink builds canonical site-relative paths and absolute URLs
// from a logical page path, honouring the site's base path, locale prefixes
// and trailing-slash policy.
//
// A Builder is immutable after construction and safe for concurrent use.
package permalink

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the permalink family used by Builder.For.
type Kind int

const (
	KindPage Kind = iota
	KindHome
	KindBlog
	KindPost
	KindCategory
	KindTag
	KindAsset
)

var kindNames = [...]string{"page", "home", "blog", "post", "category", "tag", "asset"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind returns the Kind named s. The empty string is KindPage.
func ParseKind(s string) (Kind, error) {
	if s == "" {
		return KindPage, nil
	}
	for i, name := range kindNames {
		if strings.EqualFold(s, name) {
			return Kind(i), nil
		}
	}
	return KindPage, fmt.Errorf("permalink: unknown kind %q", s)
}

// Builder produces permalinks for one site configuration.
type Builder struct {
	cfg      Config
	site     string // origin without trailing slash
	base     string // base without surrounding slashes
	defLang  string
	locales  map[string]struct{}
	routing  bool
	trailing bool
}

// NewBuilder validates cfg and returns a Builder for it.
func NewBuilder(cfg Config) (*Builder, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := &Builder{
		cfg:      cfg,
		site:     strings.TrimRight(strings.TrimSpace(cfg.Site.Site), "/"),
		base:     strings.Trim(collapseSlashes(strings.TrimSpace(cfg.Site.Base)), "/"),
		defLang:  normalizeLocale(cfg.I18n.Language),
		routing:  cfg.I18n.Routing,
		trailing: cfg.Site.TrailingSlash,
	}
	if len(cfg.I18n.Locales) > 0 {
		b.locales = make(map[string]struct{}, len(cfg.I18n.Locales))
		for _, l := range cfg.I18n.Locales {
			b.locales[normalizeLocale(l)] = struct{}{}
		}
	}
	return b, nil
}

// NewBuilderFrom reads the configuration from p once and builds a Builder.
func NewBuilderFrom(p Provider) (*Builder, error) {
	return NewBuilder(p.Config())
}

// MustBuilder is like NewBuilder but panics on invalid configuration.
func MustBuilder(cfg Config) *Builder {
	b, err := NewBuilder(cfg)
	if err != nil {
		panic(err)
	}
	return b
}

// Config returns the defaulted configuration the Builder was created with.
func (b *Builder) Config() Config { return b.cfg }

// Base returns the mount path with a leading slash and no trailing slash
// ("/" when the site is served from the root).
func (b *Builder) Base() string {
	return BuildPath(b.base, "")
}

// Dir returns the text direction of the default language.
func (b *Builder) Dir() string { return b.cfg.I18n.TextDirection }

// Language returns the normalized default locale.
func (b *Builder) Language() string { return b.defLang }

// BuildPath joins base and segment with exactly one slash between them.
// Runs of slashes are collapsed, the result always starts with "/" and
// never ends with one unless it is the root. A rooted segment ("/docs/x")
// that already lives under base is not prefixed again, so the function is
// idempotent on its own output. A relative segment is always content under
// base: BuildPath("docs", "docs") is "/docs/docs".
func BuildPath(base, segment string) string {
	bs := strings.Trim(collapseSlashes(base), "/")
	rooted := strings.HasPrefix(segment, "/")
	s := strings.Trim(collapseSlashes(segment), "/")
	if rooted && bs != "" && (s == bs || strings.HasPrefix(s, bs+"/")) {
		bs = ""
	}
	switch {
	case bs == "" && s == "":
		return "/"
	case bs == "":
		return "/" + s
	case s == "":
		return "/" + bs
	}
	return "/" + bs + "/" + s
}

// Permalink returns the site-relative path for segment. An empty segment is
// the site root. locale is optional; it is prefixed only when routing is
// enabled and it differs from the default language. Absolute URLs are
// returned untouched.
//
// A rooted segment is read as a site path: a leading base and locale are
// recognised and kept, so feeding a permalink back in returns it unchanged.
// A relative segment is always content under the base and locale.
func (b *Builder) Permalink(segment, locale string) string {
	if isExternal(segment) {
		return segment
	}
	p, suffix := splitSuffix(segment)
	rooted := strings.HasPrefix(p, "/")
	p = strings.Trim(collapseSlashes(p), "/")
	if rooted {
		p = b.stripBase(p)
	}
	if loc := b.localePrefix(locale); loc != "" && !(rooted && (p == loc || strings.HasPrefix(p, loc+"/"))) {
		p = loc + "/" + p
	}
	return b.applyTrailing(BuildPath(b.base, p)) + suffix
}

// Canonical returns the absolute URL for segment when the site origin is
// configured, and the same value as Permalink otherwise.
func (b *Builder) Canonical(segment, locale string) string {
	p := b.Permalink(segment, locale)
	if b.site == "" || isExternal(p) {
		return p
	}
	return b.site + p
}

// Absolute prefixes an already built site path with the site origin. Unlike
// Canonical it applies no locale or trailing-slash policy, so it is the way
// to turn Asset, Post or For output into a full URL.
func (b *Builder) Absolute(path string) string {
	if b.site == "" || isExternal(path) {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return b.site + path
}

// Home returns the permalink of the (localized) home page.
func (b *Builder) Home(locale string) string { return b.Permalink("", locale) }

// Blog returns the permalink of the blog index.
func (b *Builder) Blog(locale string) string {
	return b.Permalink(strings.Trim(b.cfg.Blog.Base, "/"), locale)
}

// Post returns the permalink of a blog post according to the post pattern.
// Date tokens expand to nothing when date is zero.
func (b *Builder) Post(slug string, date time.Time, locale string) string {
	var year, month, day string
	if !date.IsZero() {
		year = date.Format("2006")
		month = date.Format("01")
		day = date.Format("02")
	}
	r := strings.NewReplacer(
		"%blog%", b.cfg.Blog.Base,
		"%slug%", strings.Trim(slug, "/"),
		"%year%", year,
		"%month%", month,
		"%day%", day,
	)
	// Patterns are relative to the site so a post never reads as a site path.
	return b.Permalink(strings.TrimLeft(r.Replace(b.cfg.Blog.PostPattern), "/"), locale)
}

// Asset returns a base-prefixed path for a static file. The trailing-slash
// policy does not apply to files.
func (b *Builder) Asset(p string) string {
	if isExternal(p) {
		return p
	}
	path, suffix := splitSuffix(p)
	return BuildPath(b.base, path) + suffix
}

// For dispatches on kind.
func (b *Builder) For(kind Kind, slug, locale string) string {
	switch kind {
	case KindHome:
		return b.Home(locale)
	case KindBlog:
		return b.Blog(locale)
	case KindPost:
		return b.Post(slug, time.Time{}, locale)
	case KindCategory:
		return b.Permalink(join(b.cfg.Blog.CategoryBase, slug), locale)
	case KindTag:
		return b.Permalink(join(b.cfg.Blog.TagBase, slug), locale)
	case KindAsset:
		return b.Asset(slug)
	}
	return b.Permalink(slug, locale)
}

// join concatenates two relative segments without treating either as a
// site path.
func join(dir, slug string) string {
	return strings.Trim(dir, "/") + "/" + strings.Trim(slug, "/")
}

func (b *Builder) stripBase(p string) string {
	if b.base == "" {
		return p
	}
	if p == b.base {
		return ""
	}
	return strings.TrimPrefix(p, b.base+"/")
}

func (b *Builder) localePrefix(locale string) string {
	if !b.routing {
		return ""
	}
	loc := normalizeLocale(locale)
	if loc == "" || loc == b.defLang {
		return ""
	}
	if b.locales != nil {
		if _, ok := b.locales[loc]; !ok {
			return ""
		}
	}
	return loc
}

func (b *Builder) applyTrailing(p string) string {
	if p == "/" {
		return p
	}
	if b.trailing {
		return p + "/"
	}
	return strings.TrimRight(p, "/")
}

func collapseSlashes(s string) string {
	if !strings.Contains(s, "//") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	prev := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// splitSuffix separates a "?query" or "#fragment" tail from the path.
func splitSuffix(s string) (string, string) {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func isExternal(s string) bool {
	for _, prefix := range []string{"http://", "https://", "mailto:", "tel:"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
