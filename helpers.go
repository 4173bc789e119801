package pubsite

import (
	"encoding/json"
	"strings"
	"time"
)

// Slugify converts a title to a URL-safe slug.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// PageURL returns the canonical URL of p. Posts follow the blog post
// pattern; everything else is addressed by its slug.
func (a *App) PageURL(p Page) string {
	if p.Kind == KindPost {
		date, _ := time.Parse("2006-01-02", p.Date)
		return a.Links.Absolute(a.Links.Post(p.Slug, date, p.Locale))
	}
	return a.Links.Canonical(p.Slug, p.Locale)
}

// WebsiteJsonLD returns a JSON-LD string for a WebSite schema.
func (a *App) WebsiteJsonLD() string {
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       "WebSite",
		"name":        a.Config.Name,
		"url":         a.Links.Canonical("", ""),
		"description": a.Config.Description,
		"inLanguage":  a.Links.Language(),
	}
	if a.Config.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  a.Config.Author,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// PageJsonLD returns a JSON-LD string for a page: BlogPosting for posts,
// WebPage otherwise.
func (a *App) PageJsonLD(p Page) string {
	pageURL := a.PageURL(p)
	typ := "WebPage"
	if p.Kind == KindPost {
		typ = "BlogPosting"
	}
	data := map[string]interface{}{
		"@context":    "https://schema.org",
		"@type":       typ,
		"headline":    p.Title,
		"description": p.Summary,
		"url":         pageURL,
		"mainEntityOfPage": map[string]string{
			"@type": "WebPage",
			"@id":   pageURL,
		},
	}
	if p.Date != "" {
		data["datePublished"] = p.Date
	}
	if p.Locale != "" {
		data["inLanguage"] = p.Locale
	}
	if a.Config.Author != "" {
		data["author"] = map[string]string{
			"@type": "Person",
			"name":  a.Config.Author,
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	return string(b)
}
