package pubsite

import (
	"encoding/xml"
	"net/http"

	"github.com/labstack/echo/v4"
)

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

func (a *App) renderSitemap(c echo.Context, pages []Page) error {
	urls := []sitemapURL{{Loc: a.Links.Canonical("", "")}}
	cfg := a.Links.Config()
	if cfg.I18n.Routing {
		for _, loc := range cfg.I18n.Locales {
			if home := a.Links.Canonical("", loc); home != urls[0].Loc {
				urls = append(urls, sitemapURL{Loc: home})
			}
		}
	}
	for _, p := range pages {
		urls = append(urls, sitemapURL{
			Loc:     a.PageURL(p),
			LastMod: p.Date,
		})
	}
	sitemap := sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml; charset=utf-8")
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Write([]byte(xml.Header))
	return xml.NewEncoder(c.Response()).Encode(sitemap)
}
