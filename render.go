package pubsite

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"

	"github.com/a-h/templ"
	"github.com/labstack/echo/v4"
)

// Render writes a templ component as an HTTP 200 HTML response.
func Render(c echo.Context, cmp templ.Component) error {
	return RenderStatus(c, http.StatusOK, cmp)
}

// RenderStatus writes a templ component with a specific HTTP status code.
func RenderStatus(c echo.Context, code int, cmp templ.Component) error {
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(code)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

// plainView renders a bare HTML document; it backs every ViewFuncs entry
// the user leaves nil.
func plainView(title, body string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<!doctype html><html><head><title>%s</title></head><body><h1>%s</h1>%s</body></html>",
			html.EscapeString(title), html.EscapeString(title), body)
		return err
	})
}

func (v *ViewFuncs) setDefaults() {
	if v.AdminLogin == nil {
		v.AdminLogin = func(showError bool, csrfToken string) templ.Component {
			msg := ""
			if showError {
				msg = "<p>Invalid password.</p>"
			}
			return plainView("Admin login", msg+`<form method="post"><input type="hidden" name="_csrf" value="`+
				html.EscapeString(csrfToken)+`"><input type="password" name="password"><button>Log in</button></form>`)
		}
	}
	if v.AdminDashboard == nil {
		v.AdminDashboard = func(pages []Page, submissions []Submission, message string, _ string) templ.Component {
			return plainView("Dashboard", fmt.Sprintf("<p>%s</p><p>%d pages, %d submissions</p>",
				html.EscapeString(message), len(pages), len(submissions)))
		}
	}
	if v.AdminPageForm == nil {
		v.AdminPageForm = func(p Page, _ string) templ.Component {
			return plainView(p.Title, "<p>"+html.EscapeString(p.Slug)+"</p>")
		}
	}
	if v.AdminSubmission == nil {
		v.AdminSubmission = func(sub Submission, _ string) templ.Component {
			return plainView("Submission "+sub.ID, "<p>"+html.EscapeString(sub.Form+" "+sub.Status)+"</p>")
		}
	}
	if v.NotFound == nil {
		v.NotFound = func() templ.Component { return plainView("Not found", "") }
	}
	if v.ServerError == nil {
		v.ServerError = func() templ.Component { return plainView("Server error", "") }
	}
}
