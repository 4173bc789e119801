package pubsite

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pubsite/forms"
)

// Control fields understood by the form endpoint.
const (
	fieldHoneypot = "_gotcha"
	fieldRedirect = "_redirect"
	fieldLocale   = "_locale"
)

type formResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
}

func (a *App) handleFormSubmit(c echo.Context) error {
	name := c.Param("name")
	cfg, err := a.Config.Forms.Lookup(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown form")
	}
	log := a.Logger.With("form", name, "ip", c.RealIP())

	if !a.formLimiter.Allow(c.RealIP()) {
		a.Metrics.Observe(name, forms.OutcomeRejected)
		log.Warn("form rate limit exceeded")
		return c.String(http.StatusTooManyRequests, "Too many submissions. Try again later.")
	}

	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, a.Config.MaxUploadSize)
	values, err := c.FormParams()
	if err != nil {
		return bodyError(err, "invalid form body")
	}
	fields := forms.Fields(values)

	// Bots fill the hidden honeypot field; answer as if it worked.
	if strings.TrimSpace(fields.Get(fieldHoneypot)) != "" {
		a.Metrics.Observe(name, forms.OutcomeRejected)
		log.Debug("honeypot triggered, submission dropped")
		return a.formReply(c, fields, formResponse{Status: StatusSent})
	}

	var attachments []forms.Attachment
	if strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		mf, err := c.MultipartForm()
		if err != nil {
			return bodyError(err, "invalid multipart body")
		}
		attachments, err = readAttachments(mf, a.Config.ImageMaxWidth)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid attachment").SetInternal(err)
		}
	}

	sub := Submission{
		ID:          uuid.NewString(),
		Form:        name,
		Fields:      visibleFields(fields),
		Attachments: attachmentNames(attachments),
		RemoteIP:    c.RealIP(),
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := a.Store.SaveSubmission(sub); err != nil {
		return err
	}

	status := StatusSent
	if !cfg.HasRecipients() {
		status = StatusStored
	}
	err = a.Forms.Handle(req.Context(), name, fields, attachments, cfg)
	switch {
	case errors.Is(err, forms.ErrNoTransport):
		status = StatusStored
	case err != nil:
		log.Error("form delivery failed", "id", sub.ID, "error", err)
		if serr := a.Store.SetSubmissionStatus(sub.ID, StatusFailed, err.Error()); serr != nil {
			log.Error("record submission status", "id", sub.ID, "error", serr)
		}
		return echo.NewHTTPError(http.StatusBadGateway, "submission could not be delivered").SetInternal(err)
	}
	if err := a.Store.SetSubmissionStatus(sub.ID, status, ""); err != nil {
		return err
	}
	return a.formReply(c, fields, formResponse{ID: sub.ID, Status: status})
}

// formReply redirects to the site-relative _redirect target when given,
// otherwise answers with JSON. Targets that could leave the site are
// ignored.
func (a *App) formReply(c echo.Context, fields forms.Fields, resp formResponse) error {
	if target, ok := localTarget(fields.Get(fieldRedirect)); ok {
		return c.Redirect(http.StatusSeeOther, a.Links.Permalink(target, fields.Get(fieldLocale)))
	}
	return c.JSON(http.StatusOK, resp)
}

// localTarget accepts only plain paths. Browsers read a backslash as a
// slash and drop tabs and newlines, so those are refused along with anything
// carrying a scheme or host.
func localTarget(raw string) (string, bool) {
	target := strings.TrimSpace(raw)
	if target == "" || strings.ContainsRune(target, '\\') {
		return "", false
	}
	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return "", false
		}
	}
	if strings.HasPrefix(target, "//") {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return "", false
	}
	return target, true
}

// bodyError maps a request body failure to 413 when the size limit was
// hit and 400 otherwise.
func bodyError(err error, msg string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusBadRequest, msg).SetInternal(err)
}

func visibleFields(f forms.Fields) forms.Fields {
	out := make(forms.Fields, len(f))
	for _, k := range f.Keys() {
		out[k] = f[k]
	}
	return out
}

func (a *App) handleSitemap(c echo.Context) error {
	pages, err := a.Cache.ListPages("")
	if err != nil {
		return err
	}
	return a.renderSitemap(c, pages)
}

func (a *App) handleFeed(c echo.Context) error {
	posts, err := a.Cache.ListPages(KindPost)
	if err != nil {
		return err
	}
	return a.renderRSS(c, posts)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	return c.File(a.staticDir + "/robots.txt")
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	ok := errors.As(err, &he)
	if ok && he.Code == http.StatusNotFound && !a.isFormPath(c.Request().URL.Path) {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}
	if code == http.StatusInternalServerError {
		a.Logger.Error("server error", "uri", c.Request().RequestURI, "error", err)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
