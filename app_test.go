package pubsite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/eringen/pubsite/forms"
	"github.com/eringen/pubsite/permalink"
)

type recordedCall struct {
	form        string
	fields      forms.Fields
	attachments []forms.Attachment
	cfg         forms.FormConfig
}

type recordingHandler struct {
	mu    sync.Mutex
	calls []recordedCall
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, formName string, data forms.Fields, attachments []forms.Attachment, cfg forms.FormConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, recordedCall{formName, data, attachments, cfg})
	return h.err
}

func testConfig(t *testing.T) SiteConfig {
	t.Helper()
	return SiteConfig{
		Name:          "Test Site",
		Description:   "A test site",
		DatabasePath:  filepath.Join(t.TempDir(), "site.db"),
		AdminPassword: "secret",
		SessionSecret: "0123456789abcdef0123456789abcdef",
		Links: permalink.Config{
			Site: permalink.SiteConfig{Site: "https://example.com", TrailingSlash: true},
			I18n: permalink.I18nConfig{Language: "en", Routing: true, Locales: []string{"en", "fr"}},
		},
		Forms: forms.Registry{
			"contact":    {Recipients: []string{"team@example.com"}},
			"newsletter": {},
		},
	}
}

func setupTestApp(t *testing.T, cfg SiteConfig, h forms.Handler) *App {
	t.Helper()
	a := New(cfg, ViewFuncs{},
		WithFormHandler(h),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStaticDir(t.TempDir()),
	)
	if err := a.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func postForm(a *App, path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	return rec
}

func decodeFormResponse(t *testing.T, rec *httptest.ResponseRecorder) formResponse {
	t.Helper()
	var resp formResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestSetupRequiresSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.AdminPassword = ""
	if err := New(cfg, ViewFuncs{}).Setup(); err == nil {
		t.Fatal("expected error without AdminPassword")
	}

	cfg = testConfig(t)
	cfg.SessionSecret = ""
	if err := New(cfg, ViewFuncs{}).Setup(); err == nil {
		t.Fatal("expected error without SessionSecret")
	}

	cfg = testConfig(t)
	cfg.Links.I18n.TextDirection = "sideways"
	if err := New(cfg, ViewFuncs{}).Setup(); err == nil {
		t.Fatal("expected error for invalid links config")
	}
}

func TestFormSubmitDelivers(t *testing.T) {
	h := &recordingHandler{}
	a := setupTestApp(t, testConfig(t), h)

	rec := postForm(a, "/forms/contact/", url.Values{
		"name":  {"Ada"},
		"email": {"ada@example.com"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	resp := decodeFormResponse(t, rec)
	if resp.Status != StatusSent || resp.ID == "" {
		t.Fatalf("response = %+v", resp)
	}

	if len(h.calls) != 1 {
		t.Fatalf("handler called %d times, want 1", len(h.calls))
	}
	call := h.calls[0]
	if call.form != "contact" || call.fields.Get("name") != "Ada" {
		t.Errorf("call = %+v", call)
	}
	if len(call.cfg.Recipients) != 1 {
		t.Errorf("recipients = %v", call.cfg.Recipients)
	}

	sub, err := a.Store.GetSubmission(resp.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Status != StatusSent || sub.Fields.Get("email") != "ada@example.com" {
		t.Errorf("stored submission = %+v", sub)
	}
}

func TestFormSubmitWithoutRecipientsIsStored(t *testing.T) {
	sender := &countingSender{}
	h := forms.NewMailHandler(sender, forms.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	a := setupTestApp(t, testConfig(t), h)

	rec := postForm(a, "/forms/newsletter/", url.Values{"email": {"ada@example.com"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if resp := decodeFormResponse(t, rec); resp.Status != StatusStored {
		t.Errorf("status = %q, want %q", resp.Status, StatusStored)
	}
	if sender.n != 0 {
		t.Errorf("sender called %d times, want 0", sender.n)
	}
}

type countingSender struct{ n int }

func (s *countingSender) Send(context.Context, forms.Message) (string, error) {
	s.n++
	return "id", nil
}

func TestFormSubmitDeliveryFailure(t *testing.T) {
	h := &recordingHandler{err: errors.New("mailgun down")}
	a := setupTestApp(t, testConfig(t), h)

	rec := postForm(a, "/forms/contact/", url.Values{"name": {"Ada"}})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	subs, err := a.Store.ListSubmissions("contact", 10)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 1 || subs[0].Status != StatusFailed || !strings.Contains(subs[0].Error, "mailgun down") {
		t.Errorf("submissions = %+v", subs)
	}
}

func TestFormSubmitUnknownForm(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})
	rec := postForm(a, "/forms/missing/", url.Values{"name": {"Ada"}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFormSubmitHoneypot(t *testing.T) {
	h := &recordingHandler{}
	a := setupTestApp(t, testConfig(t), h)

	rec := postForm(a, "/forms/contact/", url.Values{"name": {"bot"}, "_gotcha": {"spam"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(h.calls) != 0 {
		t.Errorf("handler called %d times for honeypot submission", len(h.calls))
	}
	if subs, _ := a.Store.ListSubmissions("", 10); len(subs) != 0 {
		t.Errorf("honeypot submission stored: %+v", subs)
	}
}

func TestFormSubmitRedirect(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})

	tests := []struct {
		values url.Values
		want   string
	}{
		{url.Values{"_redirect": {"thanks"}}, "/thanks/"},
		{url.Values{"_redirect": {"/thanks"}, "_locale": {"fr"}}, "/fr/thanks/"},
	}
	for _, tt := range tests {
		rec := postForm(a, "/forms/contact/", tt.values)
		if rec.Code != http.StatusSeeOther {
			t.Fatalf("status = %d, want 303", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != tt.want {
			t.Errorf("Location = %q, want %q", got, tt.want)
		}
	}

	for _, target := range []string{
		"https://evil.example/",
		"//evil.example",
		"\\evil.example",
		"/\\evil.example",
		"/\t/evil.example",
		"/\n/evil.example",
		"javascript:alert(1)",
	} {
		rec := postForm(a, "/forms/contact/", url.Values{"_redirect": {target}})
		if rec.Code != http.StatusOK {
			t.Errorf("redirect target %q should be ignored, got status %d (Location %q)",
				target, rec.Code, rec.Header().Get("Location"))
		}
	}
}

func TestLocalTarget(t *testing.T) {
	tests := []struct {
		input string
		ok    bool
	}{
		{"thanks", true},
		{"/thanks?x=1#top", true},
		{"  /thanks  ", true},
		{"", false},
		{"//evil.example", false},
		{"\\evil.example", false},
		{"/\\evil.example", false},
		{"/\t/evil.example", false},
		{"/\x7f", false},
		{"http://evil.example", false},
		{"mailto:a@b.c", false},
	}
	for _, tt := range tests {
		if _, ok := localTarget(tt.input); ok != tt.ok {
			t.Errorf("localTarget(%q) ok = %v, want %v", tt.input, ok, tt.ok)
		}
	}
}

func TestFormSubmitBodyTooLarge(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxUploadSize = 64
	h := &recordingHandler{}
	a := setupTestApp(t, cfg, h)

	rec := postForm(a, "/forms/contact/", url.Values{"message": {strings.Repeat("x", 256)}})
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if len(h.calls) != 0 {
		t.Errorf("handler called %d times for oversized body", len(h.calls))
	}
}

func TestFormSubmitHoneypotWithAttachment(t *testing.T) {
	cfg := testConfig(t)
	cfg.ImageMaxWidth = 10
	h := &recordingHandler{}
	a := setupTestApp(t, cfg, h)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("_gotcha", "spam")
	fw, _ := mw.CreateFormFile("file", "big.png")
	fw.Write(testPNG(t, 40, 20))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/forms/contact/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(h.calls) != 0 {
		t.Errorf("handler called %d times for honeypot submission", len(h.calls))
	}
}

func TestFormSubmitWithoutTransportIsStored(t *testing.T) {
	a := setupTestApp(t, testConfig(t), nil)

	rec := postForm(a, "/forms/contact/", url.Values{"name": {"Ada"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	resp := decodeFormResponse(t, rec)
	if resp.Status != StatusStored {
		t.Errorf("status = %q, want %q", resp.Status, StatusStored)
	}
	sub, err := a.Store.GetSubmission(resp.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Status != StatusStored || sub.Error != "" {
		t.Errorf("stored submission = %+v", sub)
	}
}

func TestFormSubmitTrailingSlashRewrite(t *testing.T) {
	h := &recordingHandler{}
	a := setupTestApp(t, testConfig(t), h)

	rec := postForm(a, "/forms/contact", url.Values{"name": {"Ada"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if len(h.calls) != 1 {
		t.Errorf("handler called %d times, want 1", len(h.calls))
	}
}

func TestFormSubmitUnderBasePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Links.Site.Base = "/site"
	cfg.Links.Site.TrailingSlash = false
	h := &recordingHandler{}
	a := setupTestApp(t, cfg, h)

	rec := postForm(a, "/site/forms/contact", url.Values{"name": {"Ada"}, "_redirect": {"thanks"}})
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303 (body %q)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Location"); got != "/site/thanks" {
		t.Errorf("Location = %q, want %q", got, "/site/thanks")
	}
}

func TestFormSubmitAttachments(t *testing.T) {
	h := &recordingHandler{}
	a := setupTestApp(t, testConfig(t), h)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("name", "Ada")
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	fw.Write([]byte("hello world"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/forms/contact/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %q)", rec.Code, rec.Body.String())
	}
	if len(h.calls) != 1 || len(h.calls[0].attachments) != 1 {
		t.Fatalf("calls = %+v", h.calls)
	}
	att := h.calls[0].attachments[0]
	if att.Filename != "notes.txt" || string(att.Data) != "hello world" {
		t.Errorf("attachment = %s %q", att.Filename, att.Data)
	}
	if h.calls[0].fields.Get("name") != "Ada" {
		t.Errorf("fields = %v", h.calls[0].fields)
	}
}

func TestFormSubmitRateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.FormRateLimit = 1
	a := setupTestApp(t, cfg, &recordingHandler{})

	if rec := postForm(a, "/forms/contact/", url.Values{"name": {"a"}}); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}
	if rec := postForm(a, "/forms/contact/", url.Values{"name": {"b"}}); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
}

func TestSitemapAndFeed(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})
	for _, p := range []Page{
		{Slug: "about", Title: "About", Date: "2024-01-01", Published: true},
		{Slug: "about", Locale: "fr", Title: "À propos", Date: "2024-01-01", Published: true},
		{Slug: "hello", Kind: KindPost, Title: "Hello", Date: "2024-02-01", Summary: "First", Published: true},
		{Slug: "draft", Title: "Draft", Date: "2024-03-01"},
	} {
		if err := a.Store.SavePage(p); err != nil {
			t.Fatalf("SavePage: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("sitemap status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"<loc>https://example.com/</loc>",
		"<loc>https://example.com/fr/</loc>",
		"<loc>https://example.com/about/</loc>",
		"<loc>https://example.com/fr/about/</loc>",
		"<loc>https://example.com/blog/hello/</loc>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("sitemap missing %s:\n%s", want, body)
		}
	}
	if strings.Contains(body, "draft") {
		t.Errorf("sitemap lists unpublished page:\n%s", body)
	}

	req = httptest.NewRequest(http.MethodGet, "/feed.xml", nil)
	rec = httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("feed status = %d", rec.Code)
	}
	feed := rec.Body.String()
	if !strings.Contains(feed, "<link>https://example.com/blog/hello/</link>") {
		t.Errorf("feed missing post link:\n%s", feed)
	}
	if strings.Contains(feed, "<title>About</title>") {
		t.Errorf("feed should only list posts:\n%s", feed)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsEnabled = true
	sender := &countingSender{}
	a := New(cfg, ViewFuncs{},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err := a.Setup(); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	// Swap in a mail handler that reports to the app's metrics.
	a.Forms = forms.NewMailHandler(sender, forms.WithMetrics(a.Metrics),
		forms.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	postForm(a, "/forms/contact/", url.Values{"name": {"Ada"}})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `pubsite_form_submissions_total{form="contact",outcome="sent"} 1`) {
		t.Errorf("metrics body missing counter:\n%s", rec.Body.String())
	}
}

func TestAdminGetRedirectsToTrailingSlash(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("status = %d, want 301", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/admin/" {
		t.Errorf("Location = %q, want /admin/", got)
	}
}

func TestAdminLoginFlow(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})

	req := httptest.NewRequest(http.MethodGet, "/admin/", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Admin login") {
		t.Fatalf("login page: status %d body %q", rec.Code, rec.Body.String())
	}
	var csrf *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "_csrf" {
			csrf = c
		}
	}
	if csrf == nil {
		t.Fatal("no _csrf cookie set")
	}

	login := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"password": {password}, "_csrf": {csrf.Value}}
		req := httptest.NewRequest(http.MethodPost, "/admin/login/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.AddCookie(csrf)
		rec := httptest.NewRecorder()
		a.Echo.ServeHTTP(rec, req)
		return rec
	}

	if rec := login("wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}

	rec = login("secret")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, want 303", rec.Code)
	}
	var sess *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionName {
			sess = c
		}
	}
	if sess == nil {
		t.Fatal("no session cookie after login")
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/", nil)
	req.AddCookie(sess)
	rec = httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Dashboard") {
		t.Fatalf("dashboard: status %d body %q", rec.Code, rec.Body.String())
	}
}

func TestAdminRequiresSession(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})

	req := httptest.NewRequest(http.MethodGet, "/admin/submissions/abc/", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/admin/" {
		t.Errorf("Location = %q, want /admin/", got)
	}
}

func TestNotFoundRendersView(t *testing.T) {
	a := setupTestApp(t, testConfig(t), &recordingHandler{})

	req := httptest.NewRequest(http.MethodGet, "/nope/", nil)
	rec := httptest.NewRecorder()
	a.Echo.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Not found") {
		t.Fatalf("status %d body %q", rec.Code, rec.Body.String())
	}
}
