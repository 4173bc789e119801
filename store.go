package pubsite

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eringen/pubsite/forms"
)

// Store wraps a SQLite database holding the page index and form submissions.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and runs schema migrations.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the form endpoint write while the admin reads; busy_timeout
	// makes writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS pages (
    slug TEXT NOT NULL,
    locale TEXT NOT NULL DEFAULT '',
    kind TEXT NOT NULL DEFAULT 'page',
    title TEXT NOT NULL,
    date TEXT NOT NULL,
    summary TEXT NOT NULL,
    published INTEGER NOT NULL DEFAULT 1,
    PRIMARY KEY (slug, locale)
);
CREATE TABLE IF NOT EXISTS submissions (
    id TEXT PRIMARY KEY,
    form TEXT NOT NULL,
    fields TEXT NOT NULL,
    attachments TEXT NOT NULL,
    remote_ip TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_created ON submissions (created_at);
`)
	return err
}

const pageColumns = `slug, locale, kind, title, date, summary, published`

func scanPage(row interface{ Scan(...any) error }) (Page, error) {
	var p Page
	var published int
	if err := row.Scan(&p.Slug, &p.Locale, &p.Kind, &p.Title, &p.Date, &p.Summary, &published); err != nil {
		return Page{}, err
	}
	p.Published = published == 1
	return p, nil
}

func (s *Store) queryPages(query string, args ...any) ([]Page, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListPages returns published pages ordered by date descending.
func (s *Store) ListPages() ([]Page, error) {
	return s.queryPages(`SELECT ` + pageColumns + ` FROM pages WHERE published = 1 ORDER BY date DESC, slug`)
}

// ListAllPages returns every page (published and drafts) ordered by date descending.
func (s *Store) ListAllPages() ([]Page, error) {
	return s.queryPages(`SELECT ` + pageColumns + ` FROM pages ORDER BY date DESC, slug`)
}

// GetPage returns a page by slug and locale regardless of published status.
func (s *Store) GetPage(slug, locale string) (Page, error) {
	return scanPage(s.db.QueryRow(`SELECT `+pageColumns+` FROM pages WHERE slug = ? AND locale = ?`, slug, locale))
}

// SavePage upserts a page.
func (s *Store) SavePage(p Page) error {
	if p.Kind == "" {
		p.Kind = KindPage
	}
	published := 0
	if p.Published {
		published = 1
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Slug, p.Locale, p.Kind, p.Title, p.Date, p.Summary, published)
	return err
}

// DeletePage removes a page by slug and locale.
func (s *Store) DeletePage(slug, locale string) error {
	_, err := s.db.Exec(`DELETE FROM pages WHERE slug = ? AND locale = ?`, slug, locale)
	return err
}

const submissionColumns = `id, form, fields, attachments, remote_ip, status, error, created_at`

// Fixed-width so created_at sorts lexically.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanSubmission(row interface{ Scan(...any) error }) (Submission, error) {
	var sub Submission
	var fields, attachments, created string
	if err := row.Scan(&sub.ID, &sub.Form, &fields, &attachments, &sub.RemoteIP, &sub.Status, &sub.Error, &created); err != nil {
		return Submission{}, err
	}
	if err := json.Unmarshal([]byte(fields), &sub.Fields); err != nil {
		return Submission{}, err
	}
	if err := json.Unmarshal([]byte(attachments), &sub.Attachments); err != nil {
		return Submission{}, err
	}
	t, err := time.Parse(createdLayout, created)
	if err != nil {
		return Submission{}, err
	}
	sub.CreatedAt = t
	return sub, nil
}

// SaveSubmission inserts a new submission.
func (s *Store) SaveSubmission(sub Submission) error {
	if sub.Fields == nil {
		sub.Fields = forms.Fields{}
	}
	if sub.Attachments == nil {
		sub.Attachments = []string{}
	}
	fields, err := json.Marshal(sub.Fields)
	if err != nil {
		return err
	}
	attachments, err := json.Marshal(sub.Attachments)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO submissions (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Form, string(fields), string(attachments), sub.RemoteIP, sub.Status, sub.Error,
		sub.CreatedAt.UTC().Format(createdLayout))
	return err
}

// SetSubmissionStatus records the delivery outcome of a submission.
func (s *Store) SetSubmissionStatus(id, status, errText string) error {
	res, err := s.db.Exec(`UPDATE submissions SET status = ?, error = ? WHERE id = ?`, status, errText, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetSubmission returns a submission by id.
func (s *Store) GetSubmission(id string) (Submission, error) {
	return scanSubmission(s.db.QueryRow(`SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id))
}

// ListSubmissions returns the most recent submissions, newest first.
// A non-empty form restricts the result to that form.
func (s *Store) ListSubmissions(form string, limit int) ([]Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if form == "" {
		rows, err = s.db.Query(`SELECT `+submissionColumns+` FROM submissions ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+submissionColumns+` FROM submissions WHERE form = ? ORDER BY created_at DESC LIMIT ?`, form, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubmission removes a submission by id.
func (s *Store) DeleteSubmission(id string) error {
	_, err := s.db.Exec(`DELETE FROM submissions WHERE id = ?`, id)
	return err
}
