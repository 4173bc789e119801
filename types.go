package pubsite

import (
	"time"

	"github.com/eringen/pubsite/forms"
)

// Page kinds stored in the page index.
const (
	KindPage = "page"
	KindPost = "post"
)

// Page is an entry of the site's page index. Pages drive the sitemap and,
// for posts, the RSS feed.
type Page struct {
	Slug      string
	Locale    string // "" means the default language
	Kind      string // KindPage or KindPost
	Title     string
	Date      string // YYYY-MM-DD
	Summary   string
	Published bool
}

// Submission statuses.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusStored  = "stored" // form has no recipients
	StatusFailed  = "failed"
)

// Submission is a stored form submission.
type Submission struct {
	ID          string
	Form        string
	Fields      forms.Fields
	Attachments []string
	RemoteIP    string
	Status      string
	Error       string
	CreatedAt   time.Time
}
