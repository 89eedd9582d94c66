package ports

import (
	"context"
	"time"

	"TenderRadar/internal/domain"
)

// NoticeRepository is the narrow read/write contract with the persistence
// collaborator.
type NoticeRepository interface {
	GetSources(ctx context.Context) ([]domain.Source, error)
	HasNotice(ctx context.Context, title, url string) (bool, error)
	// AddNotice inserts idempotently. A nil notice with a nil error means the
	// insert conflicted with an existing row and was ignored.
	AddNotice(ctx context.Context, notice domain.Notice) (*domain.Notice, error)
	GetActiveKeywordRules(ctx context.Context) ([]domain.KeywordRule, error)
	GetSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

// SourceAdapter harvests candidate items from one source. Implementations
// never fail: internal errors are logged and produce an empty list.
type SourceAdapter interface {
	Harvest(ctx context.Context, source domain.Source) []domain.CandidateItem
}

// DetailFetcher retrieves the readable body of a detail page, or "" on failure.
type DetailFetcher interface {
	FetchContent(ctx context.Context, url string) string
}

// Messenger delivers one rendered payload to one recipient.
type Messenger interface {
	Send(ctx context.Context, msg Message) SendResult
}

// Message is a single (recipient x template) delivery. Template-based
// providers read Fields; plain-text providers read Summary.
type Message struct {
	Recipient  string
	TemplateID string
	Page       string
	Fields     map[string]string
	Summary    string
}

// SendResult mirrors the provider answer.
type SendResult struct {
	OK      bool
	Message string
}

// CredentialStore holds harvested credentials per source family.
type CredentialStore interface {
	Get(ctx context.Context, family string) (domain.Credential, bool)
	// Override returns explicit env-provided values that bypass the browser.
	Override(family string) (domain.Credential, bool)
	Put(ctx context.Context, cred domain.Credential)
}

// SubscriptionSettings exposes the process-wide subscription switch.
type SubscriptionSettings interface {
	Load(ctx context.Context) domain.SubscriptionSettings
}

// HarvestTarget describes what the browser should open and observe.
type HarvestTarget struct {
	Family string
	// EntryURL is the public page whose scripts call the gated API.
	EntryURL string
	// InterceptPattern is a substring of the gated API URL.
	InterceptPattern string
	// TokenParam is the query parameter that carries the token.
	TokenParam string
	// GatedURL is the gated endpoint requested from inside the page when no
	// token was seen passively.
	GatedURL string
	// CookieURL scopes the cookie jar capture.
	CookieURL string
}

// Capture is what a browser session observed passively and actively.
type Capture struct {
	Token     string
	Cookie    string
	Bodies    [][]byte
	Requests  []string
	Completed time.Time
}

// BrowserRequest is an API call executed inside the page context.
type BrowserRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// BrowserSession is a live, scoped browser session.
type BrowserSession interface {
	Capture() Capture
	Fetch(ctx context.Context, req BrowserRequest) ([]byte, error)
}

// CredentialHarvester opens a browser session, runs fn against it and tears
// it down on every exit path.
type CredentialHarvester interface {
	WithSession(ctx context.Context, target HarvestTarget, fn func(BrowserSession) error) error
}

// Scheduler controls when runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
