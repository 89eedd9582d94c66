package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used for publish dates.
const DateLayout = "2006-01-02"

// CandidateItem is an extracted announcement that has not been deduplicated
// or filtered yet. PublishDate is empty when the source date was unparseable.
type CandidateItem struct {
	Title       string
	URL         string
	PublishDate string
	SourceID    int64
	SourceName  string
}

// Key identifies a candidate inside a single harvest call.
func (c CandidateItem) Key() string {
	return c.Title + "\x00" + c.URL
}

// Notice is a persisted, keyword-matched announcement.
type Notice struct {
	ID          int64
	UID         string
	SourceID    int64
	SourceName  string
	Title       string
	URL         string
	PublishDate string
	Content     string
	TitleHash   string
	ContentHash string
	CrawledAt   time.Time
}

// NewNotice builds a notice from a candidate and its extracted body. The
// publish date defaults to the crawl day.
func NewNotice(item CandidateItem, content string, now time.Time) Notice {
	publish := item.PublishDate
	if publish == "" {
		publish = now.Format(DateLayout)
	}
	body := content
	if body == "" {
		body = item.Title
	}
	titleHash := Fingerprint(item.Title)
	return Notice{
		UID:         fmt.Sprintf("%d_%s", item.SourceID, titleHash),
		SourceID:    item.SourceID,
		SourceName:  item.SourceName,
		Title:       item.Title,
		URL:         item.URL,
		PublishDate: publish,
		Content:     body,
		TitleHash:   titleHash,
		ContentHash: Fingerprint(body),
		CrawledAt:   now,
	}
}

// Fingerprint is the md5 hex digest used for title and content dedup keys.
func Fingerprint(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Subscriber receives notifications for matched notices.
type Subscriber struct {
	OpenID      string
	TemplateIDs []string
}

// SubscriptionSettings is the process-wide subscription switch.
type SubscriptionSettings struct {
	Enabled     bool     `json:"enabled"`
	TemplateIDs []string `json:"tmplIds"`
}

// HarvestStats summarizes one source run.
type HarvestStats struct {
	SourceID   int64
	SourceName string
	Candidates int
	Known      int
	Discarded  int
	Persisted  int
	Dispatched int
}

// Add accumulates counts from another run.
func (s *HarvestStats) Add(other HarvestStats) {
	s.Candidates += other.Candidates
	s.Known += other.Known
	s.Discarded += other.Discarded
	s.Persisted += other.Persisted
	s.Dispatched += other.Dispatched
}

// TrimTitle normalizes whitespace around a title.
func TrimTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}
