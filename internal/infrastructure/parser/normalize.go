package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"TenderRadar/internal/domain"
)

var (
	fullDateExpr  = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	shortDateExpr = regexp.MustCompile(`(\d{1,2})[-/](\d{1,2})`)
)

// NormalizeURL turns a listing link into an absolute URL against base.
// Protocol-relative links are pinned to https. Script pseudo-links and links
// that cannot be resolved yield "".
func NormalizeURL(link, base string) string {
	link = strings.TrimSpace(link)
	switch {
	case link == "", strings.HasPrefix(link, "#"):
		return ""
	case strings.HasPrefix(strings.ToLower(link), "javascript:"):
		return ""
	case strings.HasPrefix(link, "//"):
		return "https:" + link
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return link
	}

	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil || baseURL.Host == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// ParseDate best-effort parses listing date text into YYYY-MM-DD. A missing
// year defaults to the year of now. Unparseable input yields "".
func ParseDate(text string, now time.Time) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	if m := fullDateExpr.FindStringSubmatch(text); m != nil {
		return formatDate(m[1], m[2], m[3])
	}
	if m := shortDateExpr.FindStringSubmatch(text); m != nil {
		return formatDate(strconv.Itoa(now.Year()), m[1], m[2])
	}
	return ""
}

func formatDate(year, month, day string) string {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return ""
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return ""
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// epochDate converts epoch seconds or milliseconds into a calendar date.
func epochDate(value int64, loc *time.Location) string {
	switch {
	case value <= 0:
		return ""
	case value >= 1e11:
		return time.UnixMilli(value).In(loc).Format(domain.DateLayout)
	default:
		return time.Unix(value, 0).In(loc).Format(domain.DateLayout)
	}
}
