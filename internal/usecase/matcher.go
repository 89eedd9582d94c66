package usecase

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"TenderRadar/internal/domain"
)

// Matcher evaluates keyword rules. Compiled regular expressions are cached
// per pattern; a pattern that does not compile never matches.
type Matcher struct {
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Matcher{logger: logger, cache: map[string]*regexp.Regexp{}}
}

// Match returns the active rules that match title and content, in rule order.
func (m *Matcher) Match(rules []domain.KeywordRule, title, content string) []domain.KeywordRule {
	text := title + " " + content
	var matched []domain.KeywordRule
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		pattern := strings.TrimSpace(rule.Pattern)
		if pattern == "" {
			continue
		}
		if m.matches(rule.Mode, pattern, text) {
			matched = append(matched, rule)
		}
	}
	return matched
}

func (m *Matcher) matches(mode domain.MatchMode, pattern, text string) bool {
	switch mode {
	case domain.MatchExact:
		return text == pattern
	case domain.MatchRegex:
		re := m.compile(pattern)
		return re != nil && re.MatchString(text)
	default:
		return strings.Contains(text, pattern)
	}
}

func (m *Matcher) compile(pattern string) *regexp.Regexp {
	m.mu.Lock()
	defer m.mu.Unlock()
	if re, ok := m.cache[pattern]; ok {
		return re
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		m.logger.Warn("invalid keyword pattern", "pattern", pattern, "error", err)
		re = nil
	}
	m.cache[pattern] = re
	return re
}
