package domain

import "strings"

// MatchMode is how a keyword rule is evaluated.
type MatchMode string

const (
	MatchContain MatchMode = "contain"
	MatchExact   MatchMode = "exact"
	MatchRegex   MatchMode = "regex"
)

// ParseMatchMode maps stored match types; anything unrecognized is a
// substring rule.
func ParseMatchMode(raw string) MatchMode {
	switch MatchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case MatchExact:
		return MatchExact
	case MatchRegex, "regexp":
		return MatchRegex
	default:
		return MatchContain
	}
}

// KeywordRule is a single matching criterion.
type KeywordRule struct {
	ID      int64
	Pattern string
	Mode    MatchMode
	Active  bool
}
