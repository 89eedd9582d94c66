package domain

import "time"

// Credential is a token and/or cookie harvested for a source family.
type Credential struct {
	Family     string    `json:"-"`
	Cookie     string    `json:"cookie"`
	Token      string    `json:"token,omitempty"`
	CapturedAt time.Time `json:"capturedAt,omitzero"`
	// Origin tells where the value came from (env, memory, file, redis).
	Origin string `json:"-"`
}

// Empty reports whether neither token nor cookie is set.
func (c Credential) Empty() bool {
	return c.Cookie == "" && c.Token == ""
}
