package domain

import "time"

// Session identifies a chat user across requests without authenticating them.
type Session struct {
	Token     string    `json:"token"`
	UserID    UserID    `json:"user_id"`
	Nick      string    `json:"nick"`
	ExpiresAt time.Time `json:"expires_at"`
}

type IdentityMode string

const (
	IdentitySession IdentityMode = "session"
	IdentityOrigin  IdentityMode = "origin"
	IdentityNick    IdentityMode = "nick"
)
