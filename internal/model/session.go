package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Session is a live authentication grant as seen by the client.
type Session struct {
	UserID      uuid.UUID
	AccessToken string
	Provider    Provider
	ExpiresAt   time.Time
}

// Federated reports whether the session came from a third-party identity provider.
func (s Session) Federated() bool { return s.Provider.Federated() }

// Valid reports whether the session has not expired at t.
func (s Session) Valid(t time.Time) bool {
	return s.UserID != uuid.Nil && s.AccessToken != "" && t.Before(s.ExpiresAt)
}

// SessionEventKind enumerates provider-level authentication events.
type SessionEventKind string

const (
	EventSignedIn       SessionEventKind = "signed_in"
	EventSignedOut      SessionEventKind = "signed_out"
	EventTokenRefreshed SessionEventKind = "token_refreshed"
	EventUserUpdated    SessionEventKind = "user_updated"
)

// SessionEvent is one notification from the auth provider. Session is nil after sign-out.
type SessionEvent struct {
	Kind    SessionEventKind
	Session *Session
}
