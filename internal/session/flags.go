package session

import (
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Flag names for per-session client markers.
const (
	FlagRouted          = "routed"
	FlagPasswordSkipped = "password_skipped"
)

type flagKey struct {
	name string
	user uuid.UUID
}

// Flags holds client-side markers tied to the current session.
// The monitor clears them when the session goes away.
type Flags struct {
	mu  sync.Mutex
	set map[flagKey]struct{}
}

// NewFlags returns an empty flag set.
func NewFlags() *Flags {
	return &Flags{set: map[flagKey]struct{}{}}
}

// Mark sets the flag and reports whether it was newly set.
func (f *Flags) Mark(name string, user uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := flagKey{name: name, user: user}
	if _, ok := f.set[k]; ok {
		return false
	}
	f.set[k] = struct{}{}
	return true
}

// Has reports whether the flag is set.
func (f *Flags) Has(name string, user uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.set[flagKey{name: name, user: user}]
	return ok
}

// Clear drops every flag.
func (f *Flags) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.set)
}
