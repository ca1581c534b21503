package ipc

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/ggcore/gg-core/internal/errs"
)

// sessionToken is an opaque bearer string minted on a successful
// handshake.
type sessionToken string

type sessionEntry struct {
	expiresAt         time.Time
	activeConnections int
}

// SessionAuth validates bearer tokens by constant-time comparison and
// tracks the sessions it mints, including per-session connection
// concurrency (spec §4.9).
type SessionAuth struct {
	secret         []byte
	sessionTimeout time.Duration
	maxPerSession  int

	mu       sync.Mutex
	sessions map[sessionToken]*sessionEntry
}

// NewSessionAuth creates a SessionAuth comparing bearer tokens against
// secret, minting sessions valid for sessionTimeout and bounding each to
// maxPerSession concurrent connections.
func NewSessionAuth(secret []byte, sessionTimeout time.Duration, maxPerSession int) *SessionAuth {
	return &SessionAuth{
		secret:         secret,
		sessionTimeout: sessionTimeout,
		maxPerSession:  maxPerSession,
		sessions:       make(map[sessionToken]*sessionEntry),
	}
}

// Authenticate compares token against the configured secret in constant
// time and, on success, mints and returns a fresh session id.
func (a *SessionAuth) Authenticate(token string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(token), a.secret) != 1 {
		return "", &errs.AuthFailure{Reason: "bearer token mismatch"}
	}
	sid, err := newSessionID()
	if err != nil {
		return "", &errs.Internal{Reason: "failed to mint session id: " + err.Error()}
	}

	a.mu.Lock()
	a.sessions[sessionToken(sid)] = &sessionEntry{expiresAt: time.Now().Add(a.sessionTimeout)}
	a.mu.Unlock()

	return sid, nil
}

func newSessionID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf[:]), nil
}

// Validate reports whether session is a known, unexpired session id.
func (a *SessionAuth) Validate(session string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.sessions[sessionToken(session)]
	if !ok {
		return &errs.NotFound{Kind: "session", ID: session}
	}
	if time.Now().After(entry.expiresAt) {
		delete(a.sessions, sessionToken(session))
		return &errs.AuthFailure{Reason: "session expired"}
	}
	return nil
}

// TrackConnection increments session's connection count, failing if it
// would exceed the per-session concurrency bound.
func (a *SessionAuth) TrackConnection(session string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.sessions[sessionToken(session)]
	if !ok {
		return &errs.NotFound{Kind: "session", ID: session}
	}
	if entry.activeConnections >= a.maxPerSession {
		return &errs.QueueFull{Current: int64(entry.activeConnections), Max: int64(a.maxPerSession)}
	}
	entry.activeConnections++
	return nil
}

// ReleaseConnection decrements session's connection count.
func (a *SessionAuth) ReleaseConnection(session string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.sessions[sessionToken(session)]; ok && entry.activeConnections > 0 {
		entry.activeConnections--
	}
}

// SessionCount returns the number of sessions currently tracked
// (including expired-but-not-yet-evicted ones).
func (a *SessionAuth) SessionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}
