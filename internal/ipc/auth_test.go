package ipc

import (
	"testing"
	"time"
)

func TestSessionAuth_AuthenticateSucceedsWithMatchingToken(t *testing.T) {
	auth := NewSessionAuth([]byte("s3cret"), time.Minute, 4)
	sid, err := auth.Authenticate("s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sid == "" {
		t.Fatal("expected non-empty session id")
	}
	if err := auth.Validate(sid); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestSessionAuth_AuthenticateRejectsBadToken(t *testing.T) {
	auth := NewSessionAuth([]byte("s3cret"), time.Minute, 4)
	if _, err := auth.Authenticate("wrong"); err == nil {
		t.Fatal("expected error for mismatched token")
	}
}

func TestSessionAuth_ValidateRejectsUnknownSession(t *testing.T) {
	auth := NewSessionAuth([]byte("s3cret"), time.Minute, 4)
	if err := auth.Validate("never-minted"); err == nil {
		t.Fatal("expected error for unknown session")
	}
}

func TestSessionAuth_ValidateRejectsExpiredSession(t *testing.T) {
	auth := NewSessionAuth([]byte("s3cret"), -time.Second, 4)
	sid, err := auth.Authenticate("s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := auth.Validate(sid); err == nil {
		t.Fatal("expected error for expired session")
	}
}

func TestSessionAuth_TrackConnectionEnforcesLimit(t *testing.T) {
	auth := NewSessionAuth([]byte("s3cret"), time.Minute, 2)
	sid, _ := auth.Authenticate("s3cret")

	if err := auth.TrackConnection(sid); err != nil {
		t.Fatalf("first TrackConnection: %v", err)
	}
	if err := auth.TrackConnection(sid); err != nil {
		t.Fatalf("second TrackConnection: %v", err)
	}
	if err := auth.TrackConnection(sid); err == nil {
		t.Fatal("expected QueueFull on third connection")
	}

	auth.ReleaseConnection(sid)
	if err := auth.TrackConnection(sid); err != nil {
		t.Fatalf("TrackConnection after release: %v", err)
	}
}

func TestSessionAuth_SessionCount(t *testing.T) {
	auth := NewSessionAuth([]byte("s3cret"), time.Minute, 4)
	if auth.SessionCount() != 0 {
		t.Fatalf("expected 0 sessions, got %d", auth.SessionCount())
	}
	auth.Authenticate("s3cret")
	auth.Authenticate("s3cret")
	if auth.SessionCount() != 2 {
		t.Fatalf("expected 2 sessions, got %d", auth.SessionCount())
	}
}
