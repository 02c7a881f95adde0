// Package storage defines persistence contracts for interview sessions.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
)

var (
	// ErrNotFound indicates a requested session is missing.
	ErrNotFound = errors.New("record not found")
)

// IntegrityEventKind names an entry in the integrity log.
type IntegrityEventKind string

const (
	IntegrityWarning   IntegrityEventKind = "warning"
	IntegrityTerminate IntegrityEventKind = "terminate"
	IntegrityFocus     IntegrityEventKind = "focus_hidden"
)

// IntegrityEvent is one reviewable integrity incident.
type IntegrityEvent struct {
	SessionID string
	Kind      IntegrityEventKind
	Status    string
	Count     int
	At        time.Time
}

// HistoryQuery selects one page of an owner's sessions.
type HistoryQuery struct {
	OwnerID   string
	PageSize  int
	PageToken string
	// Filter is an AIP-160 expression over category, status, difficulty and
	// overall.
	Filter string
}

// SessionPage is one page of sessions, newest first.
type SessionPage struct {
	Sessions      []session.Session
	NextPageToken string
}

// SessionStore persists session documents.
type SessionStore interface {
	PutSession(ctx context.Context, s session.Session) error
	GetSession(ctx context.Context, id string) (session.Session, error)
	ListSessions(ctx context.Context, q HistoryQuery) (SessionPage, error)
	// ListStaleSessions returns ids of non-terminal sessions whose last
	// activity is before cutoff.
	ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// IntegrityLog appends and reads integrity incidents.
type IntegrityLog interface {
	AppendIntegrityEvent(ctx context.Context, e IntegrityEvent) error
	ListIntegrityEvents(ctx context.Context, sessionID string) ([]IntegrityEvent, error)
}

// Store is everything the engine persists.
type Store interface {
	SessionStore
	IntegrityLog
}
