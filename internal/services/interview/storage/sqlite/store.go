// Package sqlite provides a SQLite-backed interview session store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/platform/pagination"
	"github.com/louisbranch/mockinterview/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage/filter"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage/sqlite/migrations"
)

var historyPageSize = pagination.PageSizeConfig{Default: 20, Max: 100}

// Store persists interview sessions in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite session store and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// PutSession inserts or replaces a session document.
func (s *Store) PutSession(ctx context.Context, sess session.Session) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (
		   id,
		   owner_id,
		   category,
		   status,
		   difficulty,
		   overall_score,
		   scheduled_at,
		   last_activity_at,
		   updated_at,
		   document
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   difficulty = excluded.difficulty,
		   overall_score = excluded.overall_score,
		   last_activity_at = excluded.last_activity_at,
		   updated_at = excluded.updated_at,
		   document = excluded.document`,
		sess.ID,
		sess.OwnerID,
		string(sess.Category),
		string(sess.Status),
		string(sess.Difficulty.Current),
		sess.OverallScores.Overall,
		toMillis(sess.ScheduledAt),
		toMillis(sess.LastActivityAt),
		toMillis(time.Now()),
		string(doc),
	)
	if err != nil {
		return fmt.Errorf("put session %s: %w", sess.ID, err)
	}
	return nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (session.Session, error) {
	if err := s.ready(ctx); err != nil {
		return session.Session{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return session.Session{}, fmt.Errorf("session id is required")
	}
	var doc string
	err := s.sqlDB.QueryRowContext(ctx, `SELECT document FROM sessions WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, storage.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return decodeSession(doc)
}

// ListSessions returns one page of an owner's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, q storage.HistoryQuery) (storage.SessionPage, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SessionPage{}, err
	}
	owner := strings.TrimSpace(q.OwnerID)
	if owner == "" {
		return storage.SessionPage{}, fmt.Errorf("owner id is required")
	}
	pageSize := pagination.ClampPageSize(q.PageSize, historyPageSize)
	filterText := strings.TrimSpace(q.Filter)

	cond, err := filter.Parse(filterText)
	if err != nil {
		return storage.SessionPage{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid filter", err)
	}
	cursor, err := pagination.DecodeToken(q.PageToken)
	if err != nil {
		return storage.SessionPage{}, apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid page token", err)
	}
	if strings.TrimSpace(q.PageToken) != "" && cursor.Filter != filterText {
		return storage.SessionPage{}, apperrors.New(apperrors.CodeInvalidArgument, "page token does not match filter")
	}

	where := []string{"owner_id = ?"}
	args := []any{owner}
	if !cond.Empty() {
		where = append(where, cond.Clause)
		args = append(args, cond.Params...)
	}
	if cursor.ID != "" {
		where = append(where, "(scheduled_at < ? OR (scheduled_at = ? AND id < ?))")
		args = append(args, cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	args = append(args, pageSize+1)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT document
		   FROM sessions
		  WHERE `+strings.Join(where, " AND ")+`
		  ORDER BY scheduled_at DESC, id DESC
		  LIMIT ?`,
		args...,
	)
	if err != nil {
		return storage.SessionPage{}, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	page := storage.SessionPage{Sessions: make([]session.Session, 0, pageSize)}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return storage.SessionPage{}, fmt.Errorf("list sessions: %w", err)
		}
		sess, err := decodeSession(doc)
		if err != nil {
			return storage.SessionPage{}, err
		}
		page.Sessions = append(page.Sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return storage.SessionPage{}, fmt.Errorf("list sessions: %w", err)
	}
	if len(page.Sessions) > pageSize {
		last := page.Sessions[pageSize-1]
		page.NextPageToken = pagination.EncodeToken(pagination.Cursor{
			CreatedAt: toMillis(last.ScheduledAt),
			ID:        last.ID,
			Filter:    filterText,
		})
		page.Sessions = page.Sessions[:pageSize]
	}
	return page, nil
}

// ListStaleSessions returns ids of non-terminal sessions idle since before
// cutoff, oldest first.
func (s *Store) ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id
		   FROM sessions
		  WHERE status IN (?, ?, ?)
		    AND last_activity_at < ?
		  ORDER BY last_activity_at ASC
		  LIMIT ?`,
		string(session.StatusScheduled),
		string(session.StatusInProgress),
		string(session.StatusPaused),
		toMillis(cutoff),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list stale sessions: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale sessions: %w", err)
	}
	return ids, nil
}

// AppendIntegrityEvent records one integrity incident.
func (s *Store) AppendIntegrityEvent(ctx context.Context, e storage.IntegrityEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO integrity_events (session_id, kind, status, count, occurred_at) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID,
		string(e.Kind),
		e.Status,
		e.Count,
		toMillis(at),
	)
	if err != nil {
		return fmt.Errorf("append integrity event: %w", err)
	}
	return nil
}

// ListIntegrityEvents returns a session's integrity log in insertion order.
func (s *Store) ListIntegrityEvents(ctx context.Context, sessionID string) ([]storage.IntegrityEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT session_id, kind, status, count, occurred_at
		   FROM integrity_events
		  WHERE session_id = ?
		  ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list integrity events: %w", err)
	}
	defer rows.Close()

	events := []storage.IntegrityEvent{}
	for rows.Next() {
		var e storage.IntegrityEvent
		var kind string
		var at int64
		if err := rows.Scan(&e.SessionID, &kind, &e.Status, &e.Count, &at); err != nil {
			return nil, fmt.Errorf("list integrity events: %w", err)
		}
		e.Kind = storage.IntegrityEventKind(kind)
		e.At = fromMillis(at)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list integrity events: %w", err)
	}
	return events, nil
}

func decodeSession(doc string) (session.Session, error) {
	var sess session.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return session.Session{}, fmt.Errorf("decode session: %w", err)
	}
	if sess.Responses == nil {
		sess.Responses = []session.Response{}
	}
	return sess, nil
}

var _ storage.Store = (*Store)(nil)
