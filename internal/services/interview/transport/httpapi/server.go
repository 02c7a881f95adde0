// Package httpapi exposes the interview session lifecycle over JSON HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/platform/requestctx"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/engine"
	"github.com/louisbranch/mockinterview/internal/services/interview/i18n"
	"github.com/louisbranch/mockinterview/internal/services/interview/identity"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage"
)

const maxBodyBytes = 64 * 1024

// Lifecycle is the engine surface served over HTTP.
type Lifecycle interface {
	Create(ctx context.Context, caller string, params session.CreateParams) (session.Session, error)
	Start(ctx context.Context, caller, sessionID string) (session.Session, error)
	End(ctx context.Context, caller, sessionID, reason string) (session.Session, error)
	Get(ctx context.Context, caller, sessionID string) (session.Session, error)
	Report(ctx context.Context, caller, sessionID string) (engine.Report, error)
	History(ctx context.Context, caller string, q storage.HistoryQuery) (storage.SessionPage, error)
}

// Authenticator resolves a bearer token into a caller.
type Authenticator interface {
	Verify(token string) (identity.Claims, error)
}

// Server hosts the lifecycle endpoints.
type Server struct {
	sessions Lifecycle
	auth     Authenticator
}

// NewServer builds a lifecycle server.
func NewServer(sessions Lifecycle, auth Authenticator) *Server {
	return &Server{sessions: sessions, auth: auth}
}

// RegisterRoutes registers lifecycle endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.Handle("POST /v1/sessions", s.authenticated(s.handleCreate))
	mux.Handle("GET /v1/sessions", s.authenticated(s.handleHistory))
	mux.Handle("GET /v1/sessions/{id}", s.authenticated(s.handleGet))
	mux.Handle("POST /v1/sessions/{id}/start", s.authenticated(s.handleStart))
	mux.Handle("POST /v1/sessions/{id}/end", s.authenticated(s.handleEnd))
	mux.Handle("GET /v1/sessions/{id}/report", s.authenticated(s.handleReport))
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

type createRequest struct {
	Category       string `json:"category"`
	Focus          string `json:"focus"`
	Tone           string `json:"tone"`
	TargetCompany  string `json:"target_company"`
	TargetRole     string `json:"target_role"`
	Difficulty     string `json:"difficulty"`
	TotalQuestions int    `json:"total_questions"`
	VoiceMode      bool   `json:"voice_mode"`
}

type endRequest struct {
	Reason string `json:"reason"`
}

type sessionSummary struct {
	ID                string           `json:"id"`
	Category          session.Category `json:"category"`
	Focus             string           `json:"focus,omitempty"`
	Status            session.Status   `json:"status"`
	Cause             string           `json:"cause,omitempty"`
	Difficulty        difficulty.State `json:"difficulty"`
	Overall           int              `json:"overall"`
	QuestionsAnswered int              `json:"questions_answered"`
	TotalQuestions    int              `json:"total_questions"`
	ScheduledAt       time.Time        `json:"scheduled_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
}

type historyResponse struct {
	Sessions      []sessionSummary `json:"sessions"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

// authenticated verifies the bearer token and stores the caller in the
// request context.
func (s *Server) authenticated(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "auth is not configured", http.StatusServiceUnavailable)
			return
		}
		claims, err := s.auth.Verify(identity.TokenFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := requestctx.WithUserID(r.Context(), claims.UserID)
		ctx = requestctx.WithLanguage(ctx, i18n.Resolve(claims.Language, r.Header.Get("Accept-Language")))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	var level difficulty.Level
	if strings.TrimSpace(req.Difficulty) != "" {
		parsed, err := difficulty.ParseLevel(req.Difficulty)
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown difficulty %q", req.Difficulty), err))
			return
		}
		level = parsed
	}
	sess, err := s.sessions.Create(r.Context(), requestctx.UserIDFromContext(r.Context()), session.CreateParams{
		Category:       session.Category(strings.TrimSpace(req.Category)),
		Focus:          req.Focus,
		Tone:           session.Tone(strings.TrimSpace(req.Tone)),
		TargetCompany:  req.TargetCompany,
		TargetRole:     req.TargetRole,
		Difficulty:     level,
		TotalQuestions: req.TotalQuestions,
		VoiceMode:      req.VoiceMode,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Start(r.Context(), requestctx.UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	sess, err := s.sessions.End(r.Context(), requestctx.UserIDFromContext(r.Context()), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.Context(), requestctx.UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.sessions.Report(r.Context(), requestctx.UserIDFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	pageSize := 0
	if raw := strings.TrimSpace(params.Get("page_size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "page_size must be a non-negative integer"))
			return
		}
		pageSize = n
	}
	page, err := s.sessions.History(r.Context(), requestctx.UserIDFromContext(r.Context()), storage.HistoryQuery{
		PageSize:  pageSize,
		PageToken: params.Get("page_token"),
		Filter:    params.Get("filter"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := historyResponse{Sessions: make([]sessionSummary, 0, len(page.Sessions)), NextPageToken: page.NextPageToken}
	for _, sess := range page.Sessions {
		out.Sessions = append(out.Sessions, summaryOf(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func summaryOf(s session.Session) sessionSummary {
	out := sessionSummary{
		ID:                s.ID,
		Category:          s.Category,
		Focus:             s.Focus,
		Status:            s.Status,
		Cause:             s.EndReason,
		Difficulty:        s.Difficulty,
		Overall:           s.OverallScores.Overall,
		QuestionsAnswered: s.QuestionsAnswered,
		TotalQuestions:    s.TotalQuestions,
		ScheduledAt:       s.ScheduledAt,
	}
	if !s.CompletedAt.IsZero() {
		completed := s.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid request body", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := apperrors.As(err)
	if !ok {
		if errors.Is(err, context.DeadlineExceeded) {
			e = apperrors.Wrap(apperrors.CodeUnknown, "request timed out", err)
		} else {
			log.Printf("interview: http: %v", err)
			e = apperrors.Wrap(apperrors.CodeUnknown, "internal error", err)
		}
	}
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(e.RetryAfter.Round(time.Second)/time.Second)))
	}
	message := e.Message
	if message == "" {
		message = e.Error()
	}
	writeJSON(w, apperrors.HTTPStatusOf(e), errorResponse{Error: errorBody{
		Code:    string(e.Code),
		Message: message,
		Kind:    string(e.Kind()),
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
