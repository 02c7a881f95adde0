package engine

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage"
)

// Report is the review of a finished session.
type Report struct {
	SessionID         string             `json:"session_id"`
	Status            session.Status     `json:"status"`
	Cause             string             `json:"cause"`
	Category          session.Category   `json:"category"`
	Focus             string             `json:"focus,omitempty"`
	QuestionsAnswered int                `json:"questions_answered"`
	TotalQuestions    int                `json:"total_questions"`
	Scores            scoring.Summary    `json:"scores"`
	Responses         []session.Response `json:"responses"`
	Difficulty        difficulty.State   `json:"difficulty"`
	Analytics         session.Analytics  `json:"analytics"`
	Integrity         IntegrityReport    `json:"integrity"`
	StartedAt         time.Time          `json:"started_at,omitempty"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// IntegrityReport pairs the counters with the incident log.
type IntegrityReport struct {
	integrity.State
	Events []IntegrityIncident `json:"events,omitempty"`
}

// IntegrityIncident is one logged integrity event.
type IntegrityIncident struct {
	Kind   storage.IntegrityEventKind `json:"kind"`
	Status string                     `json:"status,omitempty"`
	Count  int                        `json:"count"`
	At     time.Time                  `json:"at"`
}

// Report builds the review of a terminal session.
func (e *Engine) Report(ctx context.Context, caller, sessionID string) (Report, error) {
	sess, err := e.Get(ctx, caller, sessionID)
	if err != nil {
		return Report{}, err
	}
	if !sess.Status.Terminal() {
		return Report{}, apperrors.New(apperrors.CodeNotComplete, fmt.Sprintf("session is %s", sess.Status))
	}
	events, err := e.store.ListIntegrityEvents(ctx, sess.ID)
	if err != nil {
		return Report{}, fmt.Errorf("list integrity events: %w", err)
	}
	return buildReport(sess, events), nil
}

func buildReport(s session.Session, events []storage.IntegrityEvent) Report {
	r := Report{
		SessionID:         s.ID,
		Status:            s.Status,
		Cause:             s.EndReason,
		Category:          s.Category,
		Focus:             s.Focus,
		QuestionsAnswered: s.QuestionsAnswered,
		TotalQuestions:    s.TotalQuestions,
		Scores:            s.OverallScores,
		Responses:         s.Responses,
		Difficulty:        s.Difficulty,
		Analytics:         s.Analytics,
		Integrity:         IntegrityReport{State: s.Integrity},
		StartedAt:         s.StartedAt,
		CompletedAt:       s.CompletedAt,
	}
	if r.Responses == nil {
		r.Responses = []session.Response{}
	}
	for _, ev := range events {
		r.Integrity.Events = append(r.Integrity.Events, IntegrityIncident{
			Kind:   ev.Kind,
			Status: ev.Status,
			Count:  ev.Count,
			At:     ev.At,
		})
	}
	return r
}
