package engine

import (
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
)

// EventType names a server-to-participant notification.
type EventType string

const (
	EventQuestionIssued        EventType = "question.issued"
	EventAnswerProcessing      EventType = "answer.processing"
	EventAnswerEvaluated       EventType = "answer.evaluated"
	EventDifficultyAdjusted    EventType = "difficulty.adjusted"
	EventSessionComplete       EventType = "session.complete"
	EventSessionAlreadyDone    EventType = "session.already_complete"
	EventSessionPaused         EventType = "session.paused"
	EventSessionResumed        EventType = "session.resumed"
	EventIntegrityWarning      EventType = "integrity.warning"
	EventFocusWarning          EventType = "focus.warning"
	EventTranscriptionRecorded EventType = "transcription.recorded"
	EventError                 EventType = "error"
)

// Event is one state change pushed to every subscriber of a session.
type Event struct {
	Type      EventType
	SessionID string
	At        time.Time
	Payload   any
}

// QuestionIssued announces the open question. Question is nil when the
// session resumes while an answer is still being evaluated.
type QuestionIssued struct {
	Question         *session.Question `json:"question,omitempty"`
	Progress         session.Progress  `json:"progress"`
	AllowanceSeconds int               `json:"allowance_seconds,omitempty"`
}

// StatusChanged reports a pause.
type StatusChanged struct {
	Status   session.Status   `json:"status"`
	Progress session.Progress `json:"progress"`
}

// AnswerProcessing acknowledges a submission.
type AnswerProcessing struct {
	QuestionIndex int  `json:"question_index"`
	AutoSubmitted bool `json:"auto_submitted"`
}

// Completion is the terminal summary of a session.
type Completion struct {
	Status            session.Status  `json:"status"`
	Cause             string          `json:"cause"`
	Scores            scoring.Summary `json:"scores"`
	QuestionsAnswered int             `json:"questions_answered"`
	TotalQuestions    int             `json:"total_questions"`
}

// IntegrityWarning escalates a gaze misbehavior.
type IntegrityWarning struct {
	Count  int              `json:"count"`
	Limit  int              `json:"limit"`
	Status integrity.Status `json:"status"`
}

// FocusWarning reports a tab switch.
type FocusWarning struct {
	Count     int `json:"count"`
	Displayed int `json:"displayed"`
	Cap       int `json:"cap"`
}

// TranscriptionRecorded confirms voice metrics were stored.
type TranscriptionRecorded struct {
	QuestionIndex int           `json:"question_index"`
	Voice         session.Voice `json:"voice"`
	Pending       bool          `json:"pending"`
}

// ErrorEvent reports a failure not tied to a participant request, such as
// an evaluation that failed after the submission was acknowledged.
type ErrorEvent struct {
	Code       apperrors.Code `json:"code"`
	Message    string         `json:"message"`
	Kind       apperrors.Kind `json:"kind"`
	RetryAfter time.Duration  `json:"-"`
}

func completionOf(s session.Session) Completion {
	return Completion{
		Status:            s.Status,
		Cause:             s.EndReason,
		Scores:            s.OverallScores,
		QuestionsAnswered: s.QuestionsAnswered,
		TotalQuestions:    s.TotalQuestions,
	}
}

func errorEventOf(err error) ErrorEvent {
	msg := "internal error"
	if e, ok := apperrors.As(err); ok {
		msg = e.Error()
	}
	return ErrorEvent{
		Code:       apperrors.CodeOf(err),
		Message:    msg,
		Kind:       apperrors.ProtocolKind(err),
		RetryAfter: apperrors.RetryAfterOf(err),
	}
}
