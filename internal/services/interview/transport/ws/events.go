package ws

import (
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/engine"
	"github.com/louisbranch/mockinterview/internal/services/interview/i18n"
	"golang.org/x/text/message"
)

type completionPayload struct {
	Status            session.Status  `json:"status"`
	Cause             string          `json:"cause"`
	Scores            scoring.Summary `json:"scores"`
	QuestionsAnswered int             `json:"questions_answered"`
	TotalQuestions    int             `json:"total_questions"`
	Message           string          `json:"message"`
}

type integrityWarningPayload struct {
	Count   int              `json:"count"`
	Limit   int              `json:"limit"`
	Status  integrity.Status `json:"status"`
	Message string           `json:"message"`
}

type focusWarningPayload struct {
	Count     int    `json:"count"`
	Displayed int    `json:"displayed"`
	Message   string `json:"message"`
}

type processingPayload struct {
	QuestionIndex int    `json:"question_index"`
	AutoSubmitted bool   `json:"auto_submitted"`
	Message       string `json:"message,omitempty"`
}

// eventFrame renders an engine event for the participant, localizing any
// human-readable text.
func eventFrame(p *message.Printer, ev engine.Event) wsFrame {
	var payload any = ev.Payload
	switch v := ev.Payload.(type) {
	case engine.Completion:
		payload = completionPayloadOf(p, v)
	case engine.IntegrityWarning:
		payload = integrityWarningPayload{
			Count:   v.Count,
			Limit:   v.Limit,
			Status:  v.Status,
			Message: p.Sprintf(i18n.IntegrityWarningKey, statusText(p, v.Status), v.Count, v.Limit),
		}
	case engine.FocusWarning:
		payload = focusWarningPayload{
			Count:     v.Count,
			Displayed: v.Displayed,
			Message:   p.Sprintf(i18n.FocusWarningKey, v.Displayed),
		}
	case engine.AnswerProcessing:
		out := processingPayload{QuestionIndex: v.QuestionIndex, AutoSubmitted: v.AutoSubmitted}
		if v.AutoSubmitted {
			out.Message = p.Sprintf(i18n.TimeoutSubmittedKey)
		}
		payload = out
	case engine.ErrorEvent:
		payload = wsErrorEnvelope{Error: wsError{
			Code:              string(v.Code),
			Message:           v.Message,
			Kind:              string(v.Kind),
			RetryAfterSeconds: seconds(v.RetryAfter),
		}}
	}
	return wsFrame{Type: string(ev.Type), Payload: mustJSON(payload)}
}

func statusText(p *message.Printer, s integrity.Status) string {
	if s == integrity.Fidgeting {
		return p.Sprintf(i18n.IntegrityFidgetingKey)
	}
	return p.Sprintf(i18n.IntegrityLookingAwayKey)
}

func completionPayloadOf(p *message.Printer, c engine.Completion) completionPayload {
	return completionPayload{
		Status:            c.Status,
		Cause:             c.Cause,
		Scores:            c.Scores,
		QuestionsAnswered: c.QuestionsAnswered,
		TotalQuestions:    c.TotalQuestions,
		Message:           p.Sprintf(completionKey(c)),
	}
}

func completionKey(c engine.Completion) string {
	if c.Status == session.StatusCompleted {
		if c.Cause == session.CauseAnswered {
			return i18n.CompletedAnsweredKey
		}
		return i18n.CompletedEndedKey
	}
	switch c.Cause {
	case session.CauseIntegrity:
		return i18n.AbandonedIntegrityKey
	case session.CauseStale:
		return i18n.AbandonedStaleKey
	case session.CauseNoSource:
		return i18n.AbandonedNoQuestionsKey
	default:
		return i18n.AbandonedEndedKey
	}
}
