package session

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
)

// MaxQuestions bounds the length of a session.
const MaxQuestions = 20

// CreateParams are the caller-supplied fields of a new session.
type CreateParams struct {
	OwnerID        string
	Category       Category
	Focus          string
	Tone           Tone
	TargetCompany  string
	TargetRole     string
	Difficulty     difficulty.Level
	TotalQuestions int
	VoiceMode      bool
}

// New validates params and returns a scheduled session.
func New(id string, params CreateParams, now time.Time) (Session, error) {
	owner := strings.TrimSpace(params.OwnerID)
	if owner == "" {
		return Session{}, apperrors.New(apperrors.CodeInvalidArgument, "owner is required")
	}
	if !params.Category.Valid() {
		return Session{}, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown category %q", params.Category))
	}
	level := params.Difficulty
	if level == "" {
		level = difficulty.Medium
	}
	if !level.Valid() {
		return Session{}, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("unknown difficulty %q", params.Difficulty))
	}
	if params.TotalQuestions < 1 || params.TotalQuestions > MaxQuestions {
		return Session{}, apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("total questions must be between 1 and %d", MaxQuestions))
	}
	tone := params.Tone
	if tone == "" {
		tone = ToneNeutral
	}
	now = now.UTC()
	return Session{
		ID:               id,
		OwnerID:          owner,
		Category:         params.Category,
		Focus:            strings.TrimSpace(params.Focus),
		Tone:             tone,
		TargetCompany:    strings.TrimSpace(params.TargetCompany),
		TargetRole:       strings.TrimSpace(params.TargetRole),
		Difficulty:       difficulty.NewState(level),
		Status:           StatusScheduled,
		VoiceMode:        params.VoiceMode,
		Responses:        []Response{},
		TotalQuestions:   params.TotalQuestions,
		PlannedQuestions: params.TotalQuestions,
		Analytics:        Analytics{Trend: TrendInsufficientData},
		ScheduledAt:      now,
		LastActivityAt:   now,
	}, nil
}

// Start moves a scheduled session into progress with its first question.
func (s *Session) Start(first Question, now time.Time) error {
	if s.Status != StatusScheduled {
		return s.stateError("start")
	}
	now = now.UTC()
	s.Status = StatusInProgress
	s.StartedAt = now
	s.issue(first, now)
	return nil
}

// Issue opens the next question. It never moves the index backwards.
func (s *Session) Issue(q Question, now time.Time) {
	s.issue(q, now.UTC())
}

func (s *Session) issue(q Question, now time.Time) {
	if q.TimeAllowanceSeconds <= 0 {
		q.TimeAllowanceSeconds = 120
	}
	s.CurrentQuestionIndex = s.QuestionsAnswered
	s.CurrentQuestion = &q
	s.QuestionIssuedAt = now
	s.LastActivityAt = now
}

// Pause freezes an in-progress session.
func (s *Session) Pause(now time.Time) error {
	if s.Status != StatusInProgress {
		return s.stateError("pause")
	}
	now = now.UTC()
	s.Status = StatusPaused
	s.PausedAt = now
	s.LastActivityAt = now
	return nil
}

// Resume continues a paused session. The open question is re-issued with a
// fresh start time.
func (s *Session) Resume(now time.Time) error {
	if s.Status != StatusPaused {
		return s.stateError("resume")
	}
	now = now.UTC()
	s.Status = StatusInProgress
	s.PausedAt = time.Time{}
	s.QuestionIssuedAt = now
	s.LastActivityAt = now
	return nil
}

// CanAnswer reports whether a response may be recorded.
func (s Session) CanAnswer() error {
	if s.Status != StatusInProgress && s.Status != StatusPaused {
		return s.stateError("answer")
	}
	if s.CurrentQuestion == nil {
		return apperrors.New(apperrors.CodeInvalidState, "no open question")
	}
	return nil
}

// RecordResponse appends an evaluated response and recomputes every
// projection. It returns the ladder change, if any, and whether the session
// is now complete. Evaluations that land while paused are still recorded.
func (s *Session) RecordResponse(r Response, policy difficulty.Policy, now time.Time) (*difficulty.Adjustment, bool, error) {
	if err := s.CanAnswer(); err != nil {
		return nil, false, err
	}
	now = now.UTC()
	r.QuestionIndex = s.QuestionsAnswered
	r.Question = *s.CurrentQuestion
	if r.Answer.Sentinel {
		r.Scores = scoring.Zero("no answer before time ran out")
	} else {
		r.Scores = r.Scores.Finalize()
	}
	if r.CompletedAt.IsZero() {
		r.CompletedAt = now
	}
	s.Responses = append(s.Responses, r)
	s.QuestionsAnswered = len(s.Responses)
	s.CurrentQuestion = nil
	s.CurrentQuestionIndex = s.QuestionsAnswered
	s.LastActivityAt = now

	var adj *difficulty.Adjustment
	if a, changed := s.Difficulty.Apply(policy, r.Scores.Overall, r.QuestionIndex, now); changed {
		adj = &a
	}
	s.Recompute(now)

	if s.QuestionsAnswered >= s.TotalQuestions {
		s.finish(StatusCompleted, CauseAnswered, now)
		return adj, true, nil
	}
	return adj, false, nil
}

// AttachVoice fills the voice block of an already recorded response.
func (s *Session) AttachVoice(questionIndex int, v Voice) error {
	if questionIndex < 0 || questionIndex >= len(s.Responses) {
		return apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("no response at index %d", questionIndex))
	}
	s.Responses[questionIndex].Voice = v
	return nil
}

// End finishes a session early. With at least one response it completes and
// the total is truncated to what was answered; otherwise it is abandoned.
func (s *Session) End(reason string, now time.Time) (Status, error) {
	if s.Status.Terminal() {
		return s.Status, s.stateError("end")
	}
	now = now.UTC()
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "ended_by_participant"
	}
	if len(s.Responses) == 0 {
		s.finish(StatusAbandoned, reason, now)
		return s.Status, nil
	}
	s.TotalQuestions = s.QuestionsAnswered
	s.CurrentQuestionIndex = s.QuestionsAnswered
	s.finish(StatusCompleted, reason, now)
	return s.Status, nil
}

// Abandon terminates a non-terminal session regardless of its responses.
func (s *Session) Abandon(cause string, now time.Time) error {
	if s.Status.Terminal() {
		return s.stateError("abandon")
	}
	s.finish(StatusAbandoned, cause, now.UTC())
	return nil
}

// RecordIntegrity mirrors the monitor counters into the document.
func (s *Session) RecordIntegrity(st integrity.State) {
	cause := s.Integrity.Cause
	s.Integrity = st
	if st.Terminated && cause == "" {
		cause = CauseIntegrity
	}
	s.Integrity.Cause = cause
}

// Touch marks participant activity.
func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now.UTC()
}

// Recompute rebuilds scores and analytics from the response log.
func (s *Session) Recompute(now time.Time) {
	breakdowns := make([]scoring.Breakdown, len(s.Responses))
	for i, r := range s.Responses {
		breakdowns[i] = r.Scores
	}
	s.OverallScores = scoring.Aggregate(breakdowns)
	s.Analytics = BuildAnalytics(*s, now)
}

func (s *Session) finish(status Status, cause string, now time.Time) {
	s.Status = status
	s.EndReason = cause
	s.CompletedAt = now
	s.PausedAt = time.Time{}
	s.CurrentQuestion = nil
	s.LastActivityAt = now
	s.Recompute(now)
}

func (s Session) stateError(op string) error {
	if s.Status == StatusAbandoned {
		return apperrors.New(apperrors.CodeSessionAbandoned, "session was abandoned")
	}
	return apperrors.New(apperrors.CodeInvalidState, fmt.Sprintf("cannot %s a session that is %s", op, s.Status))
}

// CheckInvariants verifies the document is internally consistent.
func (s Session) CheckInvariants() error {
	if len(s.Responses) != s.QuestionsAnswered {
		return fmt.Errorf("questions answered %d != responses %d", s.QuestionsAnswered, len(s.Responses))
	}
	if s.CurrentQuestionIndex > s.TotalQuestions {
		return fmt.Errorf("current question index %d exceeds total %d", s.CurrentQuestionIndex, s.TotalQuestions)
	}
	if s.Status == StatusCompleted && s.QuestionsAnswered < s.TotalQuestions {
		return fmt.Errorf("completed with %d of %d answered", s.QuestionsAnswered, s.TotalQuestions)
	}
	if !s.Difficulty.Consistent() {
		return fmt.Errorf("difficulty current %q does not match history", s.Difficulty.Current)
	}
	breakdowns := make([]scoring.Breakdown, len(s.Responses))
	for i, r := range s.Responses {
		breakdowns[i] = r.Scores
	}
	if scoring.Aggregate(breakdowns) != s.OverallScores {
		return fmt.Errorf("overall scores are not derived from responses")
	}
	return nil
}
