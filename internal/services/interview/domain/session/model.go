package session

import (
	"time"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further mutation is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusPaused, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// Category is the interview track.
type Category string

const (
	CategoryTechnical    Category = "technical"
	CategoryBehavioral   Category = "behavioral"
	CategorySystemDesign Category = "system_design"
	CategoryProduct      Category = "product"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryTechnical, CategoryBehavioral, CategorySystemDesign, CategoryProduct:
		return true
	}
	return false
}

// Tone is the interviewer persona requested for the session.
type Tone string

const (
	ToneFriendly    Tone = "friendly"
	ToneNeutral     Tone = "neutral"
	ToneChallenging Tone = "challenging"
)

// Completion causes recorded on terminal sessions.
const (
	CauseAnswered  = "all_questions_answered"
	CauseIntegrity = "integrity"
	CauseStale     = "stale"
	CauseNoSource  = "question_source_unavailable"
)

// Question is snapshotted into the session when issued so later edits to a
// question bank never change history.
type Question struct {
	ID                   string                        `json:"id"`
	Text                 string                        `json:"text"`
	Type                 string                        `json:"type"`
	Difficulty           difficulty.Level              `json:"difficulty"`
	TimeAllowanceSeconds int                           `json:"time_allowance_seconds"`
	ExpectedTopics       []string                      `json:"expected_topics,omitempty"`
	Weights              map[scoring.Dimension]float64 `json:"weights,omitempty"`
}

// Allowance returns the countdown for the question.
func (q Question) Allowance() time.Duration {
	if q.TimeAllowanceSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(q.TimeAllowanceSeconds) * time.Second
}

// Answer is what the participant submitted.
type Answer struct {
	Text            string  `json:"text"`
	AudioRef        string  `json:"audio_ref,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	AutoSubmitted   bool    `json:"auto_submitted,omitempty"`
	Sentinel        bool    `json:"sentinel,omitempty"`
}

// Voice holds speech metrics from the transcription service.
type Voice struct {
	Transcription  string  `json:"transcription,omitempty"`
	Confidence     float64 `json:"confidence"`
	Hesitations    int     `json:"hesitations"`
	FillerWords    int     `json:"filler_words"`
	Clarity        int     `json:"clarity"`
	WordsPerMinute int     `json:"words_per_minute"`
}

// Empty reports whether no voice metadata was recorded.
func (v Voice) Empty() bool { return v == Voice{} }

// BodyLanguage is derived from the telemetry snapshot at submission.
type BodyLanguage struct {
	EyeContact         int     `json:"eye_contact"`
	Posture            int     `json:"posture"`
	FidgetCount        int     `json:"fidget_count"`
	FaceVisibleSeconds float64 `json:"face_visible_seconds"`
}

// Analysis is the qualitative part of an evaluation.
type Analysis struct {
	Strengths     []string `json:"strengths,omitempty"`
	Weaknesses    []string `json:"weaknesses,omitempty"`
	Suggestions   []string `json:"suggestions,omitempty"`
	TopicsCovered []string `json:"topics_covered,omitempty"`
	TopicsMissed  []string `json:"topics_missed,omitempty"`
}

// Response is one completed question-answer exchange.
type Response struct {
	QuestionIndex int               `json:"question_index"`
	Question      Question          `json:"question"`
	Answer        Answer            `json:"answer"`
	Voice         Voice             `json:"voice"`
	BodyLanguage  BodyLanguage      `json:"body_language"`
	Scores        scoring.Breakdown `json:"scores"`
	Analysis      Analysis          `json:"analysis"`
	FollowUp      string            `json:"follow_up,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
}

// Trend describes how scores moved across the session.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// Analytics is recomputed from the response log.
type Analytics struct {
	DurationSeconds int                 `json:"duration_seconds"`
	Strengths       []scoring.Dimension `json:"strengths,omitempty"`
	Weaknesses      []scoring.Dimension `json:"weaknesses,omitempty"`
	ImprovementPlan []string            `json:"improvement_plan,omitempty"`
	Trend           Trend               `json:"trend"`
}

// Progress is the position shown to the participant.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Session is one interview attempt by one participant.
type Session struct {
	ID                   string           `json:"id"`
	OwnerID              string           `json:"owner_id"`
	Category             Category         `json:"category"`
	Focus                string           `json:"focus,omitempty"`
	Tone                 Tone             `json:"tone"`
	TargetCompany        string           `json:"target_company,omitempty"`
	TargetRole           string           `json:"target_role,omitempty"`
	Difficulty           difficulty.State `json:"difficulty"`
	Status               Status           `json:"status"`
	VoiceMode            bool             `json:"voice_mode"`
	Responses            []Response       `json:"responses"`
	TotalQuestions       int              `json:"total_questions"`
	PlannedQuestions     int              `json:"planned_questions"`
	QuestionsAnswered    int              `json:"questions_answered"`
	CurrentQuestionIndex int              `json:"current_question_index"`
	CurrentQuestion      *Question        `json:"current_question,omitempty"`
	QuestionIssuedAt     time.Time        `json:"question_issued_at,omitempty"`
	OverallScores        scoring.Summary  `json:"overall_scores"`
	Analytics            Analytics        `json:"analytics"`
	Integrity            integrity.State  `json:"integrity"`
	EndReason            string           `json:"end_reason,omitempty"`
	ScheduledAt          time.Time        `json:"scheduled_at"`
	StartedAt            time.Time        `json:"started_at,omitempty"`
	PausedAt             time.Time        `json:"paused_at,omitempty"`
	CompletedAt          time.Time        `json:"completed_at,omitempty"`
	LastActivityAt       time.Time        `json:"last_activity_at"`
}

// Progress returns the 1-based position of the open question.
func (s Session) Progress() Progress {
	current := s.CurrentQuestionIndex + 1
	if current > s.TotalQuestions {
		current = s.TotalQuestions
	}
	return Progress{Current: current, Total: s.TotalQuestions}
}

// AskedQuestionIDs lists the bank ids already used in the session.
func (s Session) AskedQuestionIDs() []string {
	ids := make([]string, 0, len(s.Responses)+1)
	for _, r := range s.Responses {
		if r.Question.ID != "" {
			ids = append(ids, r.Question.ID)
		}
	}
	if s.CurrentQuestion != nil && s.CurrentQuestion.ID != "" {
		ids = append(ids, s.CurrentQuestion.ID)
	}
	return ids
}

// Clone returns a copy that shares no mutable slices with s.
func (s Session) Clone() Session {
	out := s
	out.Responses = append([]Response(nil), s.Responses...)
	out.Difficulty.History = append([]difficulty.Adjustment(nil), s.Difficulty.History...)
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		out.CurrentQuestion = &q
	}
	out.Analytics.Strengths = append([]scoring.Dimension(nil), s.Analytics.Strengths...)
	out.Analytics.Weaknesses = append([]scoring.Dimension(nil), s.Analytics.Weaknesses...)
	out.Analytics.ImprovementPlan = append([]string(nil), s.Analytics.ImprovementPlan...)
	return out
}
