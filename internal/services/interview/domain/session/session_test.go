package session

import (
	"testing"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
)

var now = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func newSession(t *testing.T, total int) Session {
	t.Helper()
	s, err := New("sess-1", CreateParams{
		OwnerID:        "user-1",
		Category:       CategoryTechnical,
		Difficulty:     difficulty.Medium,
		TotalQuestions: total,
	}, now)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func question(id string) Question {
	return Question{ID: id, Text: "Explain " + id, Difficulty: difficulty.Medium}
}

func scored(score int) Response {
	var b scoring.Breakdown
	for _, d := range scoring.Dimensions {
		b.Set(d, scoring.DimensionScore{Score: score})
	}
	return Response{Answer: Answer{Text: "answer"}, Scores: b}
}

func TestNewValidatesParams(t *testing.T) {
	cases := []CreateParams{
		{Category: CategoryTechnical, TotalQuestions: 3},
		{OwnerID: "u", Category: "cooking", TotalQuestions: 3},
		{OwnerID: "u", Category: CategoryBehavioral, TotalQuestions: 0},
		{OwnerID: "u", Category: CategoryBehavioral, TotalQuestions: MaxQuestions + 1},
		{OwnerID: "u", Category: CategoryBehavioral, TotalQuestions: 2, Difficulty: "legendary"},
	}
	for i, params := range cases {
		if _, err := New("x", params, now); apperrors.CodeOf(err) != apperrors.CodeInvalidArgument {
			t.Fatalf("case %d: expected invalid argument, got %v", i, err)
		}
	}
}

func TestNewDefaults(t *testing.T) {
	s, err := New("x", CreateParams{OwnerID: "u", Category: CategoryProduct, TotalQuestions: 2}, now)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Status != StatusScheduled || s.Tone != ToneNeutral || s.Difficulty.Initial != difficulty.Medium {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.Analytics.Trend != TrendInsufficientData {
		t.Fatalf("trend = %q", s.Analytics.Trend)
	}
}

func TestSingleQuestionSessionCompletes(t *testing.T) {
	s := newSession(t, 1)
	if err := s.Start(question("q1"), now); err != nil {
		t.Fatalf("start: %v", err)
	}

	adj, done, err := s.RecordResponse(scored(95), difficulty.DefaultPolicy(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !done || s.Status != StatusCompleted {
		t.Fatalf("expected completion, got status %q", s.Status)
	}
	if s.OverallScores.Overall != 95 {
		t.Fatalf("overall = %d, want 95", s.OverallScores.Overall)
	}
	if adj == nil || adj.From != difficulty.Medium || adj.To != difficulty.Hard {
		t.Fatalf("expected increase adjustment, got %+v", adj)
	}
	if len(s.Difficulty.History) != 1 || s.Difficulty.Initial != difficulty.Medium {
		t.Fatalf("unexpected difficulty %+v", s.Difficulty)
	}
	if s.CompletedAt.IsZero() || s.EndReason != CauseAnswered {
		t.Fatalf("expected completion stamp and cause, got %v %q", s.CompletedAt, s.EndReason)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestSentinelForcesZero(t *testing.T) {
	s := newSession(t, 5)
	if err := s.Start(question("q0"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 5; i++ {
		r := scored(88)
		if i == 2 {
			r.Answer = Answer{Text: "I would start by", Sentinel: true, AutoSubmitted: true}
		}
		if _, _, err := s.RecordResponse(r, difficulty.Policy{IncreaseAbove: 101, DecreaseBelow: -1}, now); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if i < 4 {
			s.Issue(question("q"), now)
		}
	}
	if got := s.Responses[2].Scores; got.Overall != 0 || got.Correctness.Score != 0 {
		t.Fatalf("sentinel response scores = %+v, want zeros", got)
	}
	if s.Responses[2].Answer.Text != "I would start by" {
		t.Fatal("expected partial text to be kept")
	}
	if s.OverallScores.Overall != 70 {
		t.Fatalf("overall = %d, want 70", s.OverallScores.Overall)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestCountersTrackResponses(t *testing.T) {
	s := newSession(t, 3)
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, done, err := s.RecordResponse(scored(60), difficulty.DefaultPolicy(), now); err != nil || done {
			t.Fatalf("record %d: done=%v err=%v", i, done, err)
		}
		if s.QuestionsAnswered != len(s.Responses) {
			t.Fatalf("answered %d != responses %d", s.QuestionsAnswered, len(s.Responses))
		}
		s.Issue(question("b"), now)
		if s.CurrentQuestionIndex != i+1 {
			t.Fatalf("index = %d, want %d", s.CurrentQuestionIndex, i+1)
		}
	}
	if s.Status != StatusInProgress {
		t.Fatalf("status = %q, want in progress", s.Status)
	}
}

func TestPauseResume(t *testing.T) {
	s := newSession(t, 2)
	if err := s.Pause(now); apperrors.CodeOf(err) != apperrors.CodeInvalidState {
		t.Fatalf("pause scheduled: %v", err)
	}
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Resume(now); err == nil {
		t.Fatal("expected resume of in-progress session to fail")
	}
	if err := s.Pause(now.Add(time.Second)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	later := now.Add(time.Hour)
	if err := s.Resume(later); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !s.QuestionIssuedAt.Equal(later) || !s.PausedAt.IsZero() {
		t.Fatalf("expected question re-issued at resume, got %v", s.QuestionIssuedAt)
	}
}

func TestEndWithoutResponsesAbandons(t *testing.T) {
	s := newSession(t, 3)
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	status, err := s.End("", now)
	if err != nil || status != StatusAbandoned {
		t.Fatalf("end: %q, %v", status, err)
	}
	if s.CompletedAt.IsZero() {
		t.Fatal("expected completedAt stamp")
	}
	if _, err := s.End("again", now); apperrors.CodeOf(err) != apperrors.CodeSessionAbandoned {
		t.Fatalf("expected abandoned error, got %v", err)
	}
}

func TestEndWithResponsesCompletesAndTruncates(t *testing.T) {
	s := newSession(t, 5)
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := s.RecordResponse(scored(70), difficulty.DefaultPolicy(), now); err != nil {
		t.Fatalf("record: %v", err)
	}
	s.Issue(question("b"), now)
	status, err := s.End("done early", now.Add(time.Minute))
	if err != nil || status != StatusCompleted {
		t.Fatalf("end: %q, %v", status, err)
	}
	if s.TotalQuestions != 1 || s.PlannedQuestions != 5 {
		t.Fatalf("total=%d planned=%d", s.TotalQuestions, s.PlannedQuestions)
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
	if _, err := s.End("again", now); apperrors.CodeOf(err) != apperrors.CodeInvalidState {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestAbandonRecordsCause(t *testing.T) {
	s := newSession(t, 2)
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := s.RecordResponse(scored(70), difficulty.DefaultPolicy(), now); err != nil {
		t.Fatalf("record: %v", err)
	}
	s.Issue(question("b"), now)
	if err := s.Abandon(CauseIntegrity, now); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if s.Status != StatusAbandoned || s.EndReason != CauseIntegrity {
		t.Fatalf("unexpected terminal state %q %q", s.Status, s.EndReason)
	}
	if _, _, err := s.RecordResponse(scored(70), difficulty.DefaultPolicy(), now); err == nil {
		t.Fatal("expected terminal session to reject responses")
	}
}

func TestRecordIntegrityKeepsCause(t *testing.T) {
	s := newSession(t, 1)
	s.RecordIntegrity(integrity.State{TabSwitches: 2})
	if s.Integrity.Cause != "" {
		t.Fatalf("unexpected cause %q", s.Integrity.Cause)
	}
	s.RecordIntegrity(integrity.State{Misbehaviors: 4, Terminated: true})
	if s.Integrity.Cause != CauseIntegrity {
		t.Fatalf("cause = %q", s.Integrity.Cause)
	}
}

func TestAttachVoice(t *testing.T) {
	s := newSession(t, 2)
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := s.RecordResponse(scored(70), difficulty.DefaultPolicy(), now); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.AttachVoice(0, Voice{Transcription: "hello", WordsPerMinute: 120}); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if s.Responses[0].Voice.WordsPerMinute != 120 {
		t.Fatal("expected voice metadata to be stored")
	}
	if err := s.AttachVoice(3, Voice{}); err == nil {
		t.Fatal("expected out of range index to fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := newSession(t, 2)
	if err := s.Start(question("a"), now); err != nil {
		t.Fatalf("start: %v", err)
	}
	c := s.Clone()
	c.CurrentQuestion.Text = "changed"
	c.Responses = append(c.Responses, Response{})
	if s.CurrentQuestion.Text == "changed" || len(s.Responses) != 0 {
		t.Fatal("clone shares state with original")
	}
}
