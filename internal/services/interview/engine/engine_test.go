package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout/timeouttest"
	"github.com/louisbranch/mockinterview/internal/services/interview/evaluation"
	"github.com/louisbranch/mockinterview/internal/services/interview/questions"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage"
)

const (
	owner     = "user-1"
	allowance = 60 * time.Second
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]session.Session
	events   []storage.IntegrityEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]session.Session{}}
}

func (s *fakeStore) PutSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, id string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return session.Session{}, storage.ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *fakeStore) ListSessions(_ context.Context, q storage.HistoryQuery) (storage.SessionPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var page storage.SessionPage
	for _, sess := range s.sessions {
		if sess.OwnerID == q.OwnerID {
			page.Sessions = append(page.Sessions, sess.Clone())
		}
	}
	sort.Slice(page.Sessions, func(i, j int) bool {
		return page.Sessions[i].ScheduledAt.After(page.Sessions[j].ScheduledAt)
	})
	return page, nil
}

func (s *fakeStore) ListStaleSessions(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, sess := range s.sessions {
		if !sess.Status.Terminal() && sess.LastActivityAt.Before(cutoff) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) AppendIntegrityEvent(_ context.Context, e storage.IntegrityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) ListIntegrityEvents(_ context.Context, sessionID string) ([]storage.IntegrityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.IntegrityEvent
	for _, e := range s.events {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeEvaluator struct {
	mu       sync.Mutex
	requests []evaluation.Request
	fn       func(ctx context.Context, req evaluation.Request) (evaluation.Result, error)
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req evaluation.Request) (evaluation.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return evaluation.Result{Scores: uniform(70)}, nil
	}
	return fn(ctx, req)
}

func (f *fakeEvaluator) calls() []evaluation.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evaluation.Request(nil), f.requests...)
}

type fakeSource struct {
	mu      sync.Mutex
	queries []questions.Query
	err     error
}

func (f *fakeSource) Next(_ context.Context, q questions.Query) (session.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return session.Question{}, f.err
	}
	n := len(q.Exclude) + 1
	return session.Question{
		ID:                   fmt.Sprintf("q%d", n),
		Text:                 fmt.Sprintf("Question %d?", n),
		Type:                 "open",
		Difficulty:           q.Difficulty,
		TimeAllowanceSeconds: int(allowance / time.Second),
	}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func uniform(score int) scoring.Breakdown {
	var b scoring.Breakdown
	for _, d := range scoring.Dimensions {
		b.Set(d, scoring.DimensionScore{Score: score, MaxScore: scoring.MaxScore})
	}
	return b
}

type harness struct {
	eng   *Engine
	store *fakeStore
	eval  *fakeEvaluator
	src   *fakeSource
	sched *timeouttest.ManualScheduler
	clock *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: newFakeStore(),
		eval:  &fakeEvaluator{},
		src:   &fakeSource{},
		sched: &timeouttest.ManualScheduler{},
		clock: &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	eng, err := New(h.store, h.eval, h.src, Config{
		Scheduler:    h.sched,
		Now:          h.clock.Now,
		TelemetryLog: log.New(io.Discard, "", 0),
		ReplyTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(eng.Close)
	h.eng = eng
	return h
}

// started creates a session, subscribes to it and starts it.
func (h *harness) started(t *testing.T, total int) (string, *Subscription) {
	t.Helper()
	ctx := context.Background()
	sess, err := h.eng.Create(ctx, owner, session.CreateParams{
		Category:       session.CategoryTechnical,
		Difficulty:     difficulty.Medium,
		TotalQuestions: total,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, sub, err := h.eng.Attach(ctx, owner, sess.ID)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(sub.Close)
	if _, err := h.eng.Start(ctx, owner, sess.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectEvent(t, sub, EventQuestionIssued)
	return sess.ID, sub
}

func (h *harness) get(t *testing.T, id string) session.Session {
	t.Helper()
	sess, err := h.eng.Get(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return sess
}

func expectEvent(t *testing.T, sub *Subscription, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				t.Fatalf("subscription closed waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func expectCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("expected code %s, got %s (%v)", want, got, err)
	}
}

func TestStartIssuesQuestionAndArmsTimer(t *testing.T) {
	h := newHarness(t)
	id, _ := h.started(t, 3)

	sess := h.get(t, id)
	if sess.Status != session.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", sess.Status)
	}
	if sess.CurrentQuestion == nil || sess.CurrentQuestion.ID != "q1" {
		t.Fatalf("expected q1 to be open, got %+v", sess.CurrentQuestion)
	}
	pending := h.sched.Pending()
	if len(pending) != 1 || pending[0].After != allowance {
		t.Fatalf("expected one %s timer, got %d", allowance, len(pending))
	}
}

func TestStartRejectsOtherParticipant(t *testing.T) {
	h := newHarness(t)
	sess, err := h.eng.Create(context.Background(), owner, session.CreateParams{
		Category:       session.CategoryTechnical,
		TotalQuestions: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = h.eng.Start(context.Background(), "user-2", sess.ID)
	expectCode(t, err, apperrors.CodeNotOwner)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.eng.Join(context.Background(), owner, "missing")
	expectCode(t, err, apperrors.CodeSessionNotFound)
}

func TestSubmitWhileEvaluatingIsBusy(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.eval.fn = func(ctx context.Context, req evaluation.Request) (evaluation.Result, error) {
		<-release
		return evaluation.Result{Scores: uniform(70)}, nil
	}
	id, sub := h.started(t, 3)
	ctx := context.Background()

	if err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "first"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventAnswerProcessing)
	err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "second"})
	expectCode(t, err, apperrors.CodeSessionBusy)

	close(release)
	expectEvent(t, sub, EventAnswerEvaluated)
	if got := h.get(t, id).QuestionsAnswered; got != 1 {
		t.Fatalf("expected 1 answered, got %d", got)
	}
}

func TestSubmitRejectsEmptyAnswer(t *testing.T) {
	h := newHarness(t)
	id, _ := h.started(t, 2)
	err := h.eng.SubmitAnswer(context.Background(), owner, id, Submission{Text: "   "})
	expectCode(t, err, apperrors.CodeEmptyAnswer)
	if len(h.eval.calls()) != 0 {
		t.Fatalf("expected no evaluation")
	}
}

func TestTimeoutWithoutDraftScoresZero(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 3)

	h.sched.Last().Fire()
	ev := expectEvent(t, sub, EventAnswerEvaluated)
	resp, ok := ev.Payload.(session.Response)
	if !ok {
		t.Fatalf("expected response payload, got %T", ev.Payload)
	}
	if !resp.Answer.Sentinel || !resp.Answer.AutoSubmitted {
		t.Fatalf("expected auto-submitted sentinel, got %+v", resp.Answer)
	}
	if resp.Scores.Overall != 0 || resp.Scores.Correctness.Score != 0 {
		t.Fatalf("expected zero scores, got %+v", resp.Scores)
	}
	if len(h.eval.calls()) != 0 {
		t.Fatalf("sentinel answers must not be evaluated")
	}
	expectEvent(t, sub, EventQuestionIssued)
	if got := h.get(t, id).QuestionsAnswered; got != 1 {
		t.Fatalf("expected 1 answered, got %d", got)
	}
}

func TestSubmittedSentinelTextScoresZero(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(context.Context, evaluation.Request) (evaluation.Result, error) {
		return evaluation.Result{Scores: uniform(90)}, nil
	}
	id, sub := h.started(t, 2)
	err := h.eng.SubmitAnswer(context.Background(), owner, id, Submission{Text: timeout.Sentinel})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventAnswerEvaluated)
	resp := h.get(t, id).Responses[0]
	if resp.Scores.Overall != 0 || resp.Answer.Text != "" {
		t.Fatalf("expected empty zero-scored answer, got %+v", resp)
	}
}

func TestTimeoutSubmitsDraft(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 2)
	if err := h.eng.Draft(context.Background(), owner, id, "partial thought"); err != nil {
		t.Fatalf("draft: %v", err)
	}

	h.sched.Last().Fire()
	expectEvent(t, sub, EventAnswerEvaluated)
	calls := h.eval.calls()
	if len(calls) != 1 || calls[0].Answer.Text != "partial thought" || !calls[0].Answer.AutoSubmitted {
		t.Fatalf("expected draft auto-submission, got %+v", calls)
	}
}

func TestTimeoutUsesPendingTranscription(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 2)
	voice := session.Voice{Transcription: "spoken answer", FillerWords: 2, Clarity: 80}
	if err := h.eng.RecordTranscription(context.Background(), owner, id, 0, voice); err != nil {
		t.Fatalf("transcription: %v", err)
	}
	expectEvent(t, sub, EventTranscriptionRecorded)

	h.sched.Last().Fire()
	expectEvent(t, sub, EventAnswerEvaluated)
	calls := h.eval.calls()
	if len(calls) != 1 || calls[0].Answer.Text != "spoken answer" {
		t.Fatalf("expected transcription auto-submission, got %+v", calls)
	}
	if got := h.get(t, id).Responses[0].Voice; got != voice {
		t.Fatalf("expected voice on response, got %+v", got)
	}
}

func TestTranscriptionAttachesToAnsweredQuestion(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 2)
	ctx := context.Background()
	if err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "typed"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventAnswerEvaluated)

	voice := session.Voice{Transcription: "typed", WordsPerMinute: 120}
	if err := h.eng.RecordTranscription(ctx, owner, id, 0, voice); err != nil {
		t.Fatalf("transcription: %v", err)
	}
	if got := h.get(t, id).Responses[0].Voice; got != voice {
		t.Fatalf("expected attached voice, got %+v", got)
	}
	err := h.eng.RecordTranscription(ctx, owner, id, 5, voice)
	expectCode(t, err, apperrors.CodeInvalidArgument)
}

func TestSingleHighScoreCompletesAndRaisesDifficulty(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(context.Context, evaluation.Request) (evaluation.Result, error) {
		return evaluation.Result{Scores: uniform(95)}, nil
	}
	id, sub := h.started(t, 1)
	if err := h.eng.SubmitAnswer(context.Background(), owner, id, Submission{Text: "great answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	adj := expectEvent(t, sub, EventDifficultyAdjusted).Payload.(difficulty.Adjustment)
	if adj.From != difficulty.Medium || adj.To != difficulty.Hard {
		t.Fatalf("expected medium -> hard, got %+v", adj)
	}
	done := expectEvent(t, sub, EventSessionComplete).Payload.(Completion)
	if done.Status != session.StatusCompleted || done.Scores.Overall != 95 {
		t.Fatalf("unexpected completion %+v", done)
	}

	sess := h.get(t, id)
	if sess.Difficulty.Initial != difficulty.Medium || sess.Difficulty.Current != difficulty.Hard {
		t.Fatalf("unexpected ladder %+v", sess.Difficulty)
	}
	if len(h.sched.Pending()) != 0 {
		t.Fatalf("expected no pending timers after completion")
	}

	join, err := h.eng.Join(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !join.AlreadyComplete || join.Completion == nil || join.Completion.Status != session.StatusCompleted {
		t.Fatalf("expected already complete, got %+v", join)
	}
}

func TestAttachCompletedSessionHasNoSubscription(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 1)
	if _, err := h.eng.End(context.Background(), owner, id, ""); err != nil {
		t.Fatalf("end: %v", err)
	}
	expectEvent(t, sub, EventSessionComplete)

	join, again, err := h.eng.Attach(context.Background(), owner, id)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !join.AlreadyComplete || again != nil {
		t.Fatalf("expected already complete without subscription, got %+v", join)
	}
}

func TestNextQuestionExcludesAskedAndFollowsLadder(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(context.Context, evaluation.Request) (evaluation.Result, error) {
		return evaluation.Result{Scores: uniform(30)}, nil
	}
	id, sub := h.started(t, 3)
	if err := h.eng.SubmitAnswer(context.Background(), owner, id, Submission{Text: "weak"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventQuestionIssued)

	h.src.mu.Lock()
	last := h.src.queries[len(h.src.queries)-1]
	h.src.mu.Unlock()
	if last.Difficulty != difficulty.Easy {
		t.Fatalf("expected easy after a low score, got %s", last.Difficulty)
	}
	if len(last.Exclude) != 1 || last.Exclude[0] != "q1" {
		t.Fatalf("expected q1 excluded, got %v", last.Exclude)
	}
}

func TestEvaluationFailureKeepsQuestionOpen(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(context.Context, evaluation.Request) (evaluation.Result, error) {
		return evaluation.Result{}, apperrors.New(apperrors.CodeEvaluationFailed, "upstream down")
	}
	id, sub := h.started(t, 2)
	if err := h.eng.SubmitAnswer(context.Background(), owner, id, Submission{Text: "answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ev := expectEvent(t, sub, EventError).Payload.(ErrorEvent)
	if ev.Code != apperrors.CodeEvaluationFailed {
		t.Fatalf("expected evaluation failure, got %+v", ev)
	}
	sess := h.get(t, id)
	if sess.QuestionsAnswered != 0 || len(sess.Responses) != 0 {
		t.Fatalf("failed evaluation must not append a response")
	}
	pending := h.sched.Pending()
	if len(pending) != 1 || pending[0].After != allowance {
		t.Fatalf("expected the countdown re-armed at full allowance")
	}

	h.eval.fn = nil
	if err := h.eng.SubmitAnswer(context.Background(), owner, id, Submission{Text: "answer"}); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	expectEvent(t, sub, EventAnswerEvaluated)
}

func TestEvaluationFailureKeepsAnswerForTimeout(t *testing.T) {
	h := newHarness(t)
	h.eval.fn = func(context.Context, evaluation.Request) (evaluation.Result, error) {
		return evaluation.Result{}, apperrors.New(apperrors.CodeEvaluationFailed, "upstream down")
	}
	id, sub := h.started(t, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := h.eng.RecordTelemetry(ctx, owner, id, telemetry.Frame{FaceVisible: true, LookingAtCamera: true}); err != nil {
			t.Fatalf("telemetry: %v", err)
		}
	}
	if err := h.eng.Draft(ctx, owner, id, "a thoughtful answer"); err != nil {
		t.Fatalf("draft: %v", err)
	}
	if err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "a thoughtful answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventError)

	h.eval.fn = nil
	h.sched.Last().Fire()
	expectEvent(t, sub, EventAnswerEvaluated)

	calls := h.eval.calls()
	if len(calls) != 2 {
		t.Fatalf("expected a second evaluation, got %d", len(calls))
	}
	retry := calls[1]
	if retry.Answer.Sentinel || retry.Answer.Text != "a thoughtful answer" || !retry.Answer.AutoSubmitted {
		t.Fatalf("expected the submitted text on timeout, got %+v", retry.Answer)
	}
	if retry.Telemetry.FramesAssessed != 2 || retry.Telemetry.EyeContactScore != 100 {
		t.Fatalf("expected frames kept across the failure, got %+v", retry.Telemetry)
	}
	resp := h.get(t, id).Responses[0]
	if resp.Answer.Sentinel || resp.Scores.Overall == 0 {
		t.Fatalf("expected a scored answer, got %+v", resp)
	}
}

func TestLateEvaluationIsDiscardedAfterEnd(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	h.eval.fn = func(context.Context, evaluation.Request) (evaluation.Result, error) {
		<-release
		return evaluation.Result{Scores: uniform(90)}, nil
	}
	id, sub := h.started(t, 2)
	ctx := context.Background()
	if err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventAnswerProcessing)

	ended, err := h.eng.End(ctx, owner, id, "")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != session.StatusAbandoned {
		t.Fatalf("expected abandoned with no responses, got %s", ended.Status)
	}
	close(release)

	join, err := h.eng.Join(ctx, owner, id)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if !join.AlreadyComplete {
		t.Fatalf("expected terminal session")
	}
	if got := len(h.get(t, id).Responses); got != 0 {
		t.Fatalf("expected no responses, got %d", got)
	}
}

func TestEndAfterAnswerCompletesWithTruncatedTotal(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 5)
	ctx := context.Background()
	if err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventAnswerEvaluated)

	ended, err := h.eng.End(ctx, owner, id, "out of time")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != session.StatusCompleted || ended.TotalQuestions != 1 {
		t.Fatalf("expected completed with total 1, got %s/%d", ended.Status, ended.TotalQuestions)
	}
	_, err = h.eng.End(ctx, owner, id, "")
	expectCode(t, err, apperrors.CodeInvalidState)
}

func TestPauseAndResumeRestartFullAllowance(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 2)
	ctx := context.Background()
	first := h.sched.Last()

	h.clock.Advance(45 * time.Second)
	if err := h.eng.Pause(ctx, owner, id); err != nil {
		t.Fatalf("pause: %v", err)
	}
	expectEvent(t, sub, EventSessionPaused)
	if len(h.sched.Pending()) != 0 {
		t.Fatalf("expected countdown stopped while paused")
	}
	err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "answer"})
	expectCode(t, err, apperrors.CodeInvalidState)

	if err := h.eng.Resume(ctx, owner, id); err != nil {
		t.Fatalf("resume: %v", err)
	}
	resumed := expectEvent(t, sub, EventSessionResumed).Payload.(QuestionIssued)
	if resumed.Question == nil || resumed.AllowanceSeconds != int(allowance/time.Second) {
		t.Fatalf("expected full allowance on resume, got %+v", resumed)
	}
	pending := h.sched.Pending()
	if len(pending) != 1 || pending[0].After != allowance {
		t.Fatalf("expected one full countdown after resume")
	}

	first.FireStale()
	join, err := h.eng.Join(ctx, owner, id)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if join.Evaluating || h.get(t, id).QuestionsAnswered != 0 {
		t.Fatalf("stale timer fire must be ignored")
	}
}

func TestFourMisbehaviorsTerminate(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 3)
	ctx := context.Background()
	away := telemetry.Frame{FaceVisible: true, LookingAtCamera: false}

	if err := h.eng.RecordTelemetry(ctx, owner, id, away); err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	for i := 1; i <= 3; i++ {
		h.clock.Advance(4 * time.Second)
		if err := h.eng.RecordTelemetry(ctx, owner, id, away); err != nil {
			t.Fatalf("telemetry: %v", err)
		}
		w := expectEvent(t, sub, EventIntegrityWarning).Payload.(IntegrityWarning)
		if w.Count != i || w.Limit != 4 {
			t.Fatalf("expected warning %d of 4, got %+v", i, w)
		}
	}
	h.clock.Advance(4 * time.Second)
	if err := h.eng.RecordTelemetry(ctx, owner, id, away); err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	done := expectEvent(t, sub, EventSessionComplete).Payload.(Completion)
	if done.Status != session.StatusAbandoned || done.Cause != session.CauseIntegrity {
		t.Fatalf("expected integrity abandonment, got %+v", done)
	}

	h.clock.Advance(4 * time.Second)
	if err := h.eng.RecordTelemetry(ctx, owner, id, away); err != nil {
		t.Fatalf("telemetry after termination: %v", err)
	}
	sess := h.get(t, id)
	if sess.Integrity.Misbehaviors != 4 || !sess.Integrity.Terminated {
		t.Fatalf("unexpected integrity state %+v", sess.Integrity)
	}
	events, _ := h.store.ListIntegrityEvents(ctx, id)
	if len(events) != 4 || events[3].Kind != storage.IntegrityTerminate {
		t.Fatalf("expected 3 warnings and a termination, got %+v", events)
	}
}

func TestTabSwitchesNeverTerminate(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 3)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		if err := h.eng.FocusChanged(ctx, owner, id, true); err != nil {
			t.Fatalf("focus: %v", err)
		}
	}
	w := expectEvent(t, sub, EventFocusWarning).Payload.(FocusWarning)
	if w.Count != 1 || w.Displayed != 1 {
		t.Fatalf("unexpected first warning %+v", w)
	}
	sess := h.get(t, id)
	if sess.Status != session.StatusInProgress {
		t.Fatalf("tab switches must not end the session, got %s", sess.Status)
	}
	if sess.Integrity.TabSwitches != 100 {
		t.Fatalf("expected 100 tab switches, got %d", sess.Integrity.TabSwitches)
	}
}

func TestReclaimStaleAbandonsIdleSessions(t *testing.T) {
	h := newHarness(t)
	idle, _ := h.started(t, 2)
	ctx := context.Background()
	h.clock.Advance(2 * time.Hour)
	fresh, _ := h.started(t, 2)

	n, err := h.eng.ReclaimStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed, got %d", n)
	}
	if s := h.get(t, idle); s.Status != session.StatusAbandoned || s.EndReason != session.CauseStale {
		t.Fatalf("expected stale abandonment, got %s/%s", s.Status, s.EndReason)
	}
	if s := h.get(t, fresh); s.Status != session.StatusInProgress {
		t.Fatalf("fresh session must stay in progress, got %s", s.Status)
	}
}

func TestStartWithoutQuestionsAbandons(t *testing.T) {
	h := newHarness(t)
	h.src.err = questions.ErrExhausted
	sess, err := h.eng.Create(context.Background(), owner, session.CreateParams{
		Category:       session.CategoryTechnical,
		TotalQuestions: 2,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := h.eng.Start(context.Background(), owner, sess.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if got.Status != session.StatusAbandoned || got.EndReason != session.CauseNoSource {
		t.Fatalf("expected abandonment, got %s/%s", got.Status, got.EndReason)
	}
}

func TestReportOnlyForTerminalSessions(t *testing.T) {
	h := newHarness(t)
	id, sub := h.started(t, 1)
	ctx := context.Background()
	_, err := h.eng.Report(ctx, owner, id)
	expectCode(t, err, apperrors.CodeNotComplete)

	if err := h.eng.FocusChanged(ctx, owner, id, true); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if err := h.eng.SubmitAnswer(ctx, owner, id, Submission{Text: "answer"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	expectEvent(t, sub, EventSessionComplete)

	report, err := h.eng.Report(ctx, owner, id)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if len(report.Responses) != 1 || report.Scores.Overall != 70 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Integrity.TabSwitches != 1 || len(report.Integrity.Events) != 1 {
		t.Fatalf("expected one focus incident, got %+v", report.Integrity)
	}
	_, err = h.eng.Report(ctx, "user-2", id)
	expectCode(t, err, apperrors.CodeNotOwner)
}

func TestHistoryIsScopedToCaller(t *testing.T) {
	h := newHarness(t)
	h.started(t, 1)
	page, err := h.eng.History(context.Background(), "user-2", storage.HistoryQuery{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Sessions) != 0 {
		t.Fatalf("expected no sessions for another participant")
	}
	page, err = h.eng.History(context.Background(), owner, storage.HistoryQuery{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(page.Sessions))
	}
}
