// Package engine runs interview sessions. Each live session is owned by one
// goroutine that serializes every command, evaluation result and timer fire
// for that session.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/platform/id"
	"github.com/louisbranch/mockinterview/internal/platform/timeouts"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/difficulty"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout"
	"github.com/louisbranch/mockinterview/internal/services/interview/evaluation"
	"github.com/louisbranch/mockinterview/internal/services/interview/questions"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage"
)

// Evaluator scores one answer.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (evaluation.Result, error)
}

// QuestionSource picks the next question for a session.
type QuestionSource interface {
	Next(ctx context.Context, q questions.Query) (session.Question, error)
}

// Config tunes the engine. Zero values fall back to defaults.
type Config struct {
	Difficulty        difficulty.Policy
	Integrity         integrity.Policy
	EvaluationTimeout time.Duration
	ReplyTimeout      time.Duration
	IdleTimeout       time.Duration
	MailboxSize       int
	SubscriberBuffer  int
	// FrameInterval is the client sampling period, used to turn frame
	// counts into seconds of visible face.
	FrameInterval time.Duration
	Scheduler     timeout.Scheduler
	Now           func() time.Time
	TelemetryLog  telemetry.Logger
}

func (c Config) normalized() Config {
	if c.Difficulty == (difficulty.Policy{}) {
		c.Difficulty = difficulty.DefaultPolicy()
	}
	if c.EvaluationTimeout <= 0 {
		c.EvaluationTimeout = 60 * time.Second
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = timeouts.ActorReply
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Minute
	}
	if c.MailboxSize <= 0 {
		c.MailboxSize = 64
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}
	if c.FrameInterval <= 0 {
		c.FrameInterval = time.Second
	}
	if c.Scheduler == nil {
		c.Scheduler = timeout.SystemScheduler{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.TelemetryLog == nil {
		c.TelemetryLog = log.Default()
	}
	return c
}

// Engine is the registry of live session actors.
type Engine struct {
	cfg       Config
	store     storage.Store
	evaluator Evaluator
	questions QuestionSource

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	actors  map[string]*actor
	closed  bool
	running sync.WaitGroup
}

// New builds an engine.
func New(store storage.Store, evaluator Evaluator, source QuestionSource, cfg Config) (*Engine, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if source == nil {
		return nil, errors.New("question source is required")
	}
	cfg = cfg.normalized()
	if err := cfg.Difficulty.Validate(); err != nil {
		return nil, fmt.Errorf("difficulty policy: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		store:     store,
		evaluator: evaluator,
		questions: source,
		baseCtx:   ctx,
		cancel:    cancel,
		actors:    map[string]*actor{},
	}, nil
}

// Close stops every actor and waits for them to exit.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.running.Wait()
}

// Live returns the number of loaded session actors.
func (e *Engine) Live() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.actors)
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().UTC()
}

// actorFor returns the live actor for id, loading it from the store if
// needed. Loading happens under the registry lock so a replacement actor
// always sees everything its predecessor persisted.
func (e *Engine) actorFor(ctx context.Context, sessionID string) (*actor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("engine is closed")
	}
	if a, ok := e.actors[sessionID]; ok {
		return a, nil
	}
	if !id.Valid(sessionID) {
		return nil, errSessionNotFound()
	}
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, mapStoreError(sessionID, err)
	}
	a := newActor(e, sess)
	e.actors[sessionID] = a
	e.running.Add(1)
	go func() {
		defer e.running.Done()
		a.run()
	}()
	return a, nil
}

func (e *Engine) release(a *actor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.actors[a.id] == a {
		delete(e.actors, a.id)
	}
}

type outcome[T any] struct {
	val T
	err error
}

const maxDeliveryAttempts = 3

// call delivers one request to the session's actor and waits for its reply.
// A request that reaches an actor after it stopped is retried on a fresh one.
func call[T any](ctx context.Context, e *Engine, sessionID string, build func(reply chan outcome[T]) message) (T, error) {
	var zero T
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return zero, apperrors.New(apperrors.CodeInvalidArgument, "session id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
	defer cancel()

	for attempt := 0; attempt < maxDeliveryAttempts; attempt++ {
		a, err := e.actorFor(ctx, sessionID)
		if err != nil {
			return zero, err
		}
		reply := make(chan outcome[T], 1)
		select {
		case a.mailbox <- build(reply):
		case <-a.done:
			continue
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		select {
		case out := <-reply:
			return out.val, out.err
		case <-a.done:
			select {
			case out := <-reply:
				return out.val, out.err
			default:
			}
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("session %s: actor unavailable", sessionID)
}

func errSessionNotFound() error {
	return apperrors.New(apperrors.CodeSessionNotFound, "session not found")
}

func mapStoreError(sessionID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return errSessionNotFound()
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	return fmt.Errorf("load session %s: %w", sessionID, err)
}

func checkOwner(s session.Session, caller string) error {
	if caller != s.OwnerID {
		return apperrors.New(apperrors.CodeNotOwner, "session belongs to another participant")
	}
	return nil
}

// Create persists a new scheduled session owned by caller.
func (e *Engine) Create(ctx context.Context, caller string, params session.CreateParams) (session.Session, error) {
	sessionID, err := id.NewID()
	if err != nil {
		return session.Session{}, fmt.Errorf("generate session id: %w", err)
	}
	params.OwnerID = caller
	sess, err := session.New(sessionID, params, e.now())
	if err != nil {
		return session.Session{}, err
	}
	if err := e.store.PutSession(ctx, sess); err != nil {
		return session.Session{}, fmt.Errorf("create session: %w", err)
	}
	log.Printf("interview: created session %s (%s, %d questions)", sess.ID, sess.Category, sess.TotalQuestions)
	return sess, nil
}

// Start issues the first question of a scheduled session.
func (e *Engine) Start(ctx context.Context, caller, sessionID string) (session.Session, error) {
	return call(ctx, e, sessionID, func(reply chan outcome[session.Session]) message {
		return startMsg{caller: caller, reply: reply}
	})
}

// JoinResult is what a (re)connecting participant needs to rebuild its view.
type JoinResult struct {
	Status          session.Status
	AlreadyComplete bool
	Completion      *Completion
	Question        *session.Question
	Progress        session.Progress
	// Evaluating is set while the last submission is being scored.
	Evaluating bool
}

// Join returns the current view of a session without changing it.
func (e *Engine) Join(ctx context.Context, caller, sessionID string) (JoinResult, error) {
	out, err := call(ctx, e, sessionID, func(reply chan outcome[joinReply]) message {
		return joinMsg{caller: caller, reply: reply}
	})
	return out.result, err
}

// Attach joins a session and subscribes to its events in one step, so no
// event can fall between the view and the stream. Terminal sessions return
// a nil subscription.
func (e *Engine) Attach(ctx context.Context, caller, sessionID string) (JoinResult, *Subscription, error) {
	out, err := call(ctx, e, sessionID, func(reply chan outcome[joinReply]) message {
		return joinMsg{caller: caller, subscribe: true, reply: reply}
	})
	return out.result, out.sub, err
}

// Submission is one answer from the participant.
type Submission struct {
	Text            string
	AudioRef        string
	DurationSeconds float64
	// TimedOut marks a client-side countdown expiry. The answer scores zero
	// and any partial text is kept for review.
	TimedOut bool
	// Telemetry is the client's sampler snapshot. When it holds no frames
	// the server-side accumulator is used instead.
	Telemetry *telemetry.Snapshot
}

// SubmitAnswer accepts an answer for asynchronous evaluation. The outcome
// arrives as events.
func (e *Engine) SubmitAnswer(ctx context.Context, caller, sessionID string, sub Submission) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return submitMsg{caller: caller, submission: sub, reply: reply}
	})
	return err
}

// Pause freezes an in-progress session.
func (e *Engine) Pause(ctx context.Context, caller, sessionID string) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return pauseMsg{caller: caller, reply: reply}
	})
	return err
}

// Resume continues a paused session with a full countdown.
func (e *Engine) Resume(ctx context.Context, caller, sessionID string) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return resumeMsg{caller: caller, reply: reply}
	})
	return err
}

// End finishes a session early.
func (e *Engine) End(ctx context.Context, caller, sessionID, reason string) (session.Session, error) {
	return call(ctx, e, sessionID, func(reply chan outcome[session.Session]) message {
		return endMsg{caller: caller, reason: reason, reply: reply}
	})
}

// Draft stores the participant's latest typed text for auto-submission.
func (e *Engine) Draft(ctx context.Context, caller, sessionID, text string) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return draftMsg{caller: caller, text: text, reply: reply}
	})
	return err
}

// RecordTranscription attaches voice metrics to an answered question, or
// keeps them for the open one.
func (e *Engine) RecordTranscription(ctx context.Context, caller, sessionID string, questionIndex int, voice session.Voice) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return transcriptionMsg{caller: caller, index: questionIndex, voice: voice, reply: reply}
	})
	return err
}

// RecordTelemetry feeds one camera frame to the accumulator and the
// integrity monitor.
func (e *Engine) RecordTelemetry(ctx context.Context, caller, sessionID string, frame telemetry.Frame) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return telemetryMsg{caller: caller, frame: frame, reply: reply}
	})
	return err
}

// FocusChanged records a page visibility change.
func (e *Engine) FocusChanged(ctx context.Context, caller, sessionID string, hidden bool) error {
	_, err := call(ctx, e, sessionID, func(reply chan outcome[struct{}]) message {
		return focusMsg{caller: caller, hidden: hidden, reply: reply}
	})
	return err
}

// ReclaimStale abandons sessions idle for longer than olderThan and returns
// how many were reclaimed.
func (e *Engine) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := e.now().Add(-olderThan)
	ids, err := e.store.ListStaleSessions(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("list stale sessions: %w", err)
	}
	reclaimed := 0
	for _, sessionID := range ids {
		ok, err := call(ctx, e, sessionID, func(reply chan outcome[bool]) message {
			return reclaimMsg{cutoff: cutoff, reply: reply}
		})
		if err != nil {
			log.Printf("interview: reclaim session %s: %v", sessionID, err)
			continue
		}
		if ok {
			reclaimed++
		}
	}
	return reclaimed, nil
}

// Get returns the persisted session.
func (e *Engine) Get(ctx context.Context, caller, sessionID string) (session.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if !id.Valid(sessionID) {
		return session.Session{}, errSessionNotFound()
	}
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, mapStoreError(sessionID, err)
	}
	if err := checkOwner(sess, caller); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

// History lists the caller's sessions, newest first.
func (e *Engine) History(ctx context.Context, caller string, q storage.HistoryQuery) (storage.SessionPage, error) {
	q.OwnerID = caller
	page, err := e.store.ListSessions(ctx, q)
	if err != nil {
		if _, ok := apperrors.As(err); ok {
			return storage.SessionPage{}, err
		}
		return storage.SessionPage{}, fmt.Errorf("list history: %w", err)
	}
	return page, nil
}
