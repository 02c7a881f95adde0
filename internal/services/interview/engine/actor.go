package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/integrity"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout"
	"github.com/louisbranch/mockinterview/internal/services/interview/evaluation"
	"github.com/louisbranch/mockinterview/internal/services/interview/questions"
	"github.com/louisbranch/mockinterview/internal/services/interview/storage"
)

// message is the closed set of inputs a session actor handles.
type message interface{ isMessage() }

type joinReply struct {
	result JoinResult
	sub    *Subscription
}

type (
	startMsg struct {
		caller string
		reply  chan outcome[session.Session]
	}
	joinMsg struct {
		caller    string
		subscribe bool
		reply     chan outcome[joinReply]
	}
	submitMsg struct {
		caller     string
		submission Submission
		reply      chan outcome[struct{}]
	}
	pauseMsg struct {
		caller string
		reply  chan outcome[struct{}]
	}
	resumeMsg struct {
		caller string
		reply  chan outcome[struct{}]
	}
	endMsg struct {
		caller string
		reason string
		reply  chan outcome[session.Session]
	}
	draftMsg struct {
		caller string
		text   string
		reply  chan outcome[struct{}]
	}
	transcriptionMsg struct {
		caller string
		index  int
		voice  session.Voice
		reply  chan outcome[struct{}]
	}
	telemetryMsg struct {
		caller string
		frame  telemetry.Frame
		reply  chan outcome[struct{}]
	}
	focusMsg struct {
		caller string
		hidden bool
		reply  chan outcome[struct{}]
	}
	reclaimMsg struct {
		cutoff time.Time
		reply  chan outcome[bool]
	}
	unsubscribeMsg struct {
		id int
	}
	evaluatedMsg struct {
		generation uint64
		result     evaluation.Result
		err        error
	}
	timeoutMsg struct {
		token uint64
	}
)

func (startMsg) isMessage()         {}
func (joinMsg) isMessage()          {}
func (submitMsg) isMessage()        {}
func (pauseMsg) isMessage()         {}
func (resumeMsg) isMessage()        {}
func (endMsg) isMessage()           {}
func (draftMsg) isMessage()         {}
func (transcriptionMsg) isMessage() {}
func (telemetryMsg) isMessage()     {}
func (focusMsg) isMessage()         {}
func (reclaimMsg) isMessage()       {}
func (unsubscribeMsg) isMessage()   {}
func (evaluatedMsg) isMessage()     {}
func (timeoutMsg) isMessage()       {}

// Subscription streams the events of one session. The channel is closed
// when the subscriber falls behind, the session ends or Close is called.
type Subscription struct {
	Events <-chan Event

	once   sync.Once
	cancel func()
	state  *subscriber
}

// Dropped reports whether Events was closed because the subscriber fell
// behind. It is meaningful once Events is closed.
func (s *Subscription) Dropped() bool {
	return s != nil && s.state != nil && s.state.dropped.Load()
}

type subscriber struct {
	ch      chan Event
	dropped atomic.Bool
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// pendingAnswer is a submission waiting for its evaluation.
type pendingAnswer struct {
	generation uint64
	cancel     context.CancelFunc
	answer     session.Answer
	voice      session.Voice
	snapshot   telemetry.Snapshot
	// accumulated is what the accumulator held at submission. It goes back
	// if the answer fails to evaluate.
	accumulated telemetry.Snapshot
	startedAt   time.Time
}

type actor struct {
	eng     *Engine
	id      string
	sess    session.Session
	mailbox chan message
	done    chan struct{}

	subs    map[int]*subscriber
	nextSub int

	generation uint64
	pending    *pendingAnswer
	timer      *timeout.Controller
	telemetry  *telemetry.Accumulator
	monitor    *integrity.Monitor
	draft      string
	// voices holds transcriptions that arrived before their answer was
	// recorded, by question index.
	voices map[int]session.Voice
}

func newActor(e *Engine, sess session.Session) *actor {
	a := &actor{
		eng:       e,
		id:        sess.ID,
		sess:      sess,
		mailbox:   make(chan message, e.cfg.MailboxSize),
		done:      make(chan struct{}),
		subs:      map[int]*subscriber{},
		telemetry: telemetry.NewAccumulator(e.cfg.TelemetryLog),
		monitor:   integrity.NewMonitor(e.cfg.Integrity),
		voices:    map[int]session.Voice{},
	}
	a.monitor.Restore(sess.Integrity)
	a.timer = timeout.NewController(e.cfg.Scheduler, func(token uint64) {
		a.post(timeoutMsg{token: token})
	})
	return a
}

// post enqueues an internal message unless the actor has stopped.
func (a *actor) post(m message) {
	select {
	case a.mailbox <- m:
	case <-a.done:
	}
}

func (a *actor) run() {
	defer a.stop()
	if a.sess.Status == session.StatusInProgress && a.sess.CurrentQuestion != nil {
		a.timer.Arm(a.sess.CurrentQuestion.Allowance())
	}
	idle := time.NewTimer(a.eng.cfg.IdleTimeout)
	defer idle.Stop()
	for {
		select {
		case m := <-a.mailbox:
			a.dispatch(m)
			if a.sess.Status.Terminal() && a.pending == nil {
				return
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.eng.cfg.IdleTimeout)
		case <-idle.C:
			if len(a.subs) == 0 && a.pending == nil {
				return
			}
			idle.Reset(a.eng.cfg.IdleTimeout)
		case <-a.eng.baseCtx.Done():
			return
		}
	}
}

func (a *actor) stop() {
	a.timer.Cancel()
	if a.pending != nil {
		a.pending.cancel()
		a.pending = nil
	}
	a.eng.release(a)
	close(a.done)
	for id, sub := range a.subs {
		close(sub.ch)
		delete(a.subs, id)
	}
}

func (a *actor) dispatch(m message) {
	switch m := m.(type) {
	case startMsg:
		s, err := a.handleStart(m)
		m.reply <- outcome[session.Session]{val: s, err: err}
	case joinMsg:
		r, err := a.handleJoin(m)
		m.reply <- outcome[joinReply]{val: r, err: err}
	case submitMsg:
		m.reply <- outcome[struct{}]{err: a.handleSubmit(m)}
	case pauseMsg:
		m.reply <- outcome[struct{}]{err: a.handlePause(m)}
	case resumeMsg:
		m.reply <- outcome[struct{}]{err: a.handleResume(m)}
	case endMsg:
		s, err := a.handleEnd(m)
		m.reply <- outcome[session.Session]{val: s, err: err}
	case draftMsg:
		m.reply <- outcome[struct{}]{err: a.handleDraft(m)}
	case transcriptionMsg:
		m.reply <- outcome[struct{}]{err: a.handleTranscription(m)}
	case telemetryMsg:
		m.reply <- outcome[struct{}]{err: a.handleTelemetry(m)}
	case focusMsg:
		m.reply <- outcome[struct{}]{err: a.handleFocus(m)}
	case reclaimMsg:
		ok, err := a.handleReclaim(m)
		m.reply <- outcome[bool]{val: ok, err: err}
	case unsubscribeMsg:
		if sub, ok := a.subs[m.id]; ok {
			close(sub.ch)
			delete(a.subs, m.id)
		}
	case evaluatedMsg:
		a.handleEvaluated(m)
	case timeoutMsg:
		a.handleTimeout(m)
	default:
		log.Printf("interview: session %s: unhandled message %T", a.id, m)
	}
}

func (a *actor) now() time.Time { return a.eng.now() }

func (a *actor) ctx() context.Context { return a.eng.baseCtx }

// commit persists next and only then makes it the live state. On failure
// the live state is unchanged.
func (a *actor) commit(next session.Session) error {
	if err := next.CheckInvariants(); err != nil {
		return fmt.Errorf("session %s: %w", a.id, err)
	}
	if err := a.eng.store.PutSession(a.ctx(), next); err != nil {
		return fmt.Errorf("persist session %s: %w", a.id, err)
	}
	a.sess = next
	return nil
}

func (a *actor) broadcast(t EventType, payload any) {
	ev := Event{Type: t, SessionID: a.id, At: a.now(), Payload: payload}
	for id, sub := range a.subs {
		select {
		case sub.ch <- ev:
		default:
			log.Printf("interview: session %s: dropping slow subscriber %d", a.id, id)
			sub.dropped.Store(true)
			close(sub.ch)
			delete(a.subs, id)
		}
	}
}

func (a *actor) broadcastError(err error) {
	a.broadcast(EventError, errorEventOf(err))
}

func (a *actor) subscribe() *Subscription {
	a.nextSub++
	subID := a.nextSub
	sub := &subscriber{ch: make(chan Event, a.eng.cfg.SubscriberBuffer)}
	a.subs[subID] = sub
	return &Subscription{
		Events: sub.ch,
		cancel: func() { a.post(unsubscribeMsg{id: subID}) },
		state:  sub,
	}
}

func (a *actor) questionIssued() QuestionIssued {
	out := QuestionIssued{Progress: a.sess.Progress()}
	if a.pending == nil && a.sess.CurrentQuestion != nil {
		q := *a.sess.CurrentQuestion
		out.Question = &q
		out.AllowanceSeconds = int(q.Allowance() / time.Second)
	}
	return out
}

// armTimer restarts the countdown of the open question at full allowance.
func (a *actor) armTimer() {
	if a.sess.Status != session.StatusInProgress || a.sess.CurrentQuestion == nil || a.pending != nil {
		return
	}
	a.timer.Arm(a.sess.CurrentQuestion.Allowance())
}

// discardPending invalidates the in-flight evaluation, if any.
func (a *actor) discardPending() {
	if a.pending == nil {
		return
	}
	a.pending.cancel()
	a.pending = nil
}

func (a *actor) resetQuestionState() {
	a.draft = ""
	a.telemetry.Reset()
	a.monitor.Interrupt()
}

func (a *actor) handleStart(m startMsg) (session.Session, error) {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return session.Session{}, err
	}
	if a.sess.Status != session.StatusScheduled {
		return session.Session{}, invalidState(a.sess, "start")
	}
	now := a.now()
	next := a.sess.Clone()
	q, err := a.eng.questions.Next(a.ctx(), questions.Query{
		Category:   next.Category,
		Focus:      next.Focus,
		Difficulty: next.Difficulty.Current,
	})
	if err != nil {
		log.Printf("interview: session %s: no first question: %v", a.id, err)
		if err := next.Abandon(session.CauseNoSource, now); err != nil {
			return session.Session{}, err
		}
		if err := a.commit(next); err != nil {
			return session.Session{}, err
		}
		a.broadcast(EventSessionComplete, completionOf(a.sess))
		return a.sess.Clone(), nil
	}
	if err := next.Start(q, now); err != nil {
		return session.Session{}, err
	}
	if err := a.commit(next); err != nil {
		return session.Session{}, err
	}
	a.resetQuestionState()
	a.broadcast(EventQuestionIssued, a.questionIssued())
	a.armTimer()
	log.Printf("interview: session %s started", a.id)
	return a.sess.Clone(), nil
}

func (a *actor) handleJoin(m joinMsg) (joinReply, error) {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return joinReply{}, err
	}
	if a.sess.Status.Terminal() {
		c := completionOf(a.sess)
		return joinReply{result: JoinResult{
			Status:          a.sess.Status,
			AlreadyComplete: true,
			Completion:      &c,
			Progress:        a.sess.Progress(),
		}}, nil
	}
	issued := a.questionIssued()
	out := joinReply{result: JoinResult{
		Status:     a.sess.Status,
		Question:   issued.Question,
		Progress:   issued.Progress,
		Evaluating: a.pending != nil,
	}}
	if m.subscribe {
		out.sub = a.subscribe()
	}
	return out, nil
}

func (a *actor) handleSubmit(m submitMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	return a.submit(m.submission, false)
}

// submit validates an answer and hands it to the evaluator. Sentinel
// answers skip evaluation and are applied at once.
func (a *actor) submit(sub Submission, auto bool) error {
	if a.sess.Status != session.StatusInProgress {
		return invalidState(a.sess, "answer")
	}
	if a.sess.CurrentQuestion == nil {
		return apperrors.New(apperrors.CodeInvalidState, "no open question")
	}
	if a.pending != nil {
		return apperrors.New(apperrors.CodeSessionBusy, "an answer is already being evaluated")
	}
	text := strings.TrimSpace(sub.Text)
	sentinel := sub.TimedOut || timeout.IsSentinel(text)
	if timeout.IsSentinel(text) {
		text = ""
	}
	if !sentinel && text == "" {
		return apperrors.New(apperrors.CodeEmptyAnswer, "answer is empty")
	}

	a.timer.Cancel()
	accumulated := a.telemetry.SnapshotAndReset()
	snap := accumulated
	if sub.Telemetry != nil && sub.Telemetry.FramesAssessed > 0 {
		snap = *sub.Telemetry
	}
	snap = snap.Derive()

	now := a.now()
	index := a.sess.QuestionsAnswered
	duration := sub.DurationSeconds
	if duration <= 0 {
		duration = now.Sub(a.sess.QuestionIssuedAt).Seconds()
	}
	voice := a.voices[index]
	delete(a.voices, index)

	a.generation++
	ctx, cancel := context.WithTimeout(a.ctx(), a.eng.cfg.EvaluationTimeout)
	a.pending = &pendingAnswer{
		generation: a.generation,
		cancel:     cancel,
		answer:     session.Answer{
			Text:            text,
			AudioRef:        strings.TrimSpace(sub.AudioRef),
			DurationSeconds: duration,
			AutoSubmitted:   auto,
			Sentinel:        sentinel,
		},
		voice:       voice,
		snapshot:    snap,
		accumulated: accumulated,
		startedAt:   a.sess.QuestionIssuedAt,
	}
	a.draft = ""
	a.monitor.Interrupt()
	a.broadcast(EventAnswerProcessing, AnswerProcessing{QuestionIndex: index, AutoSubmitted: auto})

	if sentinel {
		a.handleEvaluated(evaluatedMsg{generation: a.generation})
		return nil
	}

	req := evaluation.Request{
		SessionID:     a.id,
		Category:      a.sess.Category,
		Focus:         a.sess.Focus,
		Tone:          a.sess.Tone,
		TargetCompany: a.sess.TargetCompany,
		TargetRole:    a.sess.TargetRole,
		Question:      *a.sess.CurrentQuestion,
		Answer:        a.pending.answer,
		Voice:         voice,
		Telemetry:     snap,
	}
	generation := a.generation
	evaluator := a.eng.evaluator
	go func() {
		res, err := evaluator.Evaluate(ctx, req)
		a.post(evaluatedMsg{generation: generation, result: res, err: err})
	}()
	return nil
}

func (a *actor) handleEvaluated(m evaluatedMsg) {
	p := a.pending
	if p == nil || p.generation != m.generation || a.sess.Status.Terminal() {
		log.Printf("interview: session %s: discarding stale evaluation %d", a.id, m.generation)
		return
	}
	a.pending = nil
	p.cancel()

	if m.err != nil {
		log.Printf("interview: session %s: evaluation failed: %v", a.id, m.err)
		err := m.err
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.Wrap(apperrors.CodeEvaluationFailed, "evaluation failed", err)
		}
		if !p.voice.Empty() {
			a.voices[a.sess.QuestionsAnswered] = p.voice
		}
		if !p.answer.Sentinel && a.draft == "" {
			a.draft = p.answer.Text
		}
		a.telemetry.Restore(p.accumulated)
		a.broadcastError(err)
		a.armTimer()
		return
	}

	now := a.now()
	res := m.result
	if res.Scores.PosturePresence.MaxScore == 0 && !p.answer.Sentinel {
		res.Scores.Set(scoring.PosturePresence, scoring.DimensionScore{Score: p.snapshot.Presence(), MaxScore: scoring.MaxScore})
	}
	resp := session.Response{
		Answer:       p.answer,
		Voice:        p.voice,
		BodyLanguage: session.BodyLanguage{
			EyeContact:         p.snapshot.EyeContactScore,
			Posture:            p.snapshot.PostureScore,
			FidgetCount:        p.snapshot.FidgetFrames,
			FaceVisibleSeconds: float64(p.snapshot.FramesAssessed-p.snapshot.FaceMissingFrames) * a.eng.cfg.FrameInterval.Seconds(),
		},
		Scores:    res.Scores,
		Analysis:  res.Analysis,
		FollowUp:  res.FollowUp,
		StartedAt: p.startedAt,
	}

	next := a.sess.Clone()
	adj, done, err := next.RecordResponse(resp, a.eng.cfg.Difficulty, now)
	if err != nil {
		a.broadcastError(err)
		a.armTimer()
		return
	}
	if !done {
		q, err := a.eng.questions.Next(a.ctx(), questions.Query{
			Category:   next.Category,
			Focus:      next.Focus,
			Difficulty: next.Difficulty.Current,
			Exclude:    next.AskedQuestionIDs(),
		})
		if err != nil {
			log.Printf("interview: session %s: question source failed: %v", a.id, err)
			if _, err := next.End(session.CauseNoSource, now); err != nil {
				a.broadcastError(err)
				return
			}
		} else {
			next.Issue(q, now)
		}
	}
	if err := a.commit(next); err != nil {
		log.Printf("interview: session %s: %v", a.id, err)
		a.broadcastError(err)
		a.armTimer()
		return
	}

	a.broadcast(EventAnswerEvaluated, a.sess.Responses[len(a.sess.Responses)-1])
	if adj != nil {
		a.broadcast(EventDifficultyAdjusted, *adj)
	}
	if a.sess.Status.Terminal() {
		a.timer.Cancel()
		a.broadcast(EventSessionComplete, completionOf(a.sess))
		log.Printf("interview: session %s %s (%s)", a.id, a.sess.Status, a.sess.EndReason)
		return
	}
	a.resetQuestionState()
	if a.sess.Status == session.StatusInProgress {
		a.broadcast(EventQuestionIssued, a.questionIssued())
		a.armTimer()
	}
}

func (a *actor) handleTimeout(m timeoutMsg) {
	if !a.timer.Accept(m.token) {
		return
	}
	if a.sess.Status != session.StatusInProgress || a.pending != nil {
		return
	}
	voice := a.voices[a.sess.QuestionsAnswered]
	text, sentinel := timeout.AutoSubmission(a.draft, voice.Transcription)
	if err := a.submit(Submission{Text: text, TimedOut: sentinel}, true); err != nil {
		a.broadcastError(err)
	}
}

func (a *actor) handlePause(m pauseMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	next := a.sess.Clone()
	if err := next.Pause(a.now()); err != nil {
		return err
	}
	if err := a.commit(next); err != nil {
		return err
	}
	a.timer.Cancel()
	a.monitor.Interrupt()
	a.broadcast(EventSessionPaused, StatusChanged{Status: a.sess.Status, Progress: a.sess.Progress()})
	return nil
}

func (a *actor) handleResume(m resumeMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	next := a.sess.Clone()
	if err := next.Resume(a.now()); err != nil {
		return err
	}
	if err := a.commit(next); err != nil {
		return err
	}
	a.broadcast(EventSessionResumed, a.questionIssued())
	a.armTimer()
	return nil
}

func (a *actor) handleEnd(m endMsg) (session.Session, error) {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return session.Session{}, err
	}
	next := a.sess.Clone()
	if _, err := next.End(m.reason, a.now()); err != nil {
		return session.Session{}, err
	}
	if err := a.commit(next); err != nil {
		return session.Session{}, err
	}
	a.finish()
	return a.sess.Clone(), nil
}

func (a *actor) handleReclaim(m reclaimMsg) (bool, error) {
	if a.sess.Status.Terminal() || !a.sess.LastActivityAt.Before(m.cutoff) {
		return false, nil
	}
	next := a.sess.Clone()
	if err := next.Abandon(session.CauseStale, a.now()); err != nil {
		return false, err
	}
	if err := a.commit(next); err != nil {
		return false, err
	}
	a.finish()
	return true, nil
}

// finish tears down per-question state after the session became terminal.
func (a *actor) finish() {
	a.discardPending()
	a.timer.Cancel()
	a.broadcast(EventSessionComplete, completionOf(a.sess))
	log.Printf("interview: session %s %s (%s)", a.id, a.sess.Status, a.sess.EndReason)
}

func (a *actor) handleDraft(m draftMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	if a.sess.Status != session.StatusInProgress && a.sess.Status != session.StatusPaused {
		return invalidState(a.sess, "draft")
	}
	a.draft = m.text
	a.sess.Touch(a.now())
	return nil
}

func (a *actor) handleTranscription(m transcriptionMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	switch {
	case m.index >= 0 && m.index < len(a.sess.Responses):
		next := a.sess.Clone()
		if err := next.AttachVoice(m.index, m.voice); err != nil {
			return err
		}
		if err := a.commit(next); err != nil {
			return err
		}
		a.broadcast(EventTranscriptionRecorded, TranscriptionRecorded{QuestionIndex: m.index, Voice: m.voice})
		return nil
	case m.index == a.sess.QuestionsAnswered && !a.sess.Status.Terminal():
		if a.pending != nil {
			// The answer is already with the evaluator; keep the metrics
			// with it so they land on the recorded response.
			a.pending.voice = m.voice
		} else {
			a.voices[m.index] = m.voice
		}
		a.sess.Touch(a.now())
		a.broadcast(EventTranscriptionRecorded, TranscriptionRecorded{QuestionIndex: m.index, Voice: m.voice, Pending: true})
		return nil
	default:
		return apperrors.New(apperrors.CodeInvalidArgument, fmt.Sprintf("no question at index %d", m.index))
	}
}

func (a *actor) handleTelemetry(m telemetryMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	if a.sess.Status != session.StatusInProgress {
		return nil
	}
	now := a.now()
	frame := m.frame
	frame.At = now
	a.telemetry.Record(frame)
	a.sess.Touch(now)

	decision := a.monitor.Observe(integrity.StatusOf(frame), now)
	switch decision.Action {
	case integrity.ActionWarn:
		a.logIntegrity(storage.IntegrityWarning, string(decision.Status), decision.Count, now)
		next := a.sess.Clone()
		next.RecordIntegrity(a.monitor.State())
		if err := a.commit(next); err != nil {
			log.Printf("interview: session %s: %v", a.id, err)
		}
		a.broadcast(EventIntegrityWarning, IntegrityWarning{Count: decision.Count, Limit: decision.Limit, Status: decision.Status})
	case integrity.ActionTerminate:
		a.logIntegrity(storage.IntegrityTerminate, string(decision.Status), decision.Count, now)
		return a.terminateForIntegrity(now)
	}
	return nil
}

// terminateForIntegrity abandons the session on the monitor's command.
func (a *actor) terminateForIntegrity(now time.Time) error {
	next := a.sess.Clone()
	next.RecordIntegrity(a.monitor.State())
	if err := next.Abandon(session.CauseIntegrity, now); err != nil {
		return err
	}
	if err := a.commit(next); err != nil {
		return err
	}
	a.finish()
	return nil
}

func (a *actor) handleFocus(m focusMsg) error {
	if err := checkOwner(a.sess, m.caller); err != nil {
		return err
	}
	if !m.hidden || a.sess.Status != session.StatusInProgress {
		return nil
	}
	now := a.now()
	decision := a.monitor.FocusHidden()
	a.logIntegrity(storage.IntegrityFocus, "", decision.Count, now)
	next := a.sess.Clone()
	next.RecordIntegrity(a.monitor.State())
	next.Touch(now)
	if err := a.commit(next); err != nil {
		log.Printf("interview: session %s: %v", a.id, err)
	}
	a.broadcast(EventFocusWarning, FocusWarning{Count: decision.Count, Displayed: decision.Displayed, Cap: decision.Cap})
	return nil
}

func (a *actor) logIntegrity(kind storage.IntegrityEventKind, status string, count int, at time.Time) {
	err := a.eng.store.AppendIntegrityEvent(a.ctx(), storage.IntegrityEvent{
		SessionID: a.id,
		Kind:      kind,
		Status:    status,
		Count:     count,
		At:        at,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("interview: session %s: append integrity event: %v", a.id, err)
	}
}

func invalidState(s session.Session, op string) error {
	if s.Status == session.StatusAbandoned {
		return apperrors.New(apperrors.CodeSessionAbandoned, "session was abandoned")
	}
	return apperrors.New(apperrors.CodeInvalidState, fmt.Sprintf("cannot %s a session that is %s", op, s.Status))
}
