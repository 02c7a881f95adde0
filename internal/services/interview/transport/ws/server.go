// Package ws serves the realtime interview protocol over websockets.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	"github.com/louisbranch/mockinterview/internal/platform/requestctx"
	"github.com/louisbranch/mockinterview/internal/platform/timeouts"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
	"github.com/louisbranch/mockinterview/internal/services/interview/engine"
	"github.com/louisbranch/mockinterview/internal/services/interview/i18n"
	"github.com/louisbranch/mockinterview/internal/services/interview/identity"
	"golang.org/x/net/websocket"
	"golang.org/x/text/message"
)

const (
	maxFramePayloadBytes   = 64 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxAnswerRunes = 10000
	maxReasonRunes = 280
)

// Client frame types.
const (
	frameJoin          = "session.join"
	frameSubmit        = "answer.submit"
	frameDraft         = "answer.draft"
	framePause         = "session.pause"
	frameResume        = "session.resume"
	frameEnd           = "session.end"
	frameTranscription = "transcription.complete"
	frameTelemetry     = "telemetry.sample"
	frameVisibility    = "focus.visibility"
)

// Server-only frame types. Event frames reuse the engine event names.
const (
	frameJoined = "session.joined"
	frameAck    = "ack"
	frameError  = "error"
)

// Sessions is the engine surface the protocol drives.
type Sessions interface {
	Attach(ctx context.Context, caller, sessionID string) (engine.JoinResult, *engine.Subscription, error)
	SubmitAnswer(ctx context.Context, caller, sessionID string, sub engine.Submission) error
	Draft(ctx context.Context, caller, sessionID, text string) error
	Pause(ctx context.Context, caller, sessionID string) error
	Resume(ctx context.Context, caller, sessionID string) error
	End(ctx context.Context, caller, sessionID, reason string) (session.Session, error)
	RecordTranscription(ctx context.Context, caller, sessionID string, questionIndex int, voice session.Voice) error
	RecordTelemetry(ctx context.Context, caller, sessionID string, frame telemetry.Frame) error
	FocusChanged(ctx context.Context, caller, sessionID string, hidden bool) error
}

// Authenticator resolves a bearer token into a caller.
type Authenticator interface {
	Verify(token string) (identity.Claims, error)
}

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	Kind              string `json:"kind"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status        string `json:"status"`
	SessionStatus string `json:"session_status,omitempty"`
}

type joinedPayload struct {
	SessionID  string            `json:"session_id"`
	Status     session.Status    `json:"status"`
	Question   *session.Question `json:"question,omitempty"`
	Progress   session.Progress  `json:"progress"`
	Evaluating bool              `json:"evaluating"`
	ServerTime string            `json:"server_time"`
}

type submitPayload struct {
	Answer          string              `json:"answer"`
	AudioRef        string              `json:"audio_ref,omitempty"`
	DurationSeconds float64             `json:"duration_seconds,omitempty"`
	TimedOut        bool                `json:"timed_out,omitempty"`
	Telemetry       *telemetry.Snapshot `json:"telemetry,omitempty"`
}

type draftPayload struct {
	Text string `json:"text"`
}

type endPayload struct {
	Reason string `json:"reason"`
}

type transcriptionPayload struct {
	QuestionIndex *int          `json:"question_index"`
	Voice         session.Voice `json:"voice"`
}

type visibilityPayload struct {
	Hidden bool `json:"hidden"`
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Handler upgrades authenticated requests on /ws?session_id= to the
// interview protocol.
type Handler struct {
	sessions    Sessions
	auth        Authenticator
	readTimeout time.Duration
}

// NewHandler creates the websocket handler.
func NewHandler(sessions Sessions, auth Authenticator) *Handler {
	return &Handler{sessions: sessions, auth: auth, readTimeout: timeouts.WSFrameRead}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	if h.auth == nil {
		http.Error(w, "websocket auth is not configured", http.StatusServiceUnavailable)
		return
	}
	token := identity.TokenFromRequest(r)
	if token == "" {
		log.Printf("interview: websocket unauthorized: missing token remote=%s", r.RemoteAddr)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.Verify(token)
	if err != nil {
		log.Printf("interview: websocket unauthorized: remote=%s err=%v", r.RemoteAddr, err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	tag := i18n.Resolve(claims.Language, r.Header.Get("Accept-Language"))
	ctx := requestctx.WithUserID(r.Context(), claims.UserID)
	ctx = requestctx.WithLanguage(ctx, tag)

	websocket.Handler(func(conn *websocket.Conn) {
		h.serveConn(conn, sessionID)
	}).ServeHTTP(w, r.WithContext(ctx))
}

// connection is the per-socket protocol state.
type connection struct {
	sessions  Sessions
	sessionID string
	userID    string
	printer   *message.Printer
	peer      *wsPeer

	mu     sync.Mutex
	joined bool
	sub    *engine.Subscription
	pumps  sync.WaitGroup
}

func (h *Handler) serveConn(conn *websocket.Conn, sessionID string) {
	ctx := conn.Request().Context()
	c := &connection{
		sessions:  h.sessions,
		sessionID: sessionID,
		userID:    requestctx.UserIDFromContext(ctx),
		printer:   i18n.Printer(requestctx.LanguageFromContext(ctx)),
		peer:      newWSPeer(json.NewEncoder(conn)),
	}
	defer func() {
		c.detach()
		_ = conn.Close()
		c.pumps.Wait()
	}()

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		if h.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(h.readTimeout))
		}
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				return
			}
			decodeErrors++
			_ = c.writeError("", apperrors.New(apperrors.CodeInvalidArgument, "invalid frame payload"))
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			// The decoder cannot resync after a syntax error.
			decoder = json.NewDecoder(conn)
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = c.writeError(frame.RequestID, apperrors.New(apperrors.CodeInvalidArgument, "payload too large"))
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = c.writeError(frame.RequestID, apperrors.RateLimited("rate limit exceeded", time.Second, nil))
			return
		}

		c.handleFrame(ctx, frame)
	}
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *connection) handleFrame(ctx context.Context, frame wsFrame) {
	if frame.Type == frameJoin {
		c.handleJoin(ctx, frame)
		return
	}
	if !c.isJoined() {
		_ = c.writeError(frame.RequestID, apperrors.New(apperrors.CodeInvalidState, "join the session before sending commands"))
		return
	}

	var err error
	switch frame.Type {
	case frameSubmit:
		err = c.handleSubmit(ctx, frame)
	case frameDraft:
		var payload draftPayload
		if err = decodePayload(frame, &payload); err == nil {
			err = c.sessions.Draft(ctx, c.userID, c.sessionID, truncateRunes(payload.Text, maxAnswerRunes))
		}
	case framePause:
		err = c.sessions.Pause(ctx, c.userID, c.sessionID)
	case frameResume:
		err = c.sessions.Resume(ctx, c.userID, c.sessionID)
	case frameEnd:
		err = c.handleEnd(ctx, frame)
		if err == nil {
			return
		}
	case frameTranscription:
		err = c.handleTranscription(ctx, frame)
	case frameTelemetry:
		var sample telemetry.Frame
		if err = decodePayload(frame, &sample); err == nil {
			sample.At = time.Time{}
			err = c.sessions.RecordTelemetry(ctx, c.userID, c.sessionID, sample)
		}
	case frameVisibility:
		var payload visibilityPayload
		if err = decodePayload(frame, &payload); err == nil {
			err = c.sessions.FocusChanged(ctx, c.userID, c.sessionID, payload.Hidden)
		}
	default:
		err = apperrors.New(apperrors.CodeInvalidArgument, "unsupported frame type")
	}
	if err != nil {
		_ = c.writeError(frame.RequestID, err)
		return
	}
	c.ack(frame.RequestID, "")
}

func (c *connection) handleJoin(ctx context.Context, frame wsFrame) {
	c.detach()
	res, sub, err := c.sessions.Attach(ctx, c.userID, c.sessionID)
	if err != nil {
		_ = c.writeError(frame.RequestID, err)
		return
	}
	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	if res.AlreadyComplete {
		var done engine.Completion
		if res.Completion != nil {
			done = *res.Completion
		}
		_ = c.peer.writeFrame(wsFrame{
			Type:      string(engine.EventSessionAlreadyDone),
			RequestID: frame.RequestID,
			Payload:   mustJSON(completionPayloadOf(c.printer, done)),
		})
		if sub != nil {
			sub.Close()
		}
		return
	}

	_ = c.peer.writeFrame(wsFrame{
		Type:      frameJoined,
		RequestID: frame.RequestID,
		Payload:   mustJSON(joinedPayload{
			SessionID:  c.sessionID,
			Status:     res.Status,
			Question:   res.Question,
			Progress:   res.Progress,
			Evaluating: res.Evaluating,
			ServerTime: time.Now().UTC().Format(time.RFC3339),
		}),
	})
	if sub == nil {
		return
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	c.pumps.Add(1)
	go c.pump(sub)
}

// pump forwards session events until the subscription closes. A
// subscription the engine dropped for falling behind is reported so the
// client rejoins.
func (c *connection) pump(sub *engine.Subscription) {
	defer c.pumps.Done()
	for ev := range sub.Events {
		if err := c.peer.writeFrame(eventFrame(c.printer, ev)); err != nil {
			log.Printf("interview: session %s: write event %s: %v", c.sessionID, ev.Type, err)
		}
	}
	if !sub.Dropped() {
		return
	}
	c.mu.Lock()
	current := c.sub == sub
	if current {
		c.sub = nil
	}
	c.mu.Unlock()
	if !current {
		return
	}
	log.Printf("interview: session %s: subscription dropped, asking client to rejoin", c.sessionID)
	_ = c.writeError("", apperrors.New(apperrors.CodeSubscriptionDropped, "event stream fell behind, send session.join to resume"))
}

func (c *connection) detach() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}

func (c *connection) isJoined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

func (c *connection) handleSubmit(ctx context.Context, frame wsFrame) error {
	var payload submitPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	if utf8.RuneCountInString(payload.Answer) > maxAnswerRunes {
		return apperrors.New(apperrors.CodeInvalidArgument, "answer must be at most 10000 characters")
	}
	return c.sessions.SubmitAnswer(ctx, c.userID, c.sessionID, engine.Submission{
		Text:            payload.Answer,
		AudioRef:        payload.AudioRef,
		DurationSeconds: payload.DurationSeconds,
		TimedOut:        payload.TimedOut,
		Telemetry:       payload.Telemetry,
	})
}

func (c *connection) handleEnd(ctx context.Context, frame wsFrame) error {
	var payload endPayload
	if len(frame.Payload) > 0 {
		if err := decodePayload(frame, &payload); err != nil {
			return err
		}
	}
	ended, err := c.sessions.End(ctx, c.userID, c.sessionID, truncateRunes(payload.Reason, maxReasonRunes))
	if err != nil {
		return err
	}
	c.ack(frame.RequestID, string(ended.Status))
	return nil
}

func (c *connection) handleTranscription(ctx context.Context, frame wsFrame) error {
	var payload transcriptionPayload
	if err := decodePayload(frame, &payload); err != nil {
		return err
	}
	if payload.QuestionIndex == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "question_index is required")
	}
	payload.Voice.Transcription = truncateRunes(payload.Voice.Transcription, maxAnswerRunes)
	return c.sessions.RecordTranscription(ctx, c.userID, c.sessionID, *payload.QuestionIndex, payload.Voice)
}

func (c *connection) ack(requestID, status string) {
	if requestID == "" {
		return
	}
	_ = c.peer.writeFrame(wsFrame{
		Type:      frameAck,
		RequestID: requestID,
		Payload:   mustJSON(ackEnvelope{Result: ackResult{Status: "ok", SessionStatus: status}}),
	})
}

func (c *connection) writeError(requestID string, err error) error {
	if _, ok := apperrors.As(err); !ok {
		log.Printf("interview: session %s: %v", c.sessionID, err)
	}
	return c.peer.writeFrame(wsFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload:   mustJSON(wsErrorEnvelope{Error: wsErrorOf(err)}),
	})
}

func wsErrorOf(err error) wsError {
	msg := "internal error"
	if e, ok := apperrors.As(err); ok {
		msg = e.Error()
	}
	return wsError{
		Code:              string(apperrors.CodeOf(err)),
		Message:           msg,
		Kind:              string(apperrors.ProtocolKind(err)),
		RetryAfterSeconds: seconds(apperrors.RetryAfterOf(err)),
	}
}

func decodePayload(frame wsFrame, v any) error {
	if len(frame.Payload) == 0 {
		return apperrors.New(apperrors.CodeInvalidArgument, "payload is required")
	}
	if err := json.Unmarshal(frame.Payload, v); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid "+frame.Type+" payload", err)
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
