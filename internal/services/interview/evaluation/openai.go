package evaluation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/mockinterview/internal/platform/errors"
	platformotel "github.com/louisbranch/mockinterview/internal/platform/otel"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
)

const (
	defaultChatURL      = "https://api.openai.com/v1/chat/completions"
	defaultModel        = "gpt-4o-mini"
	defaultMaxAttempts  = 3
	defaultMaxRetryWait = 20 * time.Second
	errorBodyLimit      = 4096
)

// ChatConfig configures the chat-completions evaluator.
type ChatConfig struct {
	URL          string
	APIKey       string
	Model        string
	HTTPClient   *http.Client
	MaxAttempts  uint
	MaxRetryWait time.Duration
	// BackOff overrides the retry schedule. Tests use a short constant one.
	BackOff backoff.BackOff
}

// ChatEvaluator asks an OpenAI-compatible chat-completions endpoint to score
// answers as JSON.
type ChatEvaluator struct {
	cfg    ChatConfig
	tracer trace.Tracer
}

// NewChatEvaluator builds a chat-completions evaluator.
func NewChatEvaluator(cfg ChatConfig) *ChatEvaluator {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = defaultChatURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = defaultMaxRetryWait
	}
	return &ChatEvaluator{cfg: cfg, tracer: platformotel.Tracer("interview/evaluation")}
}

// Evaluate scores one answer, retrying transient failures.
func (e *ChatEvaluator) Evaluate(ctx context.Context, req Request) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "evaluation.chat",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("interview.session_id", req.SessionID),
			attribute.String("interview.category", string(req.Category)),
			attribute.String("interview.difficulty", string(req.Question.Difficulty)),
		),
	)
	defer span.End()

	bo := e.cfg.BackOff
	if bo == nil {
		bo = backoff.NewExponentialBackOff()
	}
	attempts := 0
	res, err := backoff.Retry(ctx, func() (Result, error) {
		attempts++
		return e.once(ctx, req)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(e.cfg.MaxAttempts),
		backoff.WithMaxElapsedTime(e.cfg.MaxRetryWait),
	)
	span.SetAttributes(attribute.Int("evaluation.attempts", attempts))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "evaluation failed")
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.Wrap(apperrors.CodeEvaluationFailed, "evaluation failed", err)
		}
		return Result{}, err
	}
	return fillPresence(res, req.Telemetry), nil
}

func (e *ChatEvaluator) once(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model:          e.cfg.Model,
		Temperature:    0.2,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Messages:       []chatMessage{
			{Role: "system", Content: systemPrompt(req)},
			{Role: "user", Content: userPrompt(req)},
		},
	})
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("marshal chat request: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, backoff.Permanent(fmt.Errorf("build chat request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(e.cfg.APIKey); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := e.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, backoff.Permanent(ctx.Err())
		}
		return Result{}, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		wait := retryAfter(resp.Header.Get("Retry-After"))
		// The cause tells backoff.Retry to wait out the window before the next try.
		rl := apperrors.RateLimited("evaluation service is rate limited", wait, &backoff.RetryAfterError{Duration: wait})
		if wait > e.cfg.MaxRetryWait {
			return Result{}, backoff.Permanent(rl)
		}
		return Result{}, rl
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		err := fmt.Errorf("chat request status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 {
			return Result{}, err
		}
		return Result{}, backoff.Permanent(apperrors.Wrap(apperrors.CodeEvaluationFailed, "evaluation request rejected", err))
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return Result{}, errors.New("chat response has no choices")
	}
	return parseVerdict(payload.Choices[0].Message.Content)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type verdictScore struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback"`
}

type verdict struct {
	Scores        map[string]verdictScore `json:"scores"`
	Strengths     []string                `json:"strengths"`
	Weaknesses    []string                `json:"weaknesses"`
	Suggestions   []string                `json:"suggestions"`
	TopicsCovered []string                `json:"topics_covered"`
	TopicsMissed  []string                `json:"topics_missed"`
	FollowUp      string                  `json:"follow_up"`
}

func parseVerdict(content string) (Result, error) {
	content = stripCodeFence(content)
	var v verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Result{}, fmt.Errorf("parse verdict: %w", err)
	}
	if len(v.Scores) == 0 {
		return Result{}, errors.New("verdict has no scores")
	}
	var res Result
	for _, d := range scoring.Dimensions {
		s, ok := v.Scores[string(d)]
		if !ok {
			continue
		}
		res.Scores.Set(d, scoring.DimensionScore{Score: s.Score, MaxScore: scoring.MaxScore, Feedback: s.Feedback})
	}
	res.Analysis = session.Analysis{
		Strengths:     v.Strengths,
		Weaknesses:    v.Weaknesses,
		Suggestions:   v.Suggestions,
		TopicsCovered: v.TopicsCovered,
		TopicsMissed:  v.TopicsMissed,
	}
	res.FollowUp = strings.TrimSpace(v.FollowUp)
	return res, nil
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```")
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return time.Second
}
