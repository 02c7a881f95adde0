// Package evaluation scores answers against interview questions.
package evaluation

import (
	"context"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
)

// Request is everything an evaluator may use to score one answer.
type Request struct {
	SessionID     string
	Category      session.Category
	Focus         string
	Tone          session.Tone
	TargetCompany string
	TargetRole    string
	Question      session.Question
	Answer        session.Answer
	Voice         session.Voice
	Telemetry     telemetry.Snapshot
}

// Result is a scored answer.
type Result struct {
	Scores   scoring.Breakdown
	Analysis session.Analysis
	FollowUp string
}

// Evaluator scores answers. Implementations return rate-limit failures as
// apperrors.CodeRateLimited so callers can surface a retry delay.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// fillPresence derives the posture-and-presence dimension from telemetry
// when the evaluator did not score it.
func fillPresence(res Result, snap telemetry.Snapshot) Result {
	if res.Scores.PosturePresence.MaxScore > 0 {
		return res
	}
	res.Scores.Set(scoring.PosturePresence, scoring.DimensionScore{
		Score:    snap.Presence(),
		MaxScore: scoring.MaxScore,
		Feedback: presenceFeedback(snap),
	})
	return res
}

func presenceFeedback(snap telemetry.Snapshot) string {
	snap = snap.Derive()
	switch {
	case snap.Empty():
		return "No camera signal was captured for this answer."
	case snap.EyeContactScore < 50:
		return "Try to keep your eyes on the camera while answering."
	case snap.PostureScore < 50:
		return "Settle into a steady posture and keep your face in frame."
	default:
		return "Steady eye contact and posture."
	}
}
