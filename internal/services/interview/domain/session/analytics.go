package session

import (
	"math"
	"strings"
	"time"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
)

const (
	strengthAt       = 75
	weaknessBelow    = 60
	trendBand        = 5
	maxPlanItems     = 5
	minTrendResponse = 2
)

// BuildAnalytics derives the analytics block from the response log.
func BuildAnalytics(s Session, now time.Time) Analytics {
	a := Analytics{
		DurationSeconds: durationSeconds(s, now),
		Trend:           trendOf(s.Responses),
	}
	if len(s.Responses) == 0 {
		return a
	}
	for _, d := range scoring.Dimensions {
		mean := s.OverallScores.Get(d)
		switch {
		case mean >= strengthAt:
			a.Strengths = append(a.Strengths, d)
		case mean < weaknessBelow:
			a.Weaknesses = append(a.Weaknesses, d)
		}
	}
	a.ImprovementPlan = improvementPlan(s.Responses)
	return a
}

func durationSeconds(s Session, now time.Time) int {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !s.CompletedAt.IsZero() {
		end = s.CompletedAt
	}
	if end.Before(s.StartedAt) {
		return 0
	}
	return int(end.Sub(s.StartedAt) / time.Second)
}

// trendOf compares the mean overall of the first and second half of the
// responses.
func trendOf(responses []Response) Trend {
	if len(responses) < minTrendResponse {
		return TrendInsufficientData
	}
	half := len(responses) / 2
	first := meanOverall(responses[:half])
	second := meanOverall(responses[len(responses)-half:])
	switch diff := second - first; {
	case diff > trendBand:
		return TrendImproving
	case diff < -trendBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func meanOverall(responses []Response) float64 {
	if len(responses) == 0 {
		return 0
	}
	sum := 0
	for _, r := range responses {
		sum += r.Scores.Overall
	}
	return math.Round(float64(sum) / float64(len(responses)))
}

func improvementPlan(responses []Response) []string {
	seen := map[string]bool{}
	var plan []string
	for i := len(responses) - 1; i >= 0 && len(plan) < maxPlanItems; i-- {
		for _, tip := range responses[i].Analysis.Suggestions {
			key := strings.ToLower(strings.TrimSpace(tip))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			plan = append(plan, strings.TrimSpace(tip))
			if len(plan) == maxPlanItems {
				break
			}
		}
	}
	return plan
}
