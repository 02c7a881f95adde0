package evaluation

import (
	"context"
	"strings"
	"unicode"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/session"
)

// Heuristic scores answers offline from length, topic coverage and speech
// metrics. It is used when no model endpoint is configured.
type Heuristic struct{}

// Evaluate scores req without any network call.
func (Heuristic) Evaluate(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	words := wordCount(req.Answer.Text)
	covered, missed := topicCoverage(req.Answer.Text, req.Question.ExpectedTopics)

	length := clampScore(words * 100 / 120)
	coverage := 60
	if total := len(covered) + len(missed); total > 0 {
		coverage = len(covered) * 100 / total
	}
	structure := clampScore(40 + 15*sentenceCount(req.Answer.Text))
	confidence := 70
	if !req.Voice.Empty() {
		confidence = clampScore(100 - 5*req.Voice.FillerWords - 5*req.Voice.Hesitations)
	}

	var res Result
	res.Scores.Set(scoring.Correctness, scoring.DimensionScore{Score: (coverage*2 + length) / 3, Feedback: coverageFeedback(missed)})
	res.Scores.Set(scoring.Reasoning, scoring.DimensionScore{Score: (coverage + length) / 2})
	res.Scores.Set(scoring.Communication, scoring.DimensionScore{Score: (length + structure) / 2})
	res.Scores.Set(scoring.Structure, scoring.DimensionScore{Score: structure})
	res.Scores.Set(scoring.Confidence, scoring.DimensionScore{Score: confidence})
	res.Analysis = session.Analysis{TopicsCovered: covered, TopicsMissed: missed}
	if len(covered) > 0 {
		res.Analysis.Strengths = []string{"Covered " + strings.Join(covered, ", ")}
	}
	if len(missed) > 0 {
		res.Analysis.Weaknesses = []string{"Did not address " + strings.Join(missed, ", ")}
		res.Analysis.Suggestions = []string{"Mention " + missed[0] + " explicitly next time"}
	}
	if words < 40 {
		res.Analysis.Suggestions = append(res.Analysis.Suggestions, "Give a fuller answer with a concrete example")
	}
	return fillPresence(res, req.Telemetry), nil
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func sentenceCount(text string) int {
	n := 0
	for _, r := range text {
		if r == '.' || r == '?' || r == '!' {
			n++
		}
	}
	if n == 0 && strings.TrimSpace(text) != "" {
		n = 1
	}
	return n
}

func topicCoverage(text string, topics []string) (covered, missed []string) {
	normalized := normalize(text)
	for _, topic := range topics {
		if strings.Contains(normalized, normalize(topic)) {
			covered = append(covered, topic)
		} else {
			missed = append(missed, topic)
		}
	}
	return covered, missed
}

func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

func coverageFeedback(missed []string) string {
	if len(missed) == 0 {
		return "Covered the expected ground."
	}
	return "Missing: " + strings.Join(missed, ", ")
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > scoring.MaxScore {
		return scoring.MaxScore
	}
	return v
}
