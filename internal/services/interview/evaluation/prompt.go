package evaluation

import (
	"fmt"
	"strings"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/scoring"
)

func systemPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a %s interviewer running a %s interview", orDefault(string(req.Tone), "neutral"), req.Category)
	if req.TargetRole != "" {
		fmt.Fprintf(&b, " for a %s role", req.TargetRole)
	}
	if req.TargetCompany != "" {
		fmt.Fprintf(&b, " at %s", req.TargetCompany)
	}
	b.WriteString(".\nScore the candidate's answer on each dimension from 0 to 100: ")
	names := make([]string, 0, len(scoring.Dimensions)-1)
	for _, d := range scoring.Dimensions {
		if d == scoring.PosturePresence {
			continue
		}
		names = append(names, string(d))
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\nReply with a JSON object: {\"scores\": {\"<dimension>\": {\"score\": int, \"feedback\": string}}, ")
	b.WriteString("\"strengths\": [string], \"weaknesses\": [string], \"suggestions\": [string], ")
	b.WriteString("\"topics_covered\": [string], \"topics_missed\": [string], \"follow_up\": string}.")
	return b.String()
}

func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question (%s, %s): %s\n", orDefault(req.Question.Type, "open"), req.Question.Difficulty, req.Question.Text)
	if len(req.Question.ExpectedTopics) > 0 {
		fmt.Fprintf(&b, "Expected topics: %s\n", strings.Join(req.Question.ExpectedTopics, ", "))
	}
	if req.Focus != "" {
		fmt.Fprintf(&b, "Focus area: %s\n", req.Focus)
	}
	fmt.Fprintf(&b, "Answer (%.0fs): %s\n", req.Answer.DurationSeconds, req.Answer.Text)
	if req.Voice.Transcription != "" {
		fmt.Fprintf(&b, "Speech: %d wpm, %d filler words, %d hesitations\n", req.Voice.WordsPerMinute, req.Voice.FillerWords, req.Voice.Hesitations)
	}
	return b.String()
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
