// Package scoring folds per-response dimension scores into session-level
// averages.
package scoring

import "math"

// MaxScore is the ceiling of every dimension.
const MaxScore = 100

// Dimension names one of the six scored axes.
type Dimension string

const (
	Correctness     Dimension = "correctness"
	Reasoning       Dimension = "reasoning"
	Communication   Dimension = "communication"
	Structure       Dimension = "structure"
	Confidence      Dimension = "confidence"
	PosturePresence Dimension = "posture_presence"
)

// Dimensions lists every dimension in report order.
var Dimensions = []Dimension{Correctness, Reasoning, Communication, Structure, Confidence, PosturePresence}

// DimensionScore is one evaluated axis of a response.
type DimensionScore struct {
	Score    int    `json:"score"`
	MaxScore int    `json:"max_score"`
	Feedback string `json:"feedback,omitempty"`
}

// Breakdown holds the six dimension scores of one response.
type Breakdown struct {
	Correctness     DimensionScore `json:"correctness"`
	Reasoning       DimensionScore `json:"reasoning"`
	Communication   DimensionScore `json:"communication"`
	Structure       DimensionScore `json:"structure"`
	Confidence      DimensionScore `json:"confidence"`
	PosturePresence DimensionScore `json:"posture_presence"`
	Overall         int            `json:"overall"`
}

// Get returns the score for d.
func (b Breakdown) Get(d Dimension) DimensionScore {
	if p := b.field(d); p != nil {
		return *p
	}
	return DimensionScore{}
}

// Set replaces the score for d. Scores are clamped to [0, MaxScore].
func (b *Breakdown) Set(d Dimension, s DimensionScore) {
	p := b.field(d)
	if p == nil {
		return
	}
	s.Score = clamp(s.Score)
	if s.MaxScore <= 0 {
		s.MaxScore = MaxScore
	}
	*p = s
}

func (b *Breakdown) field(d Dimension) *DimensionScore {
	switch d {
	case Correctness:
		return &b.Correctness
	case Reasoning:
		return &b.Reasoning
	case Communication:
		return &b.Communication
	case Structure:
		return &b.Structure
	case Confidence:
		return &b.Confidence
	case PosturePresence:
		return &b.PosturePresence
	}
	return nil
}

// Sum adds the six dimension scores.
func (b Breakdown) Sum() int {
	total := 0
	for _, d := range Dimensions {
		total += b.Get(d).Score
	}
	return total
}

// Finalize clamps every dimension and derives Overall as the rounded mean
// of the six dimensions.
func (b Breakdown) Finalize() Breakdown {
	for _, d := range Dimensions {
		b.Set(d, b.Get(d))
	}
	b.Overall = roundDiv(b.Sum(), len(Dimensions))
	return b
}

// Zero returns a breakdown with every dimension forced to zero. It is used
// for timed-out answers.
func Zero(feedback string) Breakdown {
	var b Breakdown
	for _, d := range Dimensions {
		b.Set(d, DimensionScore{Score: 0, MaxScore: MaxScore, Feedback: feedback})
	}
	return b.Finalize()
}

// Summary is the session-level projection of all responses.
type Summary struct {
	Correctness     int `json:"correctness"`
	Reasoning       int `json:"reasoning"`
	Communication   int `json:"communication"`
	Structure       int `json:"structure"`
	Confidence      int `json:"confidence"`
	PosturePresence int `json:"posture_presence"`
	Overall         int `json:"overall"`
}

// Get returns the session average for d.
func (s Summary) Get(d Dimension) int {
	switch d {
	case Correctness:
		return s.Correctness
	case Reasoning:
		return s.Reasoning
	case Communication:
		return s.Communication
	case Structure:
		return s.Structure
	case Confidence:
		return s.Confidence
	case PosturePresence:
		return s.PosturePresence
	}
	return 0
}

// Aggregate recomputes the summary from scratch. Each dimension is the
// rounded mean across responses, and Overall is the rounded mean of every
// dimension score of every response. No responses yields all zeros.
func Aggregate(responses []Breakdown) Summary {
	n := len(responses)
	if n == 0 {
		return Summary{}
	}
	sums := make(map[Dimension]int, len(Dimensions))
	grand := 0
	for _, r := range responses {
		for _, d := range Dimensions {
			score := r.Get(d).Score
			sums[d] += score
			grand += score
		}
	}
	return Summary{
		Correctness:     roundDiv(sums[Correctness], n),
		Reasoning:       roundDiv(sums[Reasoning], n),
		Communication:   roundDiv(sums[Communication], n),
		Structure:       roundDiv(sums[Structure], n),
		Confidence:      roundDiv(sums[Confidence], n),
		PosturePresence: roundDiv(sums[PosturePresence], n),
		Overall:         roundDiv(grand, n*len(Dimensions)),
	}
}

func roundDiv(sum, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(float64(sum) / float64(n)))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}
