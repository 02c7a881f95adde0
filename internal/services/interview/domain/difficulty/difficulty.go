// Package difficulty maintains the four-level difficulty ladder of a session
// and adjusts it from per-answer scores.
package difficulty

import (
	"fmt"
	"strings"
	"time"
)

// Level is one rung of the ladder.
type Level string

const (
	Easy   Level = "easy"
	Medium Level = "medium"
	Hard   Level = "hard"
	Expert Level = "expert"
)

// Ladder lists levels from easiest to hardest.
var Ladder = []Level{Easy, Medium, Hard, Expert}

// ParseLevel normalizes s into a Level.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l.Rank() < 0 {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return l, nil
}

// Rank returns the ladder position, or -1 for unknown levels.
func (l Level) Rank() int {
	for i, v := range Ladder {
		if v == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is on the ladder.
func (l Level) Valid() bool { return l.Rank() >= 0 }

// Step moves delta rungs, clamped to the ladder ends.
func (l Level) Step(delta int) Level {
	r := l.Rank()
	if r < 0 {
		return l
	}
	r += delta
	if r < 0 {
		r = 0
	}
	if r >= len(Ladder) {
		r = len(Ladder) - 1
	}
	return Ladder[r]
}

// Decision is the controller output for one scored response.
type Decision string

const (
	Increase Decision = "increase"
	Decrease Decision = "decrease"
	Hold     Decision = "hold"
)

// Policy holds the score thresholds that move the ladder.
type Policy struct {
	// IncreaseAbove is the response overall at or above which the level rises.
	IncreaseAbove int `env:"DIFFICULTY_INCREASE_ABOVE" envDefault:"80"`
	// DecreaseBelow is the response overall under which the level drops.
	DecreaseBelow int `env:"DIFFICULTY_DECREASE_BELOW" envDefault:"50"`
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{IncreaseAbove: 80, DecreaseBelow: 50}
}

// Validate checks the thresholds are ordered.
func (p Policy) Validate() error {
	if p.DecreaseBelow > p.IncreaseAbove {
		return fmt.Errorf("difficulty decrease threshold %d exceeds increase threshold %d", p.DecreaseBelow, p.IncreaseAbove)
	}
	return nil
}

// Decide maps a response overall score to a decision.
func (p Policy) Decide(score int) Decision {
	switch {
	case score >= p.IncreaseAbove:
		return Increase
	case score < p.DecreaseBelow:
		return Decrease
	default:
		return Hold
	}
}

// Adjustment records one change of level.
type Adjustment struct {
	From          Level     `json:"from"`
	To            Level     `json:"to"`
	Reason        string    `json:"reason"`
	QuestionIndex int       `json:"question_index"`
	At            time.Time `json:"at"`
}

// State is the ladder state of a session. Initial is fixed at creation.
type State struct {
	Initial Level        `json:"initial"`
	Current Level        `json:"current"`
	History []Adjustment `json:"history,omitempty"`
}

// NewState starts a ladder at initial.
func NewState(initial Level) State {
	return State{Initial: initial, Current: initial}
}

// Apply runs the policy against a response score. A change of level is
// appended to History and returned. Holds and moves clamped at the ladder
// ends return false.
func (s *State) Apply(p Policy, score, questionIndex int, at time.Time) (Adjustment, bool) {
	var delta int
	decision := p.Decide(score)
	switch decision {
	case Increase:
		delta = 1
	case Decrease:
		delta = -1
	default:
		return Adjustment{}, false
	}
	next := s.Current.Step(delta)
	if next == s.Current {
		return Adjustment{}, false
	}
	adj := Adjustment{
		From:          s.Current,
		To:            next,
		Reason:        reason(decision, score, p),
		QuestionIndex: questionIndex,
		At:            at.UTC(),
	}
	s.History = append(s.History, adj)
	s.Current = next
	return adj, true
}

// Consistent reports whether Current matches the last adjustment target, or
// Initial when there is no history.
func (s State) Consistent() bool {
	if len(s.History) == 0 {
		return s.Current == s.Initial
	}
	return s.History[len(s.History)-1].To == s.Current
}

func reason(d Decision, score int, p Policy) string {
	if d == Increase {
		return fmt.Sprintf("increase: score %d >= %d", score, p.IncreaseAbove)
	}
	return fmt.Sprintf("decrease: score %d < %d", score, p.DecreaseBelow)
}
