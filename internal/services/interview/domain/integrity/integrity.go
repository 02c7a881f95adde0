// Package integrity fuses gaze, posture and tab-focus signals into warnings
// and, for sustained misbehavior, a termination command.
//
// The two channels are independent. Gaze and posture misbehavior escalates to
// termination. Tab switches are only counted and warned about.
package integrity

import (
	"time"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/telemetry"
)

// Status classifies the latest telemetry frame.
type Status string

const (
	Good        Status = "good"
	LookingAway Status = "looking_away"
	Fidgeting   Status = "fidgeting"
)

// StatusOf derives the gaze status of a frame. A missing face counts as
// looking away.
func StatusOf(f telemetry.Frame) Status {
	switch {
	case !f.FaceVisible || !f.LookingAtCamera:
		return LookingAway
	case f.Fidgeting:
		return Fidgeting
	default:
		return Good
	}
}

// Policy holds the escalation thresholds.
type Policy struct {
	// BadWindow is how long a non-good status must persist to count as one
	// misbehavior event.
	BadWindow time.Duration `env:"INTEGRITY_BAD_WINDOW" envDefault:"4s"`
	// TerminateAfter is the misbehavior count that ends the session.
	TerminateAfter int `env:"INTEGRITY_TERMINATE_AFTER" envDefault:"4"`
	// FocusDisplayCap bounds the tab-switch count shown to the participant.
	FocusDisplayCap int `env:"INTEGRITY_FOCUS_DISPLAY_CAP" envDefault:"3"`
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{BadWindow: 4 * time.Second, TerminateAfter: 4, FocusDisplayCap: 3}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.BadWindow <= 0 {
		p.BadWindow = d.BadWindow
	}
	if p.TerminateAfter <= 0 {
		p.TerminateAfter = d.TerminateAfter
	}
	if p.FocusDisplayCap <= 0 {
		p.FocusDisplayCap = d.FocusDisplayCap
	}
	return p
}

// Action is what the session must do after an observation.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionTerminate
)

// Decision is the result of one gaze observation.
type Decision struct {
	Action Action
	Status Status
	Count  int
	Limit  int
}

// FocusDecision is the result of one visibility-hidden event.
type FocusDecision struct {
	Count     int
	Displayed int
	Cap       int
}

// State is the reviewable summary of a monitor.
type State struct {
	TabSwitches  int    `json:"tab_switches"`
	Misbehaviors int    `json:"misbehaviors"`
	Terminated   bool   `json:"terminated"`
	Cause        string `json:"cause,omitempty"`
}

// Monitor applies a Policy to a session's signal stream. It is not safe for
// concurrent use; the owning session actor serializes calls.
type Monitor struct {
	policy       Policy
	badSince     time.Time
	misbehaviors int
	tabSwitches  int
	terminated   bool
}

// NewMonitor creates a monitor. Zero policy fields fall back to defaults.
func NewMonitor(p Policy) *Monitor {
	return &Monitor{policy: p.normalized()}
}

// Restore seeds counters from a persisted summary so a reloaded session
// keeps escalating from where it left off.
func (m *Monitor) Restore(s State) {
	m.misbehaviors = s.Misbehaviors
	m.tabSwitches = s.TabSwitches
	m.terminated = s.Terminated
	m.badSince = time.Time{}
}

// Observe feeds one status sample. A non-good status held for a full
// BadWindow fires one misbehavior event and restarts the window.
func (m *Monitor) Observe(status Status, at time.Time) Decision {
	limit := m.policy.TerminateAfter
	if m.terminated {
		return Decision{Action: ActionNone, Status: status, Count: m.misbehaviors, Limit: limit}
	}
	if status == Good {
		m.badSince = time.Time{}
		return Decision{Action: ActionNone, Status: status, Count: m.misbehaviors, Limit: limit}
	}
	if m.badSince.IsZero() {
		m.badSince = at
		return Decision{Action: ActionNone, Status: status, Count: m.misbehaviors, Limit: limit}
	}
	if at.Sub(m.badSince) < m.policy.BadWindow {
		return Decision{Action: ActionNone, Status: status, Count: m.misbehaviors, Limit: limit}
	}

	m.misbehaviors++
	m.badSince = at
	if m.misbehaviors >= limit {
		m.terminated = true
		return Decision{Action: ActionTerminate, Status: status, Count: m.misbehaviors, Limit: limit}
	}
	return Decision{Action: ActionWarn, Status: status, Count: m.misbehaviors, Limit: limit}
}

// Interrupt clears any open bad window, for example when the session pauses.
func (m *Monitor) Interrupt() {
	m.badSince = time.Time{}
}

// FocusHidden records a tab switch. Counting never stops and never
// terminates; only the displayed count is capped.
func (m *Monitor) FocusHidden() FocusDecision {
	m.tabSwitches++
	displayed := m.tabSwitches
	if displayed > m.policy.FocusDisplayCap {
		displayed = m.policy.FocusDisplayCap
	}
	return FocusDecision{Count: m.tabSwitches, Displayed: displayed, Cap: m.policy.FocusDisplayCap}
}

// Terminated reports whether the monitor has issued its termination.
func (m *Monitor) Terminated() bool { return m.terminated }

// State returns the counters for review.
func (m *Monitor) State() State {
	return State{TabSwitches: m.tabSwitches, Misbehaviors: m.misbehaviors, Terminated: m.terminated}
}
