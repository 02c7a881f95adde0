// Package timeout runs the server-side countdown of an open question.
package timeout

import (
	"strings"
	"time"
)

// DefaultAllowance is the countdown used when a question does not set one.
const DefaultAllowance = 120 * time.Second

// Sentinel is the answer text submitted when a question times out with
// nothing typed or transcribed. It forces a zero score.
const Sentinel = "__timeout__"

// IsSentinel reports whether text is the timeout sentinel.
func IsSentinel(text string) bool {
	return strings.TrimSpace(text) == Sentinel
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. It exists so tests can drive time by hand.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemScheduler schedules on the runtime timer.
type SystemScheduler struct{}

// AfterFunc wraps time.AfterFunc.
func (SystemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Controller owns at most one armed countdown. Each arm gets a new token; a
// firing callback carries its token so the owner can ignore fires from
// timers that were already replaced or cancelled. Controller is not safe for
// concurrent use.
type Controller struct {
	scheduler Scheduler
	fire      func(token uint64)
	timer     Timer
	token     uint64
	armed     bool
	allowance time.Duration
}

// NewController creates a controller that calls fire with the arm token when
// a countdown elapses. fire runs on the scheduler's goroutine.
func NewController(s Scheduler, fire func(token uint64)) *Controller {
	if s == nil {
		s = SystemScheduler{}
	}
	return &Controller{scheduler: s, fire: fire}
}

// Arm cancels any running countdown and starts a new one with the full
// allowance. A non-positive allowance uses DefaultAllowance.
func (c *Controller) Arm(allowance time.Duration) uint64 {
	c.Cancel()
	if allowance <= 0 {
		allowance = DefaultAllowance
	}
	c.token++
	token := c.token
	c.armed = true
	c.allowance = allowance
	c.timer = c.scheduler.AfterFunc(allowance, func() {
		if c.fire != nil {
			c.fire(token)
		}
	})
	return token
}

// Cancel stops the running countdown, if any.
func (c *Controller) Cancel() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.armed = false
}

// Accept reports whether a fire with token belongs to the live countdown.
// An accepted fire disarms the controller.
func (c *Controller) Accept(token uint64) bool {
	if !c.armed || token != c.token {
		return false
	}
	c.armed = false
	c.timer = nil
	return true
}

// Armed reports whether a countdown is running.
func (c *Controller) Armed() bool { return c.armed }

// Allowance returns the duration of the last armed countdown.
func (c *Controller) Allowance() time.Duration { return c.allowance }

// AutoSubmission picks the text to submit when a countdown elapses. Typed
// drafts win over transcriptions; with neither, the sentinel is returned.
func AutoSubmission(draft, transcription string) (text string, sentinel bool) {
	if d := strings.TrimSpace(draft); d != "" {
		return d, false
	}
	if tr := strings.TrimSpace(transcription); tr != "" {
		return tr, false
	}
	return Sentinel, true
}
