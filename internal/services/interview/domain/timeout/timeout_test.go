package timeout_test

import (
	"testing"
	"time"

	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout"
	"github.com/louisbranch/mockinterview/internal/services/interview/domain/timeout/timeouttest"
)

func TestArmUsesFullAllowanceEachTime(t *testing.T) {
	sched := &timeouttest.ManualScheduler{}
	c := timeout.NewController(sched, nil)

	c.Arm(90 * time.Second)
	c.Cancel()
	c.Arm(90 * time.Second)

	if got := sched.Last().After; got != 90*time.Second {
		t.Fatalf("re-armed countdown = %v, want full 90s", got)
	}
	if len(sched.Pending()) != 1 {
		t.Fatalf("expected one pending timer, got %d", len(sched.Pending()))
	}
}

func TestArmDefaultsAllowance(t *testing.T) {
	sched := &timeouttest.ManualScheduler{}
	c := timeout.NewController(sched, nil)
	c.Arm(0)
	if got := sched.Last().After; got != timeout.DefaultAllowance {
		t.Fatalf("allowance = %v, want %v", got, timeout.DefaultAllowance)
	}
}

func TestAcceptRejectsStaleTokens(t *testing.T) {
	sched := &timeouttest.ManualScheduler{}
	var fired []uint64
	c := timeout.NewController(sched, func(token uint64) { fired = append(fired, token) })

	first := c.Arm(time.Minute)
	stale := sched.Last()
	second := c.Arm(time.Minute)

	stale.FireStale()
	sched.FireAll()

	if len(fired) != 2 || fired[0] != first || fired[1] != second {
		t.Fatalf("unexpected fires %v", fired)
	}
	if c.Accept(first) {
		t.Fatal("expected stale token to be rejected")
	}
	if !c.Accept(second) {
		t.Fatal("expected live token to be accepted")
	}
	if c.Accept(second) {
		t.Fatal("expected a token to be accepted only once")
	}
}

func TestCancelDisarms(t *testing.T) {
	sched := &timeouttest.ManualScheduler{}
	c := timeout.NewController(sched, nil)
	token := c.Arm(time.Minute)
	c.Cancel()
	if c.Armed() || c.Accept(token) {
		t.Fatal("expected cancelled countdown to be disarmed")
	}
	if len(sched.Pending()) != 0 {
		t.Fatal("expected timer to be stopped")
	}
}

func TestAutoSubmission(t *testing.T) {
	if text, sentinel := timeout.AutoSubmission("  my draft ", "spoken"); text != "my draft" || sentinel {
		t.Fatalf("draft: %q, %v", text, sentinel)
	}
	if text, sentinel := timeout.AutoSubmission("", "spoken words"); text != "spoken words" || sentinel {
		t.Fatalf("transcription: %q, %v", text, sentinel)
	}
	if text, sentinel := timeout.AutoSubmission(" ", ""); text != timeout.Sentinel || !sentinel {
		t.Fatalf("empty: %q, %v", text, sentinel)
	}
	if !timeout.IsSentinel(" " + timeout.Sentinel) {
		t.Fatal("expected sentinel detection")
	}
}
