// Package telemetry accumulates camera-derived behavior frames between answer
// submissions.
package telemetry

import (
	"math"
	"sync"
	"time"
)

// Frame is one sampled observation from the participant's camera.
type Frame struct {
	LookingAtCamera bool      `json:"looking_at_camera"`
	FaceVisible     bool      `json:"face_visible"`
	Fidgeting       bool      `json:"fidgeting"`
	At              time.Time `json:"at"`
}

// Snapshot is the accumulated signal since the last reset.
type Snapshot struct {
	FramesAssessed        int `json:"frames_assessed"`
	FramesLookingAtCamera int `json:"frames_looking_at_camera"`
	FidgetFrames          int `json:"fidget_frames"`
	FaceMissingFrames     int `json:"face_missing_frames"`
	EyeContactScore       int `json:"eye_contact_score"`
	PostureScore          int `json:"posture_score"`
}

// Derive fills the eye-contact and posture scores from the frame counts.
// Both are zero when no frames were assessed.
func (s Snapshot) Derive() Snapshot {
	if s.FramesAssessed <= 0 {
		s.FramesAssessed = 0
		s.EyeContactScore = 0
		s.PostureScore = 0
		return s
	}
	total := float64(s.FramesAssessed)
	s.EyeContactScore = percent(float64(s.FramesLookingAtCamera) / total)
	steady := s.FramesAssessed - s.FidgetFrames - s.FaceMissingFrames
	s.PostureScore = percent(float64(steady) / total)
	return s
}

// Empty reports whether no frames were assessed.
func (s Snapshot) Empty() bool { return s.FramesAssessed <= 0 }

// Presence blends eye contact and posture into a single 0-100 value.
func (s Snapshot) Presence() int {
	s = s.Derive()
	return int(math.Round(float64(s.EyeContactScore+s.PostureScore) / 2))
}

func percent(ratio float64) int {
	v := int(math.Round(ratio * 100))
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Logger is the diagnostic sink of an Accumulator.
type Logger interface {
	Printf(format string, args ...any)
}

// Accumulator counts frames for the open question. It is safe for concurrent
// use so a sampling loop can record while a submission snapshots.
type Accumulator struct {
	mu     sync.Mutex
	counts Snapshot
	last   time.Time
	log    Logger
}

// NewAccumulator creates an accumulator writing diagnostics to log. A nil log
// discards diagnostics.
func NewAccumulator(log Logger) *Accumulator {
	return &Accumulator{log: log}
}

// Record adds one frame.
func (a *Accumulator) Record(f Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !f.At.IsZero() && !a.last.IsZero() && f.At.Before(a.last) {
		a.logf("telemetry: out-of-order frame at %s dropped", f.At.Format(time.RFC3339Nano))
		return
	}
	if !f.At.IsZero() {
		a.last = f.At
	}
	a.counts.FramesAssessed++
	if !f.FaceVisible {
		a.counts.FaceMissingFrames++
		a.logf("telemetry: face not detected")
		return
	}
	if f.LookingAtCamera {
		a.counts.FramesLookingAtCamera++
	}
	if f.Fidgeting {
		a.counts.FidgetFrames++
	}
}

// Snapshot returns the current counts without resetting them.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts.Derive()
}

// Reset clears all counts.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts = Snapshot{}
	a.last = time.Time{}
}

// SnapshotAndReset reads and clears the counts in one step so no frame is
// counted for two answers.
func (a *Accumulator) SnapshotAndReset() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := a.counts.Derive()
	a.counts = Snapshot{}
	a.last = time.Time{}
	a.logf("telemetry: snapshot frames=%d eye=%d posture=%d", snap.FramesAssessed, snap.EyeContactScore, snap.PostureScore)
	return snap
}

// Restore adds counts taken by SnapshotAndReset back onto any frames recorded
// since, so an answer that was never scored keeps its telemetry.
func (a *Accumulator) Restore(s Snapshot) {
	if s.FramesAssessed <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counts.FramesAssessed += s.FramesAssessed
	a.counts.FramesLookingAtCamera += s.FramesLookingAtCamera
	a.counts.FidgetFrames += s.FidgetFrames
	a.counts.FaceMissingFrames += s.FaceMissingFrames
}

func (a *Accumulator) logf(format string, args ...any) {
	if a.log != nil {
		a.log.Printf(format, args...)
	}
}
