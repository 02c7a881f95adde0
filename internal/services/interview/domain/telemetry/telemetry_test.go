package telemetry

import (
	"bytes"
	"fmt"
	"log"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Printf(format string, args ...any) {
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
}

func TestSnapshotDerivesScores(t *testing.T) {
	acc := NewAccumulator(nil)
	for i := 0; i < 8; i++ {
		acc.Record(Frame{FaceVisible: true, LookingAtCamera: i < 6, Fidgeting: i == 7})
	}
	acc.Record(Frame{FaceVisible: false})
	acc.Record(Frame{FaceVisible: false})

	snap := acc.Snapshot()
	if snap.FramesAssessed != 10 || snap.FramesLookingAtCamera != 6 || snap.FidgetFrames != 1 || snap.FaceMissingFrames != 2 {
		t.Fatalf("unexpected counts %+v", snap)
	}
	if snap.EyeContactScore != 60 {
		t.Fatalf("eye contact = %d, want 60", snap.EyeContactScore)
	}
	if snap.PostureScore != 70 {
		t.Fatalf("posture = %d, want 70", snap.PostureScore)
	}
	if acc.Snapshot().FramesAssessed != 10 {
		t.Fatal("expected Snapshot not to reset counts")
	}
}

func TestSnapshotWithNoFrames(t *testing.T) {
	snap := NewAccumulator(nil).Snapshot()
	if snap.EyeContactScore != 0 || snap.PostureScore != 0 || !snap.Empty() {
		t.Fatalf("expected zero snapshot, got %+v", snap)
	}
}

func TestSnapshotAndResetCountsEachFrameOnce(t *testing.T) {
	acc := NewAccumulator(nil)
	var wg sync.WaitGroup
	const writers, perWriter = 4, 250
	totals := make(chan int, 64)
	stop := make(chan struct{})

	go func() {
		for {
			select {
			case <-stop:
				close(totals)
				return
			default:
				totals <- acc.SnapshotAndReset().FramesAssessed
			}
		}
	}()
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				acc.Record(Frame{FaceVisible: true, LookingAtCamera: true})
			}
		}()
	}
	sum := 0
	done := make(chan struct{})
	go func() {
		for n := range totals {
			sum += n
		}
		close(done)
	}()
	wg.Wait()
	close(stop)
	<-done
	sum += acc.SnapshotAndReset().FramesAssessed

	if sum != writers*perWriter {
		t.Fatalf("counted %d frames, want %d", sum, writers*perWriter)
	}
}

func TestResetClearsCounts(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Record(Frame{FaceVisible: true})
	acc.Reset()
	if !acc.Snapshot().Empty() {
		t.Fatal("expected reset to clear counts")
	}
}

func TestRestoreMergesWithNewFrames(t *testing.T) {
	acc := NewAccumulator(nil)
	acc.Record(Frame{FaceVisible: true, LookingAtCamera: true})
	acc.Record(Frame{FaceVisible: false})
	taken := acc.SnapshotAndReset()
	acc.Record(Frame{FaceVisible: true, Fidgeting: true})

	acc.Restore(taken)
	acc.Restore(Snapshot{})

	got := acc.Snapshot()
	if got.FramesAssessed != 3 || got.FramesLookingAtCamera != 1 || got.FaceMissingFrames != 1 || got.FidgetFrames != 1 {
		t.Fatalf("unexpected counts after restore: %+v", got)
	}
	if got.EyeContactScore != 33 || got.PostureScore != 33 {
		t.Fatalf("unexpected derived scores: %+v", got)
	}
}

func TestRecordDropsOutOfOrderFrames(t *testing.T) {
	logger := &recordingLogger{}
	acc := NewAccumulator(logger)
	now := time.Now()
	acc.Record(Frame{FaceVisible: true, At: now})
	acc.Record(Frame{FaceVisible: true, At: now.Add(-time.Second)})
	if got := acc.Snapshot().FramesAssessed; got != 1 {
		t.Fatalf("frames = %d, want 1", got)
	}
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], "out-of-order") {
		t.Fatalf("unexpected diagnostics %v", logger.lines)
	}
}

func TestLogFilterSuppressesConfiguredPatterns(t *testing.T) {
	var buf bytes.Buffer
	sink := log.New(&buf, "", 0)
	filter := NewLogFilter(sink, "face not detected", " ")

	acc := NewAccumulator(filter)
	acc.Record(Frame{FaceVisible: false})
	acc.SnapshotAndReset()

	out := buf.String()
	if strings.Contains(out, "face not detected") {
		t.Fatalf("expected suppressed line, got %q", out)
	}
	if !strings.Contains(out, "telemetry: snapshot frames=1") {
		t.Fatalf("expected snapshot line to pass through, got %q", out)
	}
	if filter.Dropped() != 1 {
		t.Fatalf("dropped = %d, want 1", filter.Dropped())
	}
}

func TestPresence(t *testing.T) {
	snap := Snapshot{FramesAssessed: 4, FramesLookingAtCamera: 3, FidgetFrames: 1}
	if got := snap.Presence(); got != 75 {
		t.Fatalf("presence = %d, want 75", got)
	}
}
