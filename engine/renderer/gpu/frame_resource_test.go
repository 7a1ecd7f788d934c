package gpu

import "testing"

func TestFrameRingWaitsBeforeReuse(t *testing.T) {
	dev := NewHeadlessDevice(WithHeadlessFramesInFlight(3))
	ring, err := NewFrameRing(dev, 256)
	if err != nil {
		t.Fatalf("NewFrameRing: %v", err)
	}
	if ring.Count() != 3 {
		t.Fatalf("Count = %d, want 3", ring.Count())
	}

	for frame := 0; frame < 7; frame++ {
		f, err := ring.Acquire()
		if err != nil {
			t.Fatalf("frame %d: Acquire: %v", frame, err)
		}
		if f.Index() != frame%3 {
			t.Fatalf("frame %d: slot %d, want %d", frame, f.Index(), frame%3)
		}
		if prev := f.LastSubmission(); prev != 0 && dev.Completed() < prev {
			t.Fatalf("frame %d: slot %d handed out before submission %d completed", frame, f.Index(), prev)
		}
		if err := dev.WriteBuffer(f.Constants(), 0, make([]byte, 64)); err != nil {
			t.Fatalf("frame %d: WriteBuffer: %v", frame, err)
		}
		rec, _ := dev.NewCommandRecorder("frame")
		idx, err := dev.Submit(rec)
		if err != nil {
			t.Fatalf("frame %d: Submit: %v", frame, err)
		}
		ring.MarkSubmitted(idx)
		ring.Advance()
	}

	// Every constant write after the first lap must be preceded by a wait on that slot's
	// previous submission.
	lastSubmit := make(map[uint64]SubmissionIndex)
	var waited SubmissionIndex
	var pending SubmissionIndex
	var pendingBuf uint64
	for _, e := range dev.Events() {
		switch e.Kind {
		case EventWait:
			if e.Submission > waited {
				waited = e.Submission
			}
		case EventWriteBuffer:
			if prev, ok := lastSubmit[e.ResourceID]; ok && prev > waited {
				t.Fatalf("write to %s before waiting for submission %d", e.Label, prev)
			}
			pendingBuf = e.ResourceID
		case EventSubmit:
			pending = e.Submission
			lastSubmit[pendingBuf] = pending
		}
	}
}

func TestFrameRingWaitAll(t *testing.T) {
	dev := NewHeadlessDevice(WithHeadlessFramesInFlight(2))
	ring, err := NewFrameRing(dev, 64)
	if err != nil {
		t.Fatalf("NewFrameRing: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := ring.Acquire(); err != nil {
			t.Fatal(err)
		}
		rec, _ := dev.NewCommandRecorder("frame")
		idx, _ := dev.Submit(rec)
		ring.MarkSubmitted(idx)
		ring.Advance()
	}
	if err := ring.WaitAll(); err != nil {
		t.Fatalf("WaitAll: %v", err)
	}
	if dev.Completed() != 2 {
		t.Errorf("Completed = %d, want 2", dev.Completed())
	}
}

func TestFrameRingRejectsZeroSlots(t *testing.T) {
	dev := NewHeadlessDevice(WithHeadlessFramesInFlight(0))
	if _, err := NewFrameRing(dev, 64); err == nil {
		t.Error("NewFrameRing with zero frames in flight should fail")
	}
}
