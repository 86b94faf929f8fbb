package session

import (
	"sync"
	"testing"
)

func TestSession_SequenceMonotonic(t *testing.T) {
	s := New()

	for _, seq := range []int64{1, 3, 2, 3, 5, 4} {
		s.UpdateSequence(seq)
	}
	if s.Sequence() != 5 {
		t.Errorf("Expected sequence 5 (max seen), got %d", s.Sequence())
	}

	if s.UpdateSequence(5) {
		t.Error("Expected duplicate sequence not to advance")
	}
	if s.UpdateSequence(6) == false {
		t.Error("Expected higher sequence to advance")
	}
}

func TestSession_SequenceConcurrent(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(seq int64) {
			defer wg.Done()
			s.UpdateSequence(seq)
		}(int64(i))
	}
	wg.Wait()
	if s.Sequence() != 100 {
		t.Errorf("Expected sequence 100, got %d", s.Sequence())
	}
}

func TestSession_CanResume(t *testing.T) {
	s := New()
	if s.CanResume() {
		t.Error("Expected empty session not resumable")
	}

	s.Populate("abc", "wss://resume.example", "user-1", 3)
	if s.CanResume() {
		t.Error("Expected session without sequence not resumable")
	}

	s.UpdateSequence(1)
	if !s.CanResume() {
		t.Error("Expected populated session with sequence to be resumable")
	}

	// Each falsifying condition individually.
	s.Invalidate(false)
	if s.CanResume() {
		t.Error("Expected non-resumable invalidation to clear resumability")
	}
	if s.ID() != "" || s.Sequence() != 0 {
		t.Error("Expected non-resumable invalidation to clear identity")
	}

	s.Populate("abc", "wss://resume.example", "user-1", 3)
	s.UpdateSequence(7)
	s.Invalidate(true)
	if !s.CanResume() {
		t.Error("Expected resumable invalidation to keep the session")
	}
}

func TestSession_PopulateAndReset(t *testing.T) {
	s := New()
	s.Populate("sid", "wss://x", "u1", 42)
	s.UpdateSequence(10)

	if s.ID() != "sid" || s.ResumeURL() != "wss://x" || s.UserID() != "u1" || s.GuildCount() != 42 {
		t.Errorf("Populate did not store fields: %q %q %q %d", s.ID(), s.ResumeURL(), s.UserID(), s.GuildCount())
	}
	if s.ReadyAt().IsZero() {
		t.Error("Expected ready timestamp set")
	}

	s.Reset()
	if s.ID() != "" || s.Sequence() != 0 || s.CanResume() {
		t.Error("Expected reset to clear all state")
	}
}

func TestSession_SnapshotRestore(t *testing.T) {
	s := New()
	s.Populate("sid", "wss://x", "u1", 1)
	s.UpdateSequence(99)

	snap := s.Snapshot()
	if snap.ID != "sid" || snap.ResumeURL != "wss://x" || snap.Sequence != 99 {
		t.Errorf("Snapshot mismatch: %+v", snap)
	}

	restored := New()
	restored.Restore(snap)
	if !restored.CanResume() {
		t.Error("Expected restored session to be resumable")
	}
	if restored.Sequence() != 99 {
		t.Errorf("Expected restored sequence 99, got %d", restored.Sequence())
	}

	empty := New()
	empty.Restore(Snapshot{})
	if empty.CanResume() {
		t.Error("Expected empty snapshot not to produce a resumable session")
	}
}
