package call

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestRegistryInsertRemove(t *testing.T) {
	r := NewRegistry()

	if err := r.Insert(&Entry{ID: "B"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := r.Insert(&Entry{ID: "B"}); err == nil {
		t.Fatal("second entry for the same participant must be rejected")
	}
	if err := r.Insert(&Entry{ID: "A"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	ids := r.IDs()
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "B" {
		t.Fatalf("IDs = %v, want [A B]", ids)
	}

	if e := r.Remove("B"); e == nil || e.ID != "B" {
		t.Fatalf("Remove(B) = %+v", e)
	}
	if e := r.Remove("B"); e != nil {
		t.Fatalf("second Remove(B) = %+v, want nil", e)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestRegistrySnapshot(t *testing.T) {
	r := NewRegistry()
	b := &Entry{ID: "B"}
	r.Insert(b)
	r.SetState(b, StateConnected)

	snap := r.Snapshot()
	if len(snap) != 1 || snap[0].State != StateConnected || snap[0].Since.IsZero() {
		t.Fatalf("Snapshot = %+v", snap)
	}
}

func TestRegistryPendingIsBounded(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < maxPendingCandidates; i++ {
		if !r.Buffer("B", webrtc.ICECandidateInit{Candidate: "c"}) {
			t.Fatalf("candidate %d rejected", i)
		}
	}
	if r.Buffer("B", webrtc.ICECandidateInit{Candidate: "overflow"}) {
		t.Fatal("buffer should be full")
	}
	if !r.Buffer("C", webrtc.ICECandidateInit{Candidate: "c"}) {
		t.Fatal("queues are per participant")
	}

	if got := r.TakePending("B"); len(got) != maxPendingCandidates {
		t.Fatalf("TakePending returned %d", len(got))
	}
	if got := r.TakePending("B"); len(got) != 0 {
		t.Fatalf("queue not emptied: %d", len(got))
	}

	r.DropPending("C")
	if got := r.TakePending("C"); len(got) != 0 {
		t.Fatalf("DropPending left %d", len(got))
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateNone:        "none",
		StateConnecting:  "connecting",
		StateNegotiating: "negotiating",
		StateConnected:   "connected",
		StateClosed:      "closed",
		State(42):        "state(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
