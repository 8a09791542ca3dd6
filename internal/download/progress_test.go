package download

import (
	"testing"
	"time"
)

func TestTrackerObserve(t *testing.T) {
	tr := NewTracker()

	tr.Observe(Event{Kind: EventStarted, ID: "a"})
	tr.Observe(Event{Kind: EventProgress, ID: "a", BytesDownloaded: 500, TotalBytes: 1000, SpeedBps: 100})

	state, ok := tr.State("a")
	if !ok {
		t.Fatal("expected tracked state")
	}
	if state.BytesDownloaded != 500 || state.TotalBytes != 1000 {
		t.Errorf("unexpected state %+v", state)
	}

	eta, ok := state.ETA()
	if !ok || eta != 5*time.Second {
		t.Errorf("expected 5s ETA, got %v (ok=%v)", eta, ok)
	}

	tr.Observe(Event{Kind: EventCompleted, ID: "a"})
	if _, ok := tr.State("a"); ok {
		t.Error("expected completed task to be dropped")
	}
}

func TestTrackerActive(t *testing.T) {
	tr := NewTracker()
	tr.Observe(Event{Kind: EventStarted, ID: "a"})
	tr.Observe(Event{Kind: EventStarted, ID: "b"})
	tr.Observe(Event{Kind: EventCancelled, ID: "b"})

	active := tr.Active()
	if len(active) != 1 || active[0] != "a" {
		t.Errorf("expected only a active, got %v", active)
	}
}

func TestETAUnknown(t *testing.T) {
	cases := []TaskState{
		{SpeedBps: 0, TotalBytes: 1000, BytesDownloaded: 10},
		{SpeedBps: 100, TotalBytes: 0, BytesDownloaded: 10},
		{SpeedBps: 100, TotalBytes: 1000, BytesDownloaded: 1000},
	}
	for _, s := range cases {
		if _, ok := s.ETA(); ok {
			t.Errorf("expected no ETA for %+v", s)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{2*time.Minute + 3*time.Second, "2m 3s"},
		{time.Hour + 30*time.Minute + 15*time.Second, "1h 30m 15s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v): expected %q, got %q", tc.d, tc.want, got)
		}
	}
}

func TestEmitNeverBlocks(t *testing.T) {
	ch := make(chan Event, 1)
	emit(ch, Event{Kind: EventStarted, ID: "a"})
	// Channel is full; this would deadlock if emit blocked.
	emit(ch, Event{Kind: EventProgress, ID: "a"})

	ev := <-ch
	if ev.Kind != EventStarted {
		t.Errorf("expected the first event retained, got %s", ev.Kind)
	}
}

// Terminal events must survive a backlogged channel: deliver waits for the
// consumer instead of dropping the task's outcome.
func TestDeliverWaitsForConsumer(t *testing.T) {
	ch := make(chan Event, 1)
	ch <- Event{Kind: EventProgress, ID: "a"}

	done := make(chan struct{})
	go func() {
		deliver(ch, Event{Kind: EventCompleted, ID: "a"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("deliver returned while the channel was still full")
	case <-time.After(20 * time.Millisecond):
	}

	if ev := <-ch; ev.Kind != EventProgress {
		t.Fatalf("expected the backlogged event first, got %s", ev.Kind)
	}
	ev := <-ch
	if ev.Kind != EventCompleted || ev.ID != "a" {
		t.Errorf("expected the Completed event delivered, got %s", ev.Kind)
	}
	<-done
}
