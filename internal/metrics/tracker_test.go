package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestTracker() *Tracker {
	return NewTracker(prometheus.NewRegistry())
}

func TestTrackRunningAverage(t *testing.T) {
	tr := newTestTracker()

	for _, lat := range []int64{100, 200, 300} {
		tr.Track("surface", true, lat)
	}

	snap := tr.Snapshot()
	s := snap.Channels["surface"]
	if s.Requests != 3 {
		t.Fatalf("expected 3 requests, got %d", s.Requests)
	}
	if s.AvgLatencyMs != 200 {
		t.Errorf("expected avg latency 200, got %v", s.AvgLatencyMs)
	}
	if snap.AvgLatencyMs != 200 {
		t.Errorf("expected overall avg latency 200, got %v", snap.AvgLatencyMs)
	}
}

func TestTrackOutcomeCounts(t *testing.T) {
	tr := newTestTracker()

	tr.Track("surface", true, 10)
	tr.Track("surface", false, 20)
	tr.Track("deep", true, 30)

	snap := tr.Snapshot()
	if snap.Channels["surface"].Successes != 1 || snap.Channels["surface"].Errors != 1 {
		t.Errorf("unexpected surface counts: %+v", snap.Channels["surface"])
	}
	if snap.Channels["deep"].Successes != 1 {
		t.Errorf("unexpected deep counts: %+v", snap.Channels["deep"])
	}
	if snap.Total != 3 || snap.Success != 2 || snap.Error != 1 {
		t.Errorf("unexpected overall counts: total=%d success=%d error=%d", snap.Total, snap.Success, snap.Error)
	}
}

func TestPendingBalances(t *testing.T) {
	tr := newTestTracker()

	tr.PendingAdd("deep")
	tr.PendingAdd("deep")
	if got := tr.Pending("deep"); got != 2 {
		t.Fatalf("expected 2 pending, got %d", got)
	}
	tr.PendingDone("deep")
	tr.PendingDone("deep")
	if got := tr.Pending("deep"); got != 0 {
		t.Errorf("expected pending restored to 0, got %d", got)
	}
}

func TestTrackerConcurrent(t *testing.T) {
	tr := newTestTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.PendingAdd("surface")
			tr.Track("surface", true, 100)
			tr.PendingDone("surface")
		}()
	}
	wg.Wait()

	snap := tr.Snapshot()
	s := snap.Channels["surface"]
	if s.Requests != 50 {
		t.Errorf("lost updates: expected 50 requests, got %d", s.Requests)
	}
	if s.Pending != 0 {
		t.Errorf("expected pending 0, got %d", s.Pending)
	}
	if s.AvgLatencyMs != 100 {
		t.Errorf("expected avg 100, got %v", s.AvgLatencyMs)
	}
}
