package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeStats struct{ count int }

func (f fakeStats) Count() (int, error) { return f.count, nil }

func TestCollector_CollectsImmediatelyOnStart(t *testing.T) {
	c := NewCollector(fakeStats{count: 7}, fakeStats{count: 3})
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(EventsBuffered) == 7 && testutil.ToFloat64(BaselineEntriesTotal) == 3 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("gauges not updated: buffered=%v baseline=%v",
		testutil.ToFloat64(EventsBuffered), testutil.ToFloat64(BaselineEntriesTotal))
}

func TestCollector_NilBaselineIsSkipped(t *testing.T) {
	c := NewCollector(fakeStats{count: 1}, nil)
	c.Start()
	defer c.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(EventsBuffered) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("EventsBuffered gauge not updated")
}
