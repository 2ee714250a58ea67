package core

import (
	"testing"
	"time"
)

func TestMetricsFenceWaitAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.RecordFenceWait(2*time.Millisecond, i%2 == 0)
	}

	s := m.Snapshot()
	if s.FenceWaits != uint64(AVG_COUNT) {
		t.Fatalf("FenceWaits = %d, want %d", s.FenceWaits, AVG_COUNT)
	}
	if s.FenceTimeouts != uint64(AVG_COUNT)/2 {
		t.Fatalf("FenceTimeouts = %d, want %d", s.FenceTimeouts, AVG_COUNT/2)
	}
	if s.FenceWaitAvgMS != 2 {
		t.Fatalf("FenceWaitAvgMS = %f, want 2", s.FenceWaitAvgMS)
	}
}

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.Submissions.Add(3)
	m.PipelineBindsElided.Add(1)

	s := m.Snapshot()
	if s.Submissions != 3 || s.PipelineBindsElided != 1 {
		t.Fatalf("unexpected snapshot %+v", s)
	}
}
