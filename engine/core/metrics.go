package core

import (
	"sync"
	"sync/atomic"
	"time"
)

const AVG_COUNT uint8 = 30

// Metrics collects device-wide counters. All methods are safe for concurrent use.
type Metrics struct {
	Submissions             atomic.Uint64
	CommandBuffersSubmitted atomic.Uint64
	PipelineBindsEncoded    atomic.Uint64
	PipelineBindsElided     atomic.Uint64
	SparseBindBatches       atomic.Uint64
	SparseBinds             atomic.Uint64
	Presents                atomic.Uint64
	PresentFailures         atomic.Uint64
	FenceWaits              atomic.Uint64
	FenceTimeouts           atomic.Uint64

	mu             sync.Mutex
	waitAVGCounter uint8
	waitMStimes    [AVG_COUNT]float64
	waitMSavg      float64
}

type MetricsSnapshot struct {
	Submissions             uint64
	CommandBuffersSubmitted uint64
	PipelineBindsEncoded    uint64
	PipelineBindsElided     uint64
	SparseBindBatches       uint64
	SparseBinds             uint64
	Presents                uint64
	PresentFailures         uint64
	FenceWaits              uint64
	FenceTimeouts           uint64
	// Average fence wait over the last full window of AVG_COUNT waits.
	FenceWaitAvgMS float64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordFenceWait adds one host wait to the rolling window.
func (m *Metrics) RecordFenceWait(elapsed time.Duration, timedOut bool) {
	m.FenceWaits.Add(1)
	if timedOut {
		m.FenceTimeouts.Add(1)
	}

	waitMS := float64(elapsed) / float64(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.waitMStimes[m.waitAVGCounter] = waitMS
	if m.waitAVGCounter == AVG_COUNT-1 {
		var sum float64
		for i := uint8(0); i < AVG_COUNT; i++ {
			sum += m.waitMStimes[i]
		}
		m.waitMSavg = sum / float64(AVG_COUNT)
	}
	m.waitAVGCounter++
	m.waitAVGCounter %= AVG_COUNT
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	avg := m.waitMSavg
	m.mu.Unlock()

	return MetricsSnapshot{
		Submissions:             m.Submissions.Load(),
		CommandBuffersSubmitted: m.CommandBuffersSubmitted.Load(),
		PipelineBindsEncoded:    m.PipelineBindsEncoded.Load(),
		PipelineBindsElided:     m.PipelineBindsElided.Load(),
		SparseBindBatches:       m.SparseBindBatches.Load(),
		SparseBinds:             m.SparseBinds.Load(),
		Presents:                m.Presents.Load(),
		PresentFailures:         m.PresentFailures.Load(),
		FenceWaits:              m.FenceWaits.Load(),
		FenceTimeouts:           m.FenceTimeouts.Load(),
		FenceWaitAvgMS:          avg,
	}
}
