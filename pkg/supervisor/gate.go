package supervisor

import (
	"sync/atomic"

	"github.com/machinekinglabs/lognog-agent/pkg/eventmodel"
)

// eventSink is the subset of *store.EventBuffer the pause gate wraps.
type eventSink interface {
	EnqueueLog(record eventmodel.LogRecord) (uint64, error)
	EnqueueFIM(record eventmodel.FIMRecord) (uint64, error)
}

// pauseGate sits between the tailer/FIM and the durable buffer. While
// paused, enqueue calls are no-ops — the tailer and FIM still observe
// filesystem events and advance their offsets/baselines, so resuming does
// not replay anything that happened during the pause.
type pauseGate struct {
	sink   eventSink
	paused atomic.Bool
}

func newPauseGate(sink eventSink) *pauseGate {
	return &pauseGate{sink: sink}
}

func (g *pauseGate) Pause()       { g.paused.Store(true) }
func (g *pauseGate) Resume()      { g.paused.Store(false) }
func (g *pauseGate) Paused() bool { return g.paused.Load() }

func (g *pauseGate) EnqueueLog(record eventmodel.LogRecord) (uint64, error) {
	if g.paused.Load() {
		return 0, nil
	}
	return g.sink.EnqueueLog(record)
}

func (g *pauseGate) EnqueueFIM(record eventmodel.FIMRecord) (uint64, error) {
	if g.paused.Load() {
		return 0, nil
	}
	return g.sink.EnqueueFIM(record)
}
