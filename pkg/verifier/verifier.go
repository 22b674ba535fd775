// Package verifier runs the file integrity monitor's full baseline
// verification on a schedule, following the same ticker-driven
// start/stop loop used elsewhere in this agent for periodic background
// work.
package verifier

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Monitor is the subset of *fim.Monitor the verifier needs.
type Monitor interface {
	VerifyBaseline() error
}

// Verifier periodically invokes a FIM monitor's full verification pass.
type Verifier struct {
	monitor  Monitor
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.RWMutex
	stopCh chan struct{}
}

// DefaultInterval is how often verification runs when the agent does not
// override it: once an hour, balancing detection latency against the
// cost of rehashing every baselined file.
const DefaultInterval = time.Hour

// New constructs a Verifier. An interval of zero uses DefaultInterval.
func New(monitor Monitor, interval time.Duration, logger zerolog.Logger) *Verifier {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Verifier{monitor: monitor, interval: interval, logger: logger}
}

// Start begins the periodic verification loop.
func (v *Verifier) Start() {
	v.mu.Lock()
	v.stopCh = make(chan struct{})
	stopCh := v.stopCh
	v.mu.Unlock()

	go v.run(stopCh)
}

// Stop ends the loop.
func (v *Verifier) Stop() {
	v.mu.RLock()
	stopCh := v.stopCh
	v.mu.RUnlock()
	if stopCh != nil {
		close(stopCh)
	}
}

func (v *Verifier) run(stopCh chan struct{}) {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := v.monitor.VerifyBaseline(); err != nil {
				v.logger.Error().Err(err).Msg("baseline verification failed")
			}
		case <-stopCh:
			return
		}
	}
}
