// Package supervisor sequences the agent's lifecycle: single-instance
// locking, ordered start/stop of the buffer, shipper, tailer, and FIM, a
// pause gate shared by the enqueue path, and signal-driven graceful
// shutdown.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/machinekinglabs/lognog-agent/pkg/config"
	"github.com/machinekinglabs/lognog-agent/pkg/fim"
	"github.com/machinekinglabs/lognog-agent/pkg/lock"
	"github.com/machinekinglabs/lognog-agent/pkg/log"
	"github.com/machinekinglabs/lognog-agent/pkg/metrics"
	"github.com/machinekinglabs/lognog-agent/pkg/paths"
	"github.com/machinekinglabs/lognog-agent/pkg/shipper"
	"github.com/machinekinglabs/lognog-agent/pkg/statusbroker"
	"github.com/machinekinglabs/lognog-agent/pkg/store"
	"github.com/machinekinglabs/lognog-agent/pkg/tailer"
	"github.com/machinekinglabs/lognog-agent/pkg/verifier"
)

// maxNotificationHistory bounds the in-memory notification ring buffer
// exposed through Status.
const maxNotificationHistory = 100

// ShipperStats mirrors shipper.Stats to avoid an external package leaking
// into callers that only need the supervisor's status shape.
type ShipperStats = shipper.Stats

// Status is a point-in-time snapshot of the whole agent.
type Status struct {
	Configured    bool
	Paused        bool
	ShipperStats  ShipperStats
	TailerRunning bool
	TailerPaths   []string
	FIMEnabled    bool
	FIMRunning    bool
	FIMPaths      []string
	Notifications []statusbroker.Notification
}

// Supervisor owns the full set of agent components and their lifecycle.
type Supervisor struct {
	cfg *config.Config
	log zerolog.Logger

	instanceLock *lock.InstanceLock
	buffer       *store.EventBuffer
	baseline     *store.BaselineStore

	broker    *statusbroker.Broker
	gate      *pauseGate
	shipper   *shipper.Shipper
	tailer    *tailer.Tailer
	fim       *fim.Monitor
	verifier  *verifier.Verifier
	collector *metrics.Collector

	mu            sync.Mutex
	running       bool
	fimRunning    bool
	notifSub      statusbroker.NotificationSubscriber
	notifStopCh   chan struct{}
	notifications []statusbroker.Notification
	notifMu       sync.Mutex

	stopOnce sync.Once
}

// New constructs a Supervisor. It does not open any state or start any
// component — call Start for that.
func New(cfg *config.Config, logger zerolog.Logger) *Supervisor {
	return &Supervisor{cfg: cfg, log: logger}
}

// Start acquires the single-instance lock, opens the durable stores, and
// brings up components in the required order: buffer, shipper, tailer,
// FIM. It returns an error without partial cleanup only when the lock
// cannot be acquired; every later failure tears down whatever was already
// started.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("supervisor already running")
	}

	if !s.cfg.IsConfigured() {
		s.log.Warn().Msg("server_url or api_key is not set — shipper will report errors until configured")
	}

	instanceLock, err := lock.New(paths.DataDir(), "lognog-agent")
	if err != nil {
		return fmt.Errorf("create instance lock: %w", err)
	}
	ok, err := instanceLock.Acquire()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another lognog-agent instance is already running against this data directory")
	}
	s.instanceLock = instanceLock

	buffer, err := store.OpenEventBuffer(paths.BufferDBPath())
	if err != nil {
		_ = s.instanceLock.Release()
		return fmt.Errorf("open event buffer: %w", err)
	}
	s.buffer = buffer

	var baseline *store.BaselineStore
	if s.cfg.FIMEnabled {
		baseline, err = store.OpenBaselineStore(paths.BaselineDBPath())
		if err != nil {
			_ = s.buffer.Close()
			_ = s.instanceLock.Release()
			return fmt.Errorf("open baseline store: %w", err)
		}
		s.baseline = baseline
	}

	s.broker = statusbroker.New()
	s.gate = newPauseGate(s.buffer)

	s.shipper = shipper.New(shipper.Config{
		ServerURL:           s.cfg.ServerURL,
		APIKey:              s.cfg.APIKey,
		Hostname:            s.cfg.Hostname,
		BatchSize:           s.cfg.BatchSize,
		BatchInterval:       secondsToDuration(s.cfg.BatchIntervalSeconds),
		RetryBackoffInitial: secondsToDuration(s.cfg.RetryBackoffSeconds),
		RetryMaxAttempts:    s.cfg.RetryMaxAttempts,
		PoisonThreshold:     config.PoisonThreshold,
	}, s.buffer, s.broker, log.WithComponent("shipper"))

	watchSpecs := toTailerSpecs(s.cfg.WatchPaths)
	t, err := tailer.New(s.cfg.Hostname, watchSpecs, s.gate, log.WithComponent("tailer"))
	if err != nil {
		s.teardownStores()
		return fmt.Errorf("construct tailer: %w", err)
	}
	s.tailer = t

	if s.cfg.FIMEnabled {
		fimSpecs := toFIMSpecs(s.cfg.FIMPaths)
		mon, err := fim.New(s.cfg.Hostname, fimSpecs, s.baseline, s.gate, log.WithComponent("fim"))
		if err != nil {
			s.teardownStores()
			return fmt.Errorf("construct FIM monitor: %w", err)
		}
		s.fim = mon
	}

	// Start order: buffer (already open) -> shipper -> tailer -> FIM.
	s.shipper.Start()
	if err := s.tailer.Start(); err != nil {
		s.log.Error().Err(err).Msg("tailer start reported an error")
	}

	if s.fim != nil {
		if _, err := s.fim.BuildBaseline(); err != nil {
			s.log.Error().Err(err).Msg("initial baseline build failed")
		}
		if err := s.fim.Start(); err != nil {
			s.log.Error().Err(err).Msg("FIM start reported an error")
		} else {
			s.fimRunning = true
		}
		s.verifier = verifier.New(s.fim, verifier.DefaultInterval, log.WithComponent("verifier"))
		s.verifier.Start()
	}

	s.collector = metrics.NewCollector(s.buffer, baselineStatsOrNil(s.baseline))
	s.collector.Start()

	s.startNotificationHistory()

	s.running = true
	return nil
}

// Stop shuts every component down in reverse-of-start order: FIM, tailer,
// shipper, then a best-effort buffer flush. Safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.verifier != nil {
			s.verifier.Stop()
		}
		if s.fim != nil {
			s.fim.Stop()
		}
		if s.tailer != nil {
			s.tailer.Stop()
		}
		if s.shipper != nil {
			s.shipper.Stop()
		}
		if s.collector != nil {
			s.collector.Stop()
		}
		s.stopNotificationHistory()

		s.teardownStores()
		s.running = false
	})
}

func (s *Supervisor) teardownStores() {
	if s.baseline != nil {
		_ = s.baseline.Close()
	}
	if s.buffer != nil {
		_ = s.buffer.Close()
	}
	if s.instanceLock != nil {
		_ = s.instanceLock.Release()
	}
}

// Pause makes enqueue calls from the tailer and FIM no-ops until Resume is
// called. Filesystem observation and offset/baseline tracking continue
// unaffected.
func (s *Supervisor) Pause() {
	if s.gate != nil {
		s.gate.Pause()
	}
}

// Resume reverses Pause.
func (s *Supervisor) Resume() {
	if s.gate != nil {
		s.gate.Resume()
	}
}

// RunUntilSignal blocks until SIGINT or SIGTERM is received, then performs
// a graceful Stop.
func (s *Supervisor) RunUntilSignal() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	s.Stop()
}

// Status returns an aggregate snapshot of the agent's current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := Status{
		Configured:    s.cfg.IsConfigured(),
		Paused:        s.gate != nil && s.gate.Paused(),
		TailerRunning: s.running && s.tailer != nil,
		TailerPaths:   specPaths(s.cfg.WatchPaths),
		FIMEnabled:    s.cfg.FIMEnabled,
		FIMRunning:    s.fimRunning,
		FIMPaths:      specPaths(s.cfg.FIMPaths),
	}
	if s.shipper != nil {
		status.ShipperStats = s.shipper.GetStats()
	}

	s.notifMu.Lock()
	status.Notifications = append([]statusbroker.Notification(nil), s.notifications...)
	s.notifMu.Unlock()

	return status
}

func (s *Supervisor) startNotificationHistory() {
	s.notifSub = s.broker.SubscribeNotifications()
	s.notifStopCh = make(chan struct{})
	go func() {
		for {
			select {
			case n, ok := <-s.notifSub:
				if !ok {
					return
				}
				s.recordNotification(n)
			case <-s.notifStopCh:
				return
			}
		}
	}()
}

func (s *Supervisor) stopNotificationHistory() {
	if s.notifStopCh != nil {
		close(s.notifStopCh)
	}
	if s.broker != nil && s.notifSub != nil {
		s.broker.UnsubscribeNotifications(s.notifSub)
	}
}

func (s *Supervisor) recordNotification(n statusbroker.Notification) {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	s.notifications = append(s.notifications, n)
	if len(s.notifications) > maxNotificationHistory {
		s.notifications = s.notifications[len(s.notifications)-maxNotificationHistory:]
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func toTailerSpecs(specs []config.WatchSpec) []tailer.WatchSpec {
	out := make([]tailer.WatchSpec, len(specs))
	for i, spec := range specs {
		out[i] = tailer.WatchSpec{Path: spec.Path, Pattern: spec.Pattern, Recursive: spec.Recursive, Enabled: spec.Enabled}
	}
	return out
}

func toFIMSpecs(specs []config.WatchSpec) []fim.WatchSpec {
	out := make([]fim.WatchSpec, len(specs))
	for i, spec := range specs {
		out[i] = fim.WatchSpec{Path: spec.Path, Pattern: spec.Pattern, Recursive: spec.Recursive, Enabled: spec.Enabled}
	}
	return out
}

func specPaths(specs []config.WatchSpec) []string {
	out := make([]string, 0, len(specs))
	for _, spec := range specs {
		if spec.Enabled {
			out = append(out, spec.Path)
		}
	}
	return out
}

func baselineStatsOrNil(baseline *store.BaselineStore) metrics.BaselineStats {
	if baseline == nil {
		return nil
	}
	return baseline
}
