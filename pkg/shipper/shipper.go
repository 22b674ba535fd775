// Package shipper drains the durable event buffer into batched HTTP POSTs,
// tracks connection status through a small state machine, and polls the
// server for notifications while connected. It runs as a single dedicated
// worker goroutine — the buffer mediates between it and the concurrently
// running tailer and FIM.
package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/machinekinglabs/lognog-agent/pkg/eventmodel"
	"github.com/machinekinglabs/lognog-agent/pkg/health"
	"github.com/machinekinglabs/lognog-agent/pkg/metrics"
	"github.com/machinekinglabs/lognog-agent/pkg/statusbroker"
)

// userAgent identifies this agent to the server.
const userAgent = "LogNog-In/0.1.0"

const (
	postTimeout             = 30 * time.Second
	healthProbeTimeout      = 5 * time.Second
	notificationPollTimeout = 10 * time.Second
	notificationAckTimeout  = 5 * time.Second

	notificationPollInterval = 30 * time.Second
	idleInterval             = time.Second
	maxBackoff               = 60 * time.Second

	joinTimeout = 10 * time.Second
)

// Buffer is the subset of *store.EventBuffer the shipper needs.
type Buffer interface {
	NextBatch(limit int) ([]eventmodel.BufferedEntry, error)
	Remove(ids []uint64) error
	BumpAttempts(ids []uint64) error
	EvictPoison(maxAttempts int) (int, error)
	Count() (int, error)
}

// Config tunes the shipper's batching, retry, and auth behavior.
type Config struct {
	ServerURL           string
	APIKey              string
	Hostname            string
	BatchSize           int
	BatchInterval       time.Duration
	RetryBackoffInitial time.Duration
	// RetryMaxAttempts bounds how many times the backoff doubles before it
	// stops growing; the realized ceiling is still capped at maxBackoff
	// (60s) regardless of this value.
	RetryMaxAttempts int
	PoisonThreshold  int
}

// Stats is a point-in-time snapshot of the shipper's activity.
type Stats struct {
	Status         statusbroker.Status
	EventsSent     int
	EventsFailed   int
	EventsBuffered int
	LastSendTime   time.Time
	LastError      string
}

// Shipper is the batched HTTP sender.
type Shipper struct {
	cfg    Config
	buffer Buffer
	broker *statusbroker.Broker
	client *http.Client
	log    zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}

	maxBackoff    time.Duration
	backoff       time.Duration
	lastNotifPoll time.Time
	eventsSent    int
	eventsFailed  int
	lastSendTime  time.Time
	lastError     string
}

// New constructs a Shipper. cfg.RetryBackoffInitial and cfg.PoisonThreshold
// default to spec-mandated values when zero.
func New(cfg Config, buffer Buffer, broker *statusbroker.Broker, logger zerolog.Logger) *Shipper {
	if cfg.RetryBackoffInitial <= 0 {
		cfg.RetryBackoffInitial = 2 * time.Second
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = 5
	}
	if cfg.PoisonThreshold <= 0 {
		cfg.PoisonThreshold = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 5 * time.Second
	}

	ceiling := cfg.RetryBackoffInitial
	for i := 0; i < cfg.RetryMaxAttempts; i++ {
		ceiling *= 2
	}
	ceiling = min(ceiling, maxBackoff)

	return &Shipper{
		cfg:    cfg,
		buffer: buffer,
		broker: broker,
		client: &http.Client{
			Transport: &http.Transport{
				MaxConnsPerHost:     10,
				MaxIdleConnsPerHost: 5,
			},
		},
		log:        logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		backoff:    cfg.RetryBackoffInitial,
		maxBackoff: ceiling,
	}
}

// Start runs the main loop in its own goroutine.
func (s *Shipper) Start() {
	go s.run()
}

// Stop signals the loop to exit, waiting up to joinTimeout for it to
// finish an in-flight iteration before returning.
func (s *Shipper) Stop() {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(joinTimeout):
		s.log.Warn().Msg("shipper did not stop within join timeout")
	}
}

func (s *Shipper) run() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		sent := s.iterate()

		interval := idleInterval
		if sent {
			interval = s.cfg.BatchInterval
		}
		select {
		case <-s.stopCh:
			return
		case <-time.After(interval):
		}
	}
}

// iterate runs one loop body, returning true if a batch was attempted.
func (s *Shipper) iterate() bool {
	if !s.configured() {
		s.setStatus(statusbroker.Error, "not configured")
		return false
	}

	if _, err := s.buffer.EvictPoison(s.cfg.PoisonThreshold); err != nil {
		s.log.Error().Err(err).Msg("evict poison failed")
	}

	batch, err := s.buffer.NextBatch(s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Msg("next batch failed")
		return false
	}

	sent := false
	if len(batch) > 0 {
		s.setStatus(statusbroker.Connecting, "")
		s.sendBatch(batch)
		sent = true
	} else if st, ok := s.broker.LastStatus(); !ok || st != statusbroker.Connected {
		s.probeHealth()
	}

	if st, ok := s.broker.LastStatus(); ok && st == statusbroker.Connected {
		s.maybePollNotifications()
	}

	return sent
}

func (s *Shipper) configured() bool {
	return s.cfg.ServerURL != "" && s.cfg.APIKey != ""
}

func (s *Shipper) sendBatch(batch []eventmodel.BufferedEntry) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ShipBatchDuration)

	ids := make([]uint64, len(batch))
	events := make([]json.RawMessage, len(batch))
	for i, entry := range batch {
		ids[i] = entry.ID
		events[i] = wrapEvent(entry)
	}

	body, err := json.Marshal(struct {
		Events []json.RawMessage `json:"events"`
	}{Events: events})
	if err != nil {
		s.log.Error().Err(err).Msg("marshal batch failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
	defer cancel()

	status, err := s.post(ctx, "/api/ingest/agent", body)
	switch {
	case err != nil:
		s.eventsFailed += len(ids)
		s.lastError = err.Error()
		if bumpErr := s.buffer.BumpAttempts(ids); bumpErr != nil {
			s.log.Error().Err(bumpErr).Msg("bump attempts failed")
		}
		metrics.EventsFailedTotal.WithLabelValues("transport").Add(float64(len(ids)))
		s.backoff = min(s.backoff*2, s.maxBackoff)
		s.setStatus(statusbroker.Disconnected, err.Error())

	case status == http.StatusOK:
		if err := s.buffer.Remove(ids); err != nil {
			s.log.Error().Err(err).Msg("remove sent batch failed")
		}
		s.eventsSent += len(ids)
		s.lastSendTime = time.Now().UTC()
		s.backoff = s.cfg.RetryBackoffInitial
		for _, entry := range batch {
			metrics.EventsSentTotal.WithLabelValues(string(entry.Kind)).Inc()
		}
		s.setStatus(statusbroker.Connected, "")

	case status == http.StatusUnauthorized:
		// Durable auth failure: batch is retained, attempts are not
		// bumped — the user must fix configuration, not wait out a backoff.
		s.lastError = "authentication failed (401)"
		metrics.EventsFailedTotal.WithLabelValues("auth").Inc()
		s.setStatus(statusbroker.Error, "auth")

	default:
		s.eventsFailed += len(ids)
		s.lastError = fmt.Sprintf("server returned %d", status)
		if bumpErr := s.buffer.BumpAttempts(ids); bumpErr != nil {
			s.log.Error().Err(bumpErr).Msg("bump attempts failed")
		}
		metrics.EventsFailedTotal.WithLabelValues("server").Add(float64(len(ids)))
		s.backoff = min(s.backoff*2, s.maxBackoff)
		s.setStatus(statusbroker.Error, s.lastError)
	}
}

// wrapEvent merges the buffered entry's own "type" discriminator into its
// serialized payload so the server can dispatch on a single envelope field
// without needing the buffer's internal Kind representation.
func wrapEvent(entry eventmodel.BufferedEntry) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry.Payload, &fields); err != nil {
		return entry.Payload
	}
	typeValue, err := json.Marshal(string(entry.Kind))
	if err != nil {
		return entry.Payload
	}
	fields["type"] = typeValue

	out, err := json.Marshal(fields)
	if err != nil {
		return entry.Payload
	}
	return out
}

func (s *Shipper) probeHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
	defer cancel()

	checker := health.NewHTTPChecker(s.cfg.ServerURL + "/health").WithTimeout(healthProbeTimeout)
	result := checker.Check(ctx)
	if result.Healthy {
		s.setStatus(statusbroker.Connected, "")
	} else {
		s.lastError = result.Message
		s.setStatus(statusbroker.Disconnected, result.Message)
	}
}

type notificationsResponse struct {
	Notifications []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"notifications"`
}

func (s *Shipper) maybePollNotifications() {
	if time.Since(s.lastNotifPoll) < notificationPollInterval {
		return
	}
	s.lastNotifPoll = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), notificationPollTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/ingest/notifications?hostname=%s", s.cfg.ServerURL, s.cfg.Hostname)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("build notification poll request failed")
		return
	}
	s.setAuthHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Msg("notification poll failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Msg("notification poll returned non-200")
		return
	}

	var parsed notificationsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		s.log.Error().Err(err).Msg("decode notifications failed")
		return
	}

	for _, n := range parsed.Notifications {
		s.broker.PublishNotification(statusbroker.Notification{
			ID: n.ID, Title: n.Title, Message: n.Message, Severity: n.Severity,
		})
		s.ackNotification(n.ID)
	}
}

func (s *Shipper) ackNotification(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), notificationAckTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]string{"hostname": s.cfg.Hostname})
	url := fmt.Sprintf("%s/api/ingest/notifications/%s/ack", s.cfg.ServerURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.log.Error().Err(err).Str("notification_id", id).Msg("build ack request failed")
		return
	}
	s.setAuthHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("notification_id", id).Msg("ack failed")
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		s.log.Warn().Int("status", resp.StatusCode).Str("notification_id", id).Msg("ack returned non-200")
	}
}

func (s *Shipper) post(ctx context.Context, path string, body []byte) (int, error) {
	url := s.cfg.ServerURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	s.setAuthHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

func (s *Shipper) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "ApiKey "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

var allStatuses = []statusbroker.Status{
	statusbroker.Disconnected, statusbroker.Connecting, statusbroker.Connected, statusbroker.Error,
}

func (s *Shipper) setStatus(status statusbroker.Status, reason string) {
	s.broker.PublishStatus(status, reason)
	for _, st := range allStatuses {
		value := 0.0
		if st == status {
			value = 1.0
		}
		metrics.ConnectionStatus.WithLabelValues(string(st)).Set(value)
	}
}

// GetStats returns a snapshot of the shipper's current activity.
func (s *Shipper) GetStats() Stats {
	status, _ := s.broker.LastStatus()
	bufferedCount, _ := s.buffer.Count()
	return Stats{
		Status:         status,
		EventsSent:     s.eventsSent,
		EventsFailed:   s.eventsFailed,
		EventsBuffered: bufferedCount,
		LastSendTime:   s.lastSendTime,
		LastError:      s.lastError,
	}
}

func min(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
