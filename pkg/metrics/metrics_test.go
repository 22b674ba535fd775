package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventsEnqueuedTotal_IncrementsByKind(t *testing.T) {
	EventsEnqueuedTotal.Reset()

	EventsEnqueuedTotal.WithLabelValues("log").Inc()
	EventsEnqueuedTotal.WithLabelValues("log").Inc()
	EventsEnqueuedTotal.WithLabelValues("fim").Inc()

	if got := testutil.ToFloat64(EventsEnqueuedTotal.WithLabelValues("log")); got != 2 {
		t.Errorf("log count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(EventsEnqueuedTotal.WithLabelValues("fim")); got != 1 {
		t.Errorf("fim count = %v, want 1", got)
	}
}

func TestEventsBuffered_SetAndRead(t *testing.T) {
	EventsBuffered.Set(42)
	if got := testutil.ToFloat64(EventsBuffered); got != 42 {
		t.Errorf("EventsBuffered = %v, want 42", got)
	}
}

func TestConnectionStatus_OnlyOneActive(t *testing.T) {
	ConnectionStatus.Reset()

	ConnectionStatus.WithLabelValues("connected").Set(1)
	ConnectionStatus.WithLabelValues("disconnected").Set(0)
	ConnectionStatus.WithLabelValues("error").Set(0)

	if got := testutil.ToFloat64(ConnectionStatus.WithLabelValues("connected")); got != 1 {
		t.Errorf("connected status = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ConnectionStatus.WithLabelValues("error")); got != 0 {
		t.Errorf("error status = %v, want 0", got)
	}
}

func TestHandler_NotNil(t *testing.T) {
	if Handler() == nil {
		t.Fatal("Handler() returned nil")
	}
}
