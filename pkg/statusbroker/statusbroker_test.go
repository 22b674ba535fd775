package statusbroker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBroker_PublishStatusOncePerTransition(t *testing.T) {
	b := New()
	sub := b.SubscribeStatus()

	b.PublishStatus(Connecting, "")
	b.PublishStatus(Connecting, "")
	b.PublishStatus(Connected, "")

	var received []Status
	timeout := time.After(time.Second)
	for len(received) < 2 {
		select {
		case ev := <-sub:
			received = append(received, ev.Status)
		case <-timeout:
			t.Fatal("timed out waiting for status events")
		}
	}

	require.Equal(t, []Status{Connecting, Connected}, received)

	select {
	case ev := <-sub:
		t.Fatalf("unexpected extra event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_LastStatus(t *testing.T) {
	b := New()
	_, ok := b.LastStatus()
	require.False(t, ok)

	b.PublishStatus(Error, "auth")
	status, ok := b.LastStatus()
	require.True(t, ok)
	require.Equal(t, Error, status)
}

func TestBroker_UnsubscribeStatus(t *testing.T) {
	b := New()
	sub := b.SubscribeStatus()
	b.UnsubscribeStatus(sub)

	_, open := <-sub
	require.False(t, open)
}

func TestBroker_PublishNotification(t *testing.T) {
	b := New()
	sub := b.SubscribeNotifications()

	b.PublishNotification(Notification{ID: "n1", Title: "T", Message: "M", Severity: "high"})

	select {
	case n := <-sub:
		require.Equal(t, "n1", n.ID)
		require.Equal(t, "T", n.Title)
		require.Equal(t, "high", n.Severity)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
