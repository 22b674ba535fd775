package fim

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/machinekinglabs/lognog-agent/pkg/eventmodel"
	"github.com/machinekinglabs/lognog-agent/pkg/log"
	"github.com/machinekinglabs/lognog-agent/pkg/store"
)

type fakeSink struct {
	mu      sync.Mutex
	records []eventmodel.FIMRecord
}

func (s *fakeSink) EnqueueFIM(record eventmodel.FIMRecord) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return uint64(len(s.records)), nil
}

func (s *fakeSink) all() []eventmodel.FIMRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]eventmodel.FIMRecord, len(s.records))
	copy(out, s.records)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func newMonitor(t *testing.T, dir string, baseline *store.BaselineStore, sink Sink) *Monitor {
	t.Helper()
	log.Init(log.Config{Level: log.ErrorLevel})
	mon, err := New("test-host", []WatchSpec{
		{Path: dir, Pattern: "*", Recursive: false, Enabled: true},
	}, baseline, sink, log.WithComponent("fim"))
	require.NoError(t, err)
	return mon
}

func newBaseline(t *testing.T) *store.BaselineStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "baseline.db")
	bs, err := store.OpenBaselineStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

func TestMonitor_BuildBaselineEmitsNoEvents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)

	count, err := mon.BuildBaseline()
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Empty(t, sink.all())

	entry, ok, err := bs.Get(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, entry.Hash)
}

func TestMonitor_CreateEmitsCreatedEvent(t *testing.T) {
	dir := t.TempDir()
	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)
	require.NoError(t, mon.Start())
	defer mon.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "new.txt"), []byte("content"), 0o644))

	waitFor(t, 2*time.Second, func() bool { return len(sink.all()) == 1 })
	rec := sink.all()[0]
	require.Equal(t, eventmodel.FIMCreated, rec.EventType)
	require.Nil(t, rec.PreviousHash)
	require.NotNil(t, rec.CurrentHash)
}

func TestMonitor_QuietWriteSuppressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("same content"), 0o644))

	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)
	_, err := mon.BuildBaseline()
	require.NoError(t, err)
	require.NoError(t, mon.Start())
	defer mon.Stop()

	time.Sleep(50 * time.Millisecond)

	// Rewrite identical content — the write touches mtime but not the
	// hash.
	require.NoError(t, os.WriteFile(path, []byte("same content"), 0o644))

	time.Sleep(300 * time.Millisecond)
	require.Empty(t, sink.all())
}

func TestMonitor_ModifyEmitsModifiedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("version 1"), 0o644))

	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)
	_, err := mon.BuildBaseline()
	require.NoError(t, err)
	require.NoError(t, mon.Start())
	defer mon.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("version 2, longer content"), 0o644))

	waitFor(t, 2*time.Second, func() bool { return len(sink.all()) == 1 })
	rec := sink.all()[0]
	require.Equal(t, eventmodel.FIMModified, rec.EventType)
	require.NotNil(t, rec.PreviousHash)
	require.NotNil(t, rec.CurrentHash)
	require.NotEqual(t, *rec.PreviousHash, *rec.CurrentHash)
}

func TestMonitor_DeleteEmitsDeletedEvent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("to be deleted"), 0o644))

	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)
	_, err := mon.BuildBaseline()
	require.NoError(t, err)
	require.NoError(t, mon.Start())
	defer mon.Stop()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.Remove(path))

	waitFor(t, 2*time.Second, func() bool { return len(sink.all()) == 1 })
	rec := sink.all()[0]
	require.Equal(t, eventmodel.FIMDeleted, rec.EventType)
	require.NotNil(t, rec.PreviousHash)
	require.Nil(t, rec.CurrentHash)

	_, ok, err := bs.Get(path)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMonitor_VerifyBaselineDetectsExternalChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)
	_, err := mon.BuildBaseline()
	require.NoError(t, err)

	// Simulate an external change the live watcher never saw (e.g. agent
	// was stopped when the edit happened).
	require.NoError(t, os.WriteFile(path, []byte("changed while agent was down"), 0o644))

	require.NoError(t, mon.VerifyBaseline())

	records := sink.all()
	require.Len(t, records, 1)
	require.Equal(t, eventmodel.FIMModified, records[0].EventType)
	meta, ok := records[0].Metadata["verification"]
	require.True(t, ok)
	require.Equal(t, true, meta)
}

func TestMonitor_VerifyBaselineDetectsDeletion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	bs := newBaseline(t)
	sink := &fakeSink{}
	mon := newMonitor(t, dir, bs, sink)
	_, err := mon.BuildBaseline()
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	require.NoError(t, mon.VerifyBaseline())

	records := sink.all()
	require.Len(t, records, 1)
	require.Equal(t, eventmodel.FIMDeleted, records[0].EventType)

	_, ok, err := bs.Get(path)
	require.NoError(t, err)
	require.False(t, ok)
}
