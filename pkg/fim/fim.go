// Package fim implements the file integrity monitor: it builds a baseline
// of file hashes, watches for filesystem changes, and emits one FIM record
// per genuine content change — suppressing "quiet writes" where a file is
// touched but its hash does not change.
package fim

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/machinekinglabs/lognog-agent/pkg/eventmodel"
	"github.com/machinekinglabs/lognog-agent/pkg/hash"
	"github.com/machinekinglabs/lognog-agent/pkg/metrics"
	"github.com/machinekinglabs/lognog-agent/pkg/pathmatch"
	"github.com/machinekinglabs/lognog-agent/pkg/store"
)

// Sink receives completed FIM records. *store.EventBuffer satisfies this
// via its EnqueueFIM method.
type Sink interface {
	EnqueueFIM(record eventmodel.FIMRecord) (uint64, error)
}

// WatchSpec describes one root the FIM watches.
type WatchSpec struct {
	Path      string
	Pattern   string
	Recursive bool
	Enabled   bool
}

// Monitor builds and maintains a baseline of file hashes under its
// configured roots and emits a record for every genuine content change.
type Monitor struct {
	hostname string
	specs    []WatchSpec
	baseline *store.BaselineStore
	sink     Sink
	log      zerolog.Logger

	watcher *fsnotify.Watcher
	rootOf  map[string]WatchSpec

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Monitor over the given roots and baseline store.
func New(hostname string, specs []WatchSpec, baseline *store.BaselineStore, sink Sink, logger zerolog.Logger) (*Monitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Monitor{
		hostname: hostname,
		specs:    specs,
		baseline: baseline,
		sink:     sink,
		log:      logger,
		watcher:  watcher,
		rootOf:   make(map[string]WatchSpec),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// BuildBaseline walks every enabled root, hashes every matching file, and
// populates the baseline store. It emits no records — this pass only
// establishes the "known good" state. The whole pass is skipped (returning
// 0) when the baseline store already holds any entry, so a restart does
// not reset existing entries; paths under roots added later are not
// baselined by this call.
func (m *Monitor) BuildBaseline() (int, error) {
	count, err := m.baseline.Count()
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	var baselined int
	for _, spec := range m.specs {
		if !spec.Enabled {
			continue
		}
		err := filepath.WalkDir(spec.Path, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr
			}
			if d.IsDir() {
				if !spec.Recursive && path != spec.Path {
					return filepath.SkipDir
				}
				return nil
			}
			if !pathmatch.Matches(spec.Pattern, path) {
				return nil
			}
			digest, err := hash.FileSHA256(path)
			if err != nil {
				m.log.Warn().Err(err).Str("path", path).Msg("baseline hash failed")
				return nil
			}
			if err := m.baseline.Set(path, digest, fileMetadata(path)); err != nil {
				return err
			}
			baselined++
			return nil
		})
		if err != nil {
			return baselined, err
		}
	}
	return baselined, nil
}

// Start registers filesystem watches on every enabled root and begins the
// live event loop.
func (m *Monitor) Start() error {
	for _, spec := range m.specs {
		if !spec.Enabled {
			continue
		}
		dirs := []string{spec.Path}
		if spec.Recursive {
			var subdirs []string
			_ = filepath.WalkDir(spec.Path, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return nil //nolint:nilerr
				}
				if d.IsDir() {
					subdirs = append(subdirs, path)
				}
				return nil
			})
			dirs = subdirs
		}
		for _, dir := range dirs {
			if err := m.watcher.Add(dir); err != nil {
				m.log.Error().Err(err).Str("path", dir).Msg("failed to watch FIM root")
				continue
			}
			m.rootOf[dir] = spec
		}
	}

	go m.run()
	return nil
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
	_ = m.watcher.Close()
}

func (m *Monitor) run() {
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.log.Error().Err(err).Msg("fsnotify watcher error")
		}
	}
}

func (m *Monitor) handleEvent(event fsnotify.Event) {
	spec, ok := m.rootOf[filepath.Dir(event.Name)]
	if !ok {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return
	}
	if !pathmatch.Matches(spec.Pattern, event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		m.handleCreate(spec, event.Name)
	case event.Op&fsnotify.Write != 0:
		m.handleModify(spec, event.Name)
	case event.Op&fsnotify.Remove != 0:
		m.handleDelete(spec, event.Name)
	case event.Op&fsnotify.Rename != 0:
		// The move's source no longer exists under this name; treat it as
		// a delete. fsnotify reports the destination as a separate Create
		// event, handled above — no content hash carries across the move.
		m.handleDelete(spec, event.Name)
	}
}

func (m *Monitor) handleCreate(spec WatchSpec, path string) {
	digest, err := hash.FileSHA256(path)
	if err != nil {
		m.log.Warn().Err(err).Str("path", path).Msg("hash on create failed")
		return
	}
	if err := m.baseline.Set(path, digest, fileMetadata(path)); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("baseline set failed")
		return
	}
	m.emit(spec, eventmodel.FIMCreated, path, nil, &digest, nil)
}

func (m *Monitor) handleModify(spec WatchSpec, path string) {
	prior, hadPrior, err := m.baseline.Get(path)
	if err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("baseline get failed")
		return
	}

	digest, err := hash.FileSHA256(path)
	if err != nil {
		m.log.Warn().Err(err).Str("path", path).Msg("hash on modify failed")
		return
	}

	if hadPrior && prior.Hash == digest {
		return // quiet write: content unchanged, suppress
	}

	if err := m.baseline.Set(path, digest, fileMetadata(path)); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("baseline set failed")
		return
	}

	var previous *string
	if hadPrior {
		previous = &prior.Hash
	}
	m.emit(spec, eventmodel.FIMModified, path, previous, &digest, nil)
}

func (m *Monitor) handleDelete(spec WatchSpec, path string) {
	prior, hadPrior, err := m.baseline.Get(path)
	if err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("baseline get failed")
		return
	}
	if !hadPrior {
		return
	}
	if err := m.baseline.Remove(path); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("baseline remove failed")
		return
	}
	m.emit(spec, eventmodel.FIMDeleted, path, &prior.Hash, nil, prior.Metadata)
}

// VerifyBaseline walks the whole baseline store, re-hashes every entry,
// and emits "modified" or "deleted" records for anything that changed or
// vanished since the last check. Each emitted record is tagged
// verification: true. It is exposed for the supervisor to schedule
// periodically; the monitor itself does not self-schedule it.
func (m *Monitor) VerifyBaseline() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.FIMVerificationDuration)

	type change struct {
		path      string
		eventType eventmodel.FIMEventType
		previous  *string
		current   *string
		fallback  map[string]string
	}
	var changes []change

	err := m.baseline.All(func(path string, entry store.BaselineEntry) error {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			changes = append(changes, change{
				path: path, eventType: eventmodel.FIMDeleted,
				previous: strPtr(entry.Hash), fallback: entry.Metadata,
			})
			return nil
		}

		digest, err := hash.FileSHA256(path)
		if err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("verify hash failed")
			return nil
		}
		if digest != entry.Hash {
			changes = append(changes, change{
				path: path, eventType: eventmodel.FIMModified,
				previous: strPtr(entry.Hash), current: strPtr(digest),
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, c := range changes {
		switch c.eventType {
		case eventmodel.FIMDeleted:
			if err := m.baseline.Remove(c.path); err != nil {
				m.log.Error().Err(err).Str("path", c.path).Msg("baseline remove during verify failed")
				continue
			}
		case eventmodel.FIMModified:
			if err := m.baseline.Set(c.path, *c.current, fileMetadata(c.path)); err != nil {
				m.log.Error().Err(err).Str("path", c.path).Msg("baseline set during verify failed")
				continue
			}
		}
		m.emitVerified(m.specForPath(c.path), c.path, c.eventType, c.previous, c.current, c.fallback)
	}
	return nil
}

func strPtr(s string) *string { return &s }

// specForPath finds the WatchSpec whose root owns path, choosing the
// longest matching root when roots nest. Unlike rootOf (populated only
// for directories Start has registered a live watch on), this works
// against any baselined path regardless of whether the monitor's watcher
// is running — VerifyBaseline can run standalone, e.g. from the "verify"
// CLI command, without Start ever having been called.
func (m *Monitor) specForPath(path string) WatchSpec {
	var best WatchSpec
	bestLen := -1
	for _, spec := range m.specs {
		rel, err := filepath.Rel(spec.Path, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(spec.Path) > bestLen {
			best = spec
			bestLen = len(spec.Path)
		}
	}
	return best
}

// ownerAndPermissions prefers a live stat; if the file no longer exists it
// falls back to the owner/permissions recorded in the baseline entry.
func ownerAndPermissions(path string, fallback map[string]string) (owner, permissions string) {
	owner, permissions = statMetadata(path)
	if owner == "" && permissions == "" && fallback != nil {
		owner = fallback["owner"]
		permissions = fallback["permissions"]
	}
	return owner, permissions
}

func (m *Monitor) emit(spec WatchSpec, eventType eventmodel.FIMEventType, path string, previous, current *string, fallback map[string]string) {
	owner, perms := ownerAndPermissions(path, fallback)
	metadata := map[string]interface{}{
		"fim_path": spec.Path,
		"pattern":  spec.Pattern,
	}
	for k, v := range sizeMTimeCTime(path) {
		metadata[k] = v
	}
	record := eventmodel.FIMRecord{
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		Hostname:        m.hostname,
		Source:          eventmodel.AgentSource,
		SourceType:      "fim",
		EventType:       eventType,
		FilePath:        path,
		PreviousHash:    previous,
		CurrentHash:     current,
		FileOwner:       owner,
		FilePermissions: perms,
		Metadata:        metadata,
	}
	if _, err := m.sink.EnqueueFIM(record); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("enqueue FIM record failed")
		return
	}
	metrics.EventsEnqueuedTotal.WithLabelValues(string(eventmodel.KindFIM)).Inc()
}

func (m *Monitor) emitVerified(spec WatchSpec, path string, eventType eventmodel.FIMEventType, previous, current *string, fallback map[string]string) {
	owner, perms := ownerAndPermissions(path, fallback)
	metadata := map[string]interface{}{
		"fim_path":     spec.Path,
		"pattern":      spec.Pattern,
		"verification": true,
	}
	for k, v := range sizeMTimeCTime(path) {
		metadata[k] = v
	}
	record := eventmodel.FIMRecord{
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		Hostname:        m.hostname,
		Source:          eventmodel.AgentSource,
		SourceType:      "fim",
		EventType:       eventType,
		FilePath:        path,
		PreviousHash:    previous,
		CurrentHash:     current,
		FileOwner:       owner,
		FilePermissions: perms,
		Metadata:        metadata,
	}
	if _, err := m.sink.EnqueueFIM(record); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("enqueue FIM verification record failed")
		return
	}
	metrics.EventsEnqueuedTotal.WithLabelValues(string(eventmodel.KindFIM)).Inc()
}
