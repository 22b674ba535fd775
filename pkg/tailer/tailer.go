// Package tailer implements the agent's log tailer: it watches a set of
// root directories for files matching a glob pattern and emits one log
// record per newly appended line, following the watch-then-drain idiom
// (register the filesystem watch before reading existing content, so no
// write lands in the gap between the two).
package tailer

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/machinekinglabs/lognog-agent/pkg/eventmodel"
	"github.com/machinekinglabs/lognog-agent/pkg/metrics"
	"github.com/machinekinglabs/lognog-agent/pkg/pathmatch"
)

// renameGracePeriod bounds how long a discarded source offset from a
// Rename event is held before being discarded, waiting to be claimed by
// the Create event fsnotify reports for the destination. Plain fsnotify
// carries no cookie linking the two, so this is a best-effort
// approximation of "transfer the offset across a move" for the common
// case of one rename immediately followed by one create (log rotation).
const renameGracePeriod = 2 * time.Second

// WatchSpec describes one root the tailer watches.
type WatchSpec struct {
	Path      string
	Pattern   string
	Recursive bool
	Enabled   bool
}

// Sink receives completed log records. *store.EventBuffer satisfies this
// via its EnqueueLog method.
type Sink interface {
	EnqueueLog(record eventmodel.LogRecord) (uint64, error)
}

type fileState struct {
	mu     sync.Mutex
	offset int64
}

// Tailer watches a set of roots and enqueues log records for newly
// appended lines.
type Tailer struct {
	hostname string
	specs    []WatchSpec
	sink     Sink
	log      zerolog.Logger

	watcher *fsnotify.Watcher

	mu          sync.Mutex
	files       map[string]*fileState
	rootOf      map[string]WatchSpec // watched directory -> owning root spec
	pendingMove struct {
		offset int64
		at     time.Time
		valid  bool
	}

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Tailer over the given roots. Only specs with
// Enabled set to true are watched.
func New(hostname string, specs []WatchSpec, sink Sink, logger zerolog.Logger) (*Tailer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Tailer{
		hostname: hostname,
		specs:    specs,
		sink:     sink,
		log:      logger,
		watcher:  watcher,
		files:    make(map[string]*fileState),
		rootOf:   make(map[string]WatchSpec),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start registers filesystem watches on every enabled root, then performs
// initial discovery: every matching file's offset is seeded to its
// current size, so historical content is never replayed.
func (t *Tailer) Start() error {
	for _, spec := range t.specs {
		if !spec.Enabled {
			continue
		}
		if err := t.watchRoot(spec); err != nil {
			t.log.Error().Err(err).Str("path", spec.Path).Msg("failed to watch root")
			continue
		}
		if err := t.discover(spec); err != nil {
			t.log.Error().Err(err).Str("path", spec.Path).Msg("discovery failed")
		}
	}

	go t.run()
	return nil
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (t *Tailer) Stop() {
	close(t.stopCh)
	<-t.doneCh
	_ = t.watcher.Close()
}

func (t *Tailer) watchRoot(spec WatchSpec) error {
	dirs := []string{spec.Path}
	if spec.Recursive {
		var subdirs []string
		err := filepath.WalkDir(spec.Path, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // best-effort walk, skip unreadable entries
			}
			if d.IsDir() {
				subdirs = append(subdirs, path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walk %s: %w", spec.Path, err)
		}
		dirs = subdirs
	}

	for _, dir := range dirs {
		if err := t.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		t.mu.Lock()
		t.rootOf[dir] = spec
		t.mu.Unlock()
	}
	return nil
}

func (t *Tailer) discover(spec WatchSpec) error {
	return filepath.WalkDir(spec.Path, func(path string, d fs.DirEntry, err error) error {
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
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}
		t.setOffset(path, info.Size())
		return nil
	})
}

func (t *Tailer) run() {
	defer close(t.doneCh)
	for {
		select {
		case <-t.stopCh:
			return
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			t.handleEvent(event)
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.log.Error().Err(err).Msg("fsnotify watcher error")
		}
	}
}

func (t *Tailer) handleEvent(event fsnotify.Event) {
	spec, ok := t.specFor(event.Name)
	if !ok {
		return
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		return // directory events are ignored
	}
	if !pathmatch.Matches(spec.Pattern, event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if offset, claimed := t.claimPendingMove(); claimed {
			t.setOffset(event.Name, offset)
		} else {
			t.setOffset(event.Name, 0)
		}
		t.drain(spec, event.Name)

	case event.Op&fsnotify.Write != 0:
		t.drain(spec, event.Name)

	case event.Op&fsnotify.Rename != 0:
		offset, tracked := t.takeOffset(event.Name)
		if tracked {
			t.setPendingMove(offset)
		}

	case event.Op&fsnotify.Remove != 0:
		t.takeOffset(event.Name)
	}
}

// specFor finds the watch spec owning path's parent directory.
func (t *Tailer) specFor(path string) (WatchSpec, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	spec, ok := t.rootOf[filepath.Dir(path)]
	return spec, ok
}

func (t *Tailer) setPendingMove(offset int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pendingMove.offset = offset
	t.pendingMove.at = time.Now()
	t.pendingMove.valid = true
}

func (t *Tailer) claimPendingMove() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pendingMove.valid {
		return 0, false
	}
	t.pendingMove.valid = false
	if time.Since(t.pendingMove.at) > renameGracePeriod {
		return 0, false
	}
	return t.pendingMove.offset, true
}

func (t *Tailer) setOffset(path string, offset int64) {
	t.mu.Lock()
	fs, ok := t.files[path]
	if !ok {
		fs = &fileState{}
		t.files[path] = fs
	}
	t.mu.Unlock()

	fs.mu.Lock()
	fs.offset = offset
	fs.mu.Unlock()
}

func (t *Tailer) takeOffset(path string) (int64, bool) {
	t.mu.Lock()
	fs, ok := t.files[path]
	if ok {
		delete(t.files, path)
	}
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	fs.mu.Lock()
	offset := fs.offset
	fs.mu.Unlock()
	return offset, true
}

// drain reads newly appended content from path, splits it into lines, and
// enqueues one log record per retained line.
func (t *Tailer) drain(spec WatchSpec, path string) {
	t.mu.Lock()
	fs, ok := t.files[path]
	if !ok {
		fs = &fileState{}
		t.files[path] = fs
	}
	t.mu.Unlock()

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		t.log.Error().Err(err).Str("path", path).Msg("open for drain failed")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		t.log.Error().Err(err).Str("path", path).Msg("stat for drain failed")
		return
	}

	if info.Size() < fs.offset {
		fs.offset = 0
	}

	if _, err := f.Seek(fs.offset, io.SeekStart); err != nil {
		t.log.Error().Err(err).Str("path", path).Msg("seek for drain failed")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		t.log.Error().Err(err).Str("path", path).Msg("read for drain failed")
		return
	}

	lines := splitLines(data)
	if len(lines) > 0 {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		metadata := map[string]string{
			"watch_root": spec.Path,
			"pattern":    spec.Pattern,
		}
		for _, line := range lines {
			record := eventmodel.LogRecord{
				Timestamp:  now,
				Hostname:   t.hostname,
				Source:     eventmodel.AgentSource,
				SourceType: "file",
				FilePath:   path,
				Message:    line,
				Metadata:   metadata,
			}
			if _, err := t.sink.EnqueueLog(record); err != nil {
				t.log.Error().Err(err).Str("path", path).Msg("enqueue log record failed")
				return
			}
			metrics.TailerLinesReadTotal.Inc()
		}
		metrics.EventsEnqueuedTotal.WithLabelValues(string(eventmodel.KindLog)).Add(float64(len(lines)))
	}

	fs.offset += int64(len(data))
}

// splitLines splits on "\n", trims a trailing "\r" from each line, and
// discards lines that are empty once whitespace-trimmed.
func splitLines(data []byte) []string {
	var lines []string
	for _, raw := range bytes.Split(data, []byte("\n")) {
		line := strings.TrimSuffix(string(raw), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
