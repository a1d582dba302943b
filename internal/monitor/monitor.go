// Package monitor watches a repository's file tree for changes and
// dispatches coalesced FileEvents to the repository mapper and any
// subscribed event bus. A single Monitor instance is started once;
// it is not restartable after Stop.
package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/standardbeagle/repomap-engine/internal/engineerrors"
	"github.com/standardbeagle/repomap-engine/internal/events"
	"github.com/standardbeagle/repomap-engine/internal/logging"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
	"github.com/standardbeagle/repomap-engine/internal/repomap"
)

// Updater is the subset of *repomap.RepoMap the monitor needs to
// apply an incremental change.
type Updater interface {
	UpdateOnChange(ctx context.Context, path string, removed bool) error
}

var _ Updater = (*repomap.RepoMap)(nil)

// Callback is invoked after a FileEvent has been dispatched to the
// updater and published on the bus. A non-nil error is logged but
// never stops the monitor.
type Callback func(event maptypes.FileEvent) error

// pendingKind distinguishes a hard delete from a rename-induced
// disappearance, since only the latter is eligible for move pairing.
type pendingKind int

const (
	pendingCreated pendingKind = iota
	pendingModified
	pendingRemoved
	pendingRenamedAway
)

// Status reports the monitor's current state.
type Status struct {
	Running         bool
	WatchedPaths    int
	EventsProcessed int64
	ErrorCount      int64
	LastEventTime   time.Time
}

// Monitor watches one or more filesystem roots and feeds changes into
// a RepoMap, publishing a FileEvent per change on an events.Bus.
type Monitor struct {
	watcher  *fsnotify.Watcher
	updater  Updater
	bus      *events.Bus
	log      *logging.Logger
	debounce time.Duration
	callback Callback

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]pendingKind
	timer   *time.Timer
	started bool
	stopped bool

	watchedMu sync.Mutex
	watched   map[string]struct{}

	statsMu         sync.RWMutex
	eventsProcessed int64
	errorCount      int64
	lastEventTime   time.Time

	changeMu   sync.Mutex
	changeCond *sync.Cond
	changeSeq  uint64
}

// New creates a Monitor that applies changes to updater and publishes
// FileEvents on bus, coalescing rapid repeats of the same path within
// debounce.
func New(updater Updater, bus *events.Bus, debounce time.Duration) (*Monitor, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, engineerrors.Wrap(engineerrors.KindWatcher, "create fsnotify watcher", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	m := &Monitor{
		watcher:  w,
		updater:  updater,
		bus:      bus,
		log:      logging.NewLoggerWithName("monitor"),
		debounce: debounce,
		pending:  make(map[string]pendingKind),
		watched:  make(map[string]struct{}),
	}
	m.changeCond = sync.NewCond(&m.changeMu)
	return m, nil
}

// SetCallback registers a function invoked after each dispatched
// FileEvent.
func (m *Monitor) SetCallback(cb Callback) {
	m.callback = cb
}

// Start begins watching paths. When recursive is true, every
// directory beneath each path is watched too, and newly created
// subdirectories are watched as they appear. Start may be called only
// once per Monitor.
func (m *Monitor) Start(ctx context.Context, paths []string, recursive bool) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return engineerrors.New(engineerrors.KindInvalidOp, "monitor already started")
	}
	m.started = true
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)

	for _, p := range paths {
		if err := m.AddPath(p, recursive); err != nil {
			return err
		}
	}

	m.wg.Add(1)
	go m.processEvents(recursive)

	return nil
}

// Stop terminates the monitor. It is not restartable afterward.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.started || m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	err := m.watcher.Close()
	m.wg.Wait()

	m.changeMu.Lock()
	m.changeCond.Broadcast()
	m.changeMu.Unlock()

	if err != nil {
		return engineerrors.Wrap(engineerrors.KindWatcher, "close fsnotify watcher", err)
	}
	return nil
}

// AddPath adds path (and, if recursive, every subdirectory beneath
// it) to the watch set. A failure to watch one subdirectory is
// logged and does not abort watching the rest.
func (m *Monitor) AddPath(path string, recursive bool) error {
	if !recursive {
		return m.addWatch(path)
	}
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if werr := m.addWatch(p); werr != nil {
			m.log.Warn("failed to watch %s: %v", p, werr)
		}
		return nil
	})
}

func (m *Monitor) addWatch(dir string) error {
	if err := m.watcher.Add(dir); err != nil {
		return engineerrors.Wrap(engineerrors.KindWatcher, fmt.Sprintf("watch %s", dir), err)
	}
	m.watchedMu.Lock()
	m.watched[dir] = struct{}{}
	m.watchedMu.Unlock()
	return nil
}

// RemovePath stops watching path.
func (m *Monitor) RemovePath(path string) error {
	if err := m.watcher.Remove(path); err != nil {
		return engineerrors.Wrap(engineerrors.KindWatcher, fmt.Sprintf("unwatch %s", path), err)
	}
	m.watchedMu.Lock()
	delete(m.watched, path)
	m.watchedMu.Unlock()
	return nil
}

// WaitForChange blocks until at least one FileEvent has been
// dispatched since the call began, or timeout elapses. It reports
// whether a change occurred.
func (m *Monitor) WaitForChange(timeout time.Duration) bool {
	m.changeMu.Lock()
	defer m.changeMu.Unlock()

	start := m.changeSeq
	timedOut := false
	timer := time.AfterFunc(timeout, func() {
		m.changeMu.Lock()
		timedOut = true
		m.changeCond.Broadcast()
		m.changeMu.Unlock()
	})
	defer timer.Stop()

	for m.changeSeq == start && !timedOut {
		m.changeCond.Wait()
	}
	return m.changeSeq != start
}

// Status reports the monitor's current statistics.
func (m *Monitor) Status() Status {
	m.watchedMu.Lock()
	watched := len(m.watched)
	m.watchedMu.Unlock()

	m.statsMu.RLock()
	defer m.statsMu.RUnlock()

	m.mu.Lock()
	running := m.started && !m.stopped
	m.mu.Unlock()

	return Status{
		Running:         running,
		WatchedPaths:    watched,
		EventsProcessed: m.eventsProcessed,
		ErrorCount:      m.errorCount,
		LastEventTime:   m.lastEventTime,
	}
}

func (m *Monitor) processEvents(recursive bool) {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			m.handleRawEvent(ev, recursive)

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.statsMu.Lock()
			m.errorCount++
			m.statsMu.Unlock()
			m.log.Error("watcher error: %v", err)
		}
	}
}

func (m *Monitor) handleRawEvent(ev fsnotify.Event, recursive bool) {
	path := ev.Name

	if recursive && ev.Op&fsnotify.Create != 0 {
		if info, err := statIsDir(path); err == nil && info {
			if err := m.addWatch(path); err != nil {
				m.log.Warn("failed to watch new directory %s: %v", path, err)
			}
		}
	}

	var kind pendingKind
	switch {
	case ev.Op&fsnotify.Rename != 0:
		kind = pendingRenamedAway
	case ev.Op&fsnotify.Create != 0:
		kind = pendingCreated
	case ev.Op&fsnotify.Write != 0:
		kind = pendingModified
	case ev.Op&fsnotify.Remove != 0:
		kind = pendingRemoved
	default:
		return
	}

	m.mu.Lock()
	m.pending[path] = kind
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.flush)
	m.mu.Unlock()
}

func statIsDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func (m *Monitor) flush() {
	m.mu.Lock()
	batch := m.pending
	m.pending = make(map[string]pendingKind)
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var renamedAway, created []string
	for path, kind := range batch {
		switch kind {
		case pendingRenamedAway:
			renamedAway = append(renamedAway, path)
		case pendingCreated:
			created = append(created, path)
		}
	}

	batchEvents := make([]maptypes.FileEvent, 0, len(batch))

	if len(renamedAway) == 1 && len(created) == 1 {
		batchEvents = append(batchEvents, maptypes.FileEvent{
			ID:        uuid.NewString(),
			Path:      created[0],
			OldPath:   renamedAway[0],
			Kind:      maptypes.FileMoved,
			Timestamp: time.Now(),
		})
		delete(batch, renamedAway[0])
		delete(batch, created[0])
	}

	for path, kind := range batch {
		var fk maptypes.FileEventKind
		switch kind {
		case pendingCreated:
			fk = maptypes.FileCreated
		case pendingModified:
			fk = maptypes.FileModified
		case pendingRemoved, pendingRenamedAway:
			fk = maptypes.FileDeleted
		}
		batchEvents = append(batchEvents, maptypes.FileEvent{
			ID:        uuid.NewString(),
			Path:      path,
			Kind:      fk,
			Timestamp: time.Now(),
		})
	}

	for _, ev := range batchEvents {
		m.dispatch(ev)
	}
}

func (m *Monitor) dispatch(ev maptypes.FileEvent) {
	removed := ev.Kind == maptypes.FileDeleted
	path := ev.Path

	if err := m.updater.UpdateOnChange(m.ctx, path, removed); err != nil {
		m.log.Warn("failed to apply update for %s: %v", path, err)
	}
	if ev.Kind == maptypes.FileMoved {
		if err := m.updater.UpdateOnChange(m.ctx, ev.OldPath, true); err != nil {
			m.log.Warn("failed to remove old path %s after move: %v", ev.OldPath, err)
		}
	}

	if m.bus != nil {
		if err := m.bus.Publish(m.ctx, ev); err != nil {
			m.log.Warn("failed to publish event for %s: %v", path, err)
		}
	}

	if m.callback != nil {
		if err := m.callback(ev); err != nil {
			m.log.Warn("callback failed for %s: %v", path, err)
		}
	}

	m.statsMu.Lock()
	m.eventsProcessed++
	m.lastEventTime = ev.Timestamp
	m.statsMu.Unlock()

	m.changeMu.Lock()
	m.changeSeq++
	m.changeCond.Broadcast()
	m.changeMu.Unlock()
}
