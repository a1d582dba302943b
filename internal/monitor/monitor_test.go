package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/repomap-engine/internal/events"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

type fakeUpdater struct {
	mu       sync.Mutex
	upserted []string
	removed  []string
}

func (f *fakeUpdater) UpdateOnChange(ctx context.Context, path string, removed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if removed {
		f.removed = append(f.removed, path)
	} else {
		f.upserted = append(f.upserted, path)
	}
	return nil
}

func (f *fakeUpdater) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.upserted...), append([]string{}, f.removed...)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestMonitor_DetectsFileCreation(t *testing.T) {
	dir := t.TempDir()
	updater := &fakeUpdater{}
	bus := events.NewBus(false)

	m, err := New(updater, bus, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), []string{dir}, false))
	defer m.Stop()

	newFile := filepath.Join(dir, "new.py")
	require.NoError(t, os.WriteFile(newFile, []byte("x = 1\n"), 0o644))

	waitUntil(t, 2*time.Second, func() bool {
		upserted, _ := updater.snapshot()
		for _, p := range upserted {
			if p == newFile {
				return true
			}
		}
		return false
	})
}

func TestMonitor_DetectsFileDeletion(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.py")
	require.NoError(t, os.WriteFile(target, []byte("x = 1\n"), 0o644))

	updater := &fakeUpdater{}
	bus := events.NewBus(false)

	m, err := New(updater, bus, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), []string{dir}, false))
	defer m.Stop()

	require.NoError(t, os.Remove(target))

	waitUntil(t, 2*time.Second, func() bool {
		_, removed := updater.snapshot()
		for _, p := range removed {
			if p == target {
				return true
			}
		}
		return false
	})
}

func TestMonitor_WaitForChangeReturnsFalseOnTimeout(t *testing.T) {
	dir := t.TempDir()
	updater := &fakeUpdater{}
	m, err := New(updater, nil, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), []string{dir}, false))
	defer m.Stop()

	assert.False(t, m.WaitForChange(100*time.Millisecond))
}

func TestMonitor_PublishesFileEventsOnBus(t *testing.T) {
	dir := t.TempDir()
	updater := &fakeUpdater{}
	bus := events.NewBus(false)

	var mu sync.Mutex
	var seen []maptypes.FileEvent
	bus.Subscribe(func(ctx context.Context, ev maptypes.FileEvent) error {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
		return nil
	})

	m, err := New(updater, bus, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), []string{dir}, false))
	defer m.Stop()

	newFile := filepath.Join(dir, "hello.py")
	require.NoError(t, os.WriteFile(newFile, []byte("x = 1\n"), 0o644))

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	})
}

func TestMonitor_CannotBeRestarted(t *testing.T) {
	dir := t.TempDir()
	updater := &fakeUpdater{}
	m, err := New(updater, nil, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), []string{dir}, false))

	err = m.Start(context.Background(), []string{dir}, false)
	assert.Error(t, err)

	require.NoError(t, m.Stop())
}

func TestMonitor_StatusReportsRunningState(t *testing.T) {
	dir := t.TempDir()
	updater := &fakeUpdater{}
	m, err := New(updater, nil, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background(), []string{dir}, false))

	status := m.Status()
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.WatchedPaths)

	require.NoError(t, m.Stop())
	assert.False(t, m.Status().Running)
}
