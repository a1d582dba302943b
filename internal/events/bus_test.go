package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

func TestNewBus(t *testing.T) {
	for _, async := range []bool{false, true} {
		bus := NewBus(async)
		assert.NotNil(t, bus)
		assert.Equal(t, async, bus.IsAsync())
		assert.Equal(t, 0, bus.SubscriberCount())
	}
}

func TestBus_SyncPublishDeliversToAllHandlers(t *testing.T) {
	bus := NewBus(false)
	var got []maptypes.FileEvent
	var mu sync.Mutex

	bus.Subscribe(func(_ context.Context, e maptypes.FileEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
		return nil
	})
	bus.Subscribe(func(_ context.Context, e maptypes.FileEvent) error {
		return nil
	})

	ev := maptypes.FileEvent{ID: "1", Path: "a.py", Kind: maptypes.FileModified}
	require.NoError(t, bus.Publish(context.Background(), ev))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}

func TestBus_SyncPublishReturnsHandlerErrors(t *testing.T) {
	bus := NewBus(false)
	bus.Subscribe(func(_ context.Context, _ maptypes.FileEvent) error {
		return errors.New("boom")
	})

	err := bus.Publish(context.Background(), maptypes.FileEvent{Path: "a.py", Kind: maptypes.FileCreated})
	require.Error(t, err)
	assert.Len(t, bus.Errors(), 1)
}

func TestBus_AsyncPublishDoesNotBlock(t *testing.T) {
	bus := NewBus(true)
	var count int32
	done := make(chan struct{})

	bus.Subscribe(func(_ context.Context, _ maptypes.FileEvent) error {
		atomic.AddInt32(&count, 1)
		close(done)
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), maptypes.FileEvent{Path: "a.py", Kind: maptypes.FileDeleted}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestBus_PublishWithNoSubscribers(t *testing.T) {
	bus := NewBus(false)
	require.NoError(t, bus.Publish(context.Background(), maptypes.FileEvent{Path: "a.py", Kind: maptypes.FileCreated}))
}
