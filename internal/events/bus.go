// Package events provides a small pub-sub bus the file monitor uses to
// fan out FileEvent notifications to interested subscribers (the
// engine's resolver-index rebuild, CLI watch output).
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/standardbeagle/repomap-engine/internal/logging"
	"github.com/standardbeagle/repomap-engine/internal/maptypes"
)

// Handler reacts to one FileEvent. An error is logged but never stops
// delivery to the remaining handlers.
type Handler func(ctx context.Context, event maptypes.FileEvent) error

// Bus distributes FileEvent values to subscribed handlers.
type Bus struct {
	mu         sync.RWMutex
	handlers   []Handler
	async      bool
	errorMu    sync.Mutex
	errorLog   []error
	log        *logging.Logger
}

// NewBus creates an event bus. When async is true, Publish dispatches
// to each handler on its own goroutine and returns without waiting.
func NewBus(async bool) *Bus {
	return &Bus{
		async: async,
		log:   logging.NewLoggerWithName("events"),
	}
}

// Subscribe registers a handler invoked for every published event.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Publish delivers event to every subscribed handler.
func (b *Bus) Publish(ctx context.Context, event maptypes.FileEvent) error {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	if b.async {
		for _, h := range handlers {
			handler := h
			go func() {
				if err := handler(ctx, event); err != nil {
					b.logError(fmt.Errorf("handler error for %s %s: %w", event.Kind, event.Path, err))
					b.log.Error("event handler failed for %s %s: %v", event.Kind, event.Path, err)
				}
			}()
		}
		return nil
	}

	var failed []string
	for i, h := range handlers {
		if err := h(ctx, event); err != nil {
			failed = append(failed, fmt.Sprintf("handler %d: %v", i, err))
			b.logError(err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("event handling errors: %v", failed)
	}
	return nil
}

// SubscriberCount reports how many handlers are currently registered.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

func (b *Bus) logError(err error) {
	b.errorMu.Lock()
	defer b.errorMu.Unlock()
	b.errorLog = append(b.errorLog, err)
	if len(b.errorLog) > 100 {
		b.errorLog = b.errorLog[len(b.errorLog)-100:]
	}
}

// Errors returns the most recent handler errors, oldest first.
func (b *Bus) Errors() []error {
	b.errorMu.Lock()
	defer b.errorMu.Unlock()
	return append([]error{}, b.errorLog...)
}

// IsAsync reports whether the bus dispatches without waiting for handlers.
func (b *Bus) IsAsync() bool {
	return b.async
}
