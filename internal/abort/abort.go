// Package abort provides a single-slot cancellation handle: starting a new
// operation cancels exactly the one before it. It replaces ad-hoc "last
// cancel func" globals with a value owned by the call site.
package abort

import (
	"context"
	"sync"
)

// Handle supersedes in-flight lookups. Safe for concurrent use.
type Handle struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// Next derives a context from parent for a new lookup, cancelling the
// previous lookup started through this handle, if any. The returned cancel
// releases only the new context.
func (h *Handle) Next(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	h.mu.Lock()
	prev := h.cancel
	h.cancel = cancel
	h.mu.Unlock()

	if prev != nil {
		prev()
	}
	return ctx, cancel
}

// Keyed maintains one Handle per key so superseding applies only to
// lookups sharing that key. Lookups under different keys never cancel
// each other. Idle keys are dropped once their last lookup releases.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*keyedSlot
}

type keyedSlot struct {
	handle   Handle
	inflight int
}

// Next derives a context for a new lookup under key, cancelling the
// previous lookup under the same key, if any.
func (k *Keyed) Next(key string, parent context.Context) (context.Context, context.CancelFunc) {
	k.mu.Lock()
	if k.slots == nil {
		k.slots = make(map[string]*keyedSlot)
	}
	slot, ok := k.slots[key]
	if !ok {
		slot = &keyedSlot{}
		k.slots[key] = slot
	}
	slot.inflight++
	k.mu.Unlock()

	ctx, cancel := slot.handle.Next(parent)

	var once sync.Once
	release := func() {
		cancel()
		once.Do(func() {
			k.mu.Lock()
			slot.inflight--
			if slot.inflight == 0 {
				delete(k.slots, key)
			}
			k.mu.Unlock()
		})
	}
	return ctx, release
}

// Abort cancels the current in-flight lookup, if any.
func (h *Handle) Abort() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
