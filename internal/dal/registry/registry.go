// Package registry holds the process-wide, ordered list of controllers
// and notifies interested observers (the SDK server's broadcaster) when
// that list changes, mirroring the hub pattern the SDK's web bridge uses
// for its own client list.
package registry

import (
	"sync"

	"github.com/ninevoltz/rgbsdk/internal/dal"
)

// Registry is the single process-wide, index-addressed list of
// controllers a running server exposes. Index stability across the
// lifetime of a connection is a hard requirement: Remove
// never compacts the slice by shifting earlier entries, it only clears
// the removed slot, so every previously handed-out index keeps pointing
// at the controller it named (or nil, once removed).
type Registry struct {
	mu       sync.RWMutex
	entries  []*dal.Controller
	watchers map[chan struct{}]struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{watchers: make(map[chan struct{}]struct{})}
}

// Add appends c and returns its index, notifying watchers.
func (r *Registry) Add(c *dal.Controller) int {
	r.mu.Lock()
	idx := len(r.entries)
	r.entries = append(r.entries, c)
	r.mu.Unlock()

	r.notify()
	return idx
}

// Remove clears the controller at idx without shifting later indices,
// so any index already handed to a client remains valid (it will simply
// read back as removed).
func (r *Registry) Remove(idx int) bool {
	r.mu.Lock()
	if idx < 0 || idx >= len(r.entries) || r.entries[idx] == nil {
		r.mu.Unlock()
		return false
	}
	r.entries[idx] = nil
	r.mu.Unlock()

	r.notify()
	return true
}

// Count returns the number of slots, including removed (nil) ones, so
// callers that depend on index stability see a consistent length —
// REPLY_CONTROLLER_COUNT must match the highest index a client may
// address.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// At returns the controller at idx, or nil if idx is out of range or
// was removed.
func (r *Registry) At(idx int) *dal.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.entries) {
		return nil
	}
	return r.entries[idx]
}

// All returns a snapshot slice of every non-removed controller alongside
// its index.
func (r *Registry) All() []IndexedController {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IndexedController, 0, len(r.entries))
	for i, c := range r.entries {
		if c != nil {
			out = append(out, IndexedController{Index: i, Controller: c})
		}
	}
	return out
}

// IndexedController pairs a controller with the registry index it was
// handed out under.
type IndexedController struct {
	Index      int
	Controller *dal.Controller
}

// Watch returns a channel that receives a (non-blocking, coalesced)
// notification every time the registry's membership changes: an Add, a
// Remove, or both. The caller must call Unwatch when done to release
// the channel.
func (r *Registry) Watch() <-chan struct{} {
	ch := make(chan struct{}, 1)
	r.mu.Lock()
	r.watchers[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unwatch releases a channel previously returned by Watch.
func (r *Registry) Unwatch(ch <-chan struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for w := range r.watchers {
		if w == ch {
			delete(r.watchers, w)
			close(w)
			return
		}
	}
}

func (r *Registry) notify() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for w := range r.watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}
