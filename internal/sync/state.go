package sync

import gosync "sync"

// Status is the sync subsystem's current phase.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// State is the whole observable state of the sync subsystem. Every
// transition replaces the entire value.
type State struct {
	Status       Status `json:"status"`
	LastSyncTime int64  `json:"lastSyncTime"` // epoch ms, 0 = never synced
	Err          string `json:"error,omitempty"`
}

type stateListener struct {
	id int
	fn func(State)
}

// StateHolder tracks the current sync state and broadcasts every
// transition to subscribers in registration order. It is owned by the
// composition root and injected where needed, so isolated instances can
// coexist under test.
//
// State mutation happens on the single logical sync-coordination flow;
// the mutex only guards the listener registry against concurrent
// subscribe/unsubscribe.
type StateHolder struct {
	mu        gosync.Mutex
	cur       State
	listeners []stateListener
	nextID    int
}

// NewStateHolder returns a holder in the idle state.
func NewStateHolder() *StateHolder {
	return &StateHolder{cur: State{Status: StatusIdle}}
}

// Current returns the current state.
func (h *StateHolder) Current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}

// Subscribe registers a listener and immediately delivers the current
// state to it, so no initial state is missed. The returned function
// unsubscribes.
func (h *StateHolder) Subscribe(fn func(State)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners = append(h.listeners, stateListener{id: id, fn: fn})
	cur := h.cur
	h.mu.Unlock()

	fn(cur)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, l := range h.listeners {
			if l.id == id {
				h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
				return
			}
		}
	}
}

// Set replaces the state and synchronously notifies all subscribers in
// registration order.
func (h *StateHolder) Set(st State) {
	h.mu.Lock()
	h.cur = st
	listeners := make([]stateListener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()

	for _, l := range listeners {
		l.fn(st)
	}
}
