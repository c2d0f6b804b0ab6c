package sync

import "testing"

func TestStateSubscribeDeliversCurrent(t *testing.T) {
	h := NewStateHolder()

	var got []State
	unsub := h.Subscribe(func(st State) { got = append(got, st) })
	defer unsub()

	if len(got) != 1 || got[0].Status != StatusIdle {
		t.Fatalf("expected immediate idle delivery, got %+v", got)
	}

	h.Set(State{Status: StatusSyncing})
	if len(got) != 2 || got[1].Status != StatusSyncing {
		t.Errorf("transition not delivered: %+v", got)
	}
}

func TestStateNotifyOrder(t *testing.T) {
	h := NewStateHolder()

	var order []string
	h.Subscribe(func(State) { order = append(order, "first") })
	h.Subscribe(func(State) { order = append(order, "second") })
	order = nil

	h.Set(State{Status: StatusSynced})
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("listeners not notified in registration order: %v", order)
	}
}

func TestStateUnsubscribe(t *testing.T) {
	h := NewStateHolder()

	calls := 0
	unsub := h.Subscribe(func(State) { calls++ })
	unsub()
	unsub() // second call is harmless

	h.Set(State{Status: StatusError, Err: "boom"})
	if calls != 1 {
		t.Errorf("unsubscribed listener called %d times, want only the initial delivery", calls)
	}
}

func TestStateWholeValueReplacement(t *testing.T) {
	h := NewStateHolder()

	h.Set(State{Status: StatusError, LastSyncTime: 1000, Err: "remote down"})
	h.Set(State{Status: StatusSynced, LastSyncTime: 2000})

	cur := h.Current()
	if cur.Err != "" {
		t.Errorf("stale error survived a state replacement: %+v", cur)
	}
	if cur.Status != StatusSynced || cur.LastSyncTime != 2000 {
		t.Errorf("unexpected state: %+v", cur)
	}
}
