package flow

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestContextStoreMergeAndSnapshot(t *testing.T) {
	cs := NewContextStore(0, 0)

	cs.Merge("tok-1", map[string]interface{}{"selected_service": "barba"})
	cs.Merge("tok-1", map[string]interface{}{"selected_date": "2025-09-05"})

	view := cs.Snapshot("tok-1")
	if view["selected_service"] != "barba" || view["selected_date"] != "2025-09-05" {
		t.Errorf("merged fields missing from snapshot: %v", view)
	}

	// Mutating the snapshot must not leak back into the store.
	view["selected_service"] = "mutated"
	if cs.Snapshot("tok-1")["selected_service"] != "barba" {
		t.Error("snapshot mutation leaked into the store")
	}
}

func TestContextStoreTokenIsolation(t *testing.T) {
	cs := NewContextStore(0, 0)

	cs.Merge("tok-a", map[string]interface{}{"selected_service": "barba"})
	cs.Merge("tok-b", map[string]interface{}{"selected_service": "corte_masculino"})

	if cs.Snapshot("tok-a")["selected_service"] != "barba" {
		t.Error("token a sees the wrong service")
	}
	if cs.Snapshot("tok-b")["selected_service"] != "corte_masculino" {
		t.Error("token b sees the wrong service")
	}
}

func TestContextStoreSkipsPlaceholdersAndNils(t *testing.T) {
	cs := NewContextStore(0, 0)

	cs.Merge("tok", map[string]interface{}{
		"selected_barber": "${data.selected_barber}",
		"selected_time":   nil,
		"selected_date":   "2025-09-05",
	})

	view := cs.Snapshot("tok")
	if _, ok := view["selected_barber"]; ok {
		t.Error("unresolved placeholder must never enter the context")
	}
	if _, ok := view["selected_time"]; ok {
		t.Error("nil value must never enter the context")
	}
	if view["selected_date"] != "2025-09-05" {
		t.Error("real value was dropped")
	}
}

func TestContextStoreAnonymousToken(t *testing.T) {
	cs := NewContextStore(0, 0)

	cs.Merge("", map[string]interface{}{"selected_service": "barba"})
	if cs.Snapshot("")["selected_service"] != "barba" {
		t.Error("empty token must map to the anonymous bucket")
	}
	if cs.Snapshot(AnonymousToken)["selected_service"] != "barba" {
		t.Error("anonymous bucket not shared with the named constant")
	}
}

func TestContextStoreReset(t *testing.T) {
	cs := NewContextStore(0, 0)

	cs.Merge("tok", map[string]interface{}{"selected_service": "barba"})
	cs.Reset("tok")
	if len(cs.Snapshot("tok")) != 0 {
		t.Error("context survived Reset")
	}
}

func TestContextStoreExpiry(t *testing.T) {
	cs := NewContextStore(20*time.Millisecond, time.Minute)

	cs.Merge("tok", map[string]interface{}{"selected_service": "barba"})
	time.Sleep(40 * time.Millisecond)

	if len(cs.Snapshot("tok")) != 0 {
		t.Error("expired context still visible")
	}
}

func TestContextStoreConcurrentMerges(t *testing.T) {
	cs := NewContextStore(0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cs.Merge("tok", map[string]interface{}{fmt.Sprintf("field_%d", n): n})
		}(i)
	}
	wg.Wait()

	view := cs.Snapshot("tok")
	if len(view) != 50 {
		t.Errorf("expected 50 merged fields, got %d", len(view))
	}
}
