package remap

import (
	"testing"

	"github.com/hazyhaar/domsnap/internal/protocol"
)

func TestRegister_FirstSeenOrder(t *testing.T) {
	tab := New()

	ids := []protocol.BackendID{900, 17, 40001, 3}
	for i, id := range ids {
		seq := tab.Register(id)
		if seq != i+1 {
			t.Errorf("Register(%d): got %d, want %d", id, seq, i+1)
		}
	}
}

func TestRegister_Idempotent(t *testing.T) {
	tab := New()

	first := tab.Register(512)
	tab.Register(9000)
	again := tab.Register(512)

	if first != again {
		t.Errorf("re-register: got %d, want %d", again, first)
	}
	if tab.Len() != 2 {
		t.Errorf("Len: got %d, want 2", tab.Len())
	}
}

func TestRoundTrip(t *testing.T) {
	tab := New()
	ids := []protocol.BackendID{101, 202, 303, 404}
	for _, id := range ids {
		tab.Register(id)
	}

	for _, id := range ids {
		seq, ok := tab.SequentialID(id)
		if !ok {
			t.Fatalf("SequentialID(%d): not found", id)
		}
		back, ok := tab.BackendID(seq)
		if !ok {
			t.Fatalf("BackendID(%d): not found", seq)
		}
		if back != id {
			t.Errorf("round trip: got %d, want %d", back, id)
		}
	}
}

func TestLookup_NotFound(t *testing.T) {
	tab := New()
	tab.Register(7)

	if _, ok := tab.SequentialID(999); ok {
		t.Error("SequentialID(999): got ok, want not found")
	}
	if _, ok := tab.BackendID(42); ok {
		t.Error("BackendID(42): got ok, want not found")
	}
}

func TestReset(t *testing.T) {
	tab := New()
	tab.Register(1000)
	tab.Register(2000)

	tab.Reset()

	if tab.Len() != 0 {
		t.Errorf("Len after reset: got %d, want 0", tab.Len())
	}
	if _, ok := tab.BackendID(1); ok {
		t.Error("BackendID(1) after reset: got ok, want not found")
	}
	if seq := tab.Register(3000); seq != 1 {
		t.Errorf("Register after reset: got %d, want 1 (counter restarts)", seq)
	}
}
