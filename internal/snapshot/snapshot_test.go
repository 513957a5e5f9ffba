package snapshot

import (
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/pipeline"
	"github.com/hazyhaar/domsnap/internal/protocol"
)

func testTree() *capture.Tree {
	button := &capture.Node{
		Kind:      capture.KindElement,
		Tag:       "button",
		BackendID: 42,
		AX:        &capture.AX{Role: "button", Name: "Go"},
		Tier:      capture.TierSemantic,
	}
	body := &capture.Node{
		Kind:      capture.KindElement,
		Tag:       "body",
		BackendID: 1,
		Children:  []*capture.Node{button},
	}
	return &capture.Tree{
		Root: body,
		Info: protocol.PageInfo{URL: "https://example.test", Title: "t", ViewportWidth: 1280, ViewportHeight: 720},
	}
}

func TestSerializeCachesByReference(t *testing.T) {
	s := New(testTree(), nil)

	first := s.Serialize(0, pipeline.Config{})
	second := s.Serialize(0, pipeline.Config{})

	if first != second {
		t.Fatal("second Serialize did not return the cached document")
	}
	if got, want := first.Page.Context.URL, "https://example.test"; got != want {
		t.Errorf("context url = %q, want %q", got, want)
	}
}

func TestInvalidateForcesRebuild(t *testing.T) {
	s := New(testTree(), nil)

	first := s.Serialize(0, pipeline.Config{})
	s.Invalidate()
	if s.Valid() {
		t.Fatal("snapshot still valid after Invalidate")
	}
	second := s.Serialize(0, pipeline.Config{})

	if first == second {
		t.Fatal("Serialize returned the invalidated document")
	}
	// Identity assignment restarts from 1 on rebuild.
	if backend, ok := s.IDs().BackendID(1); !ok || backend != 42 {
		t.Errorf("BackendID(1) = %d,%v, want 42,true", backend, ok)
	}
}

func TestStalenessTriggersRebuild(t *testing.T) {
	s := New(testTree(), nil)

	first := s.Serialize(time.Nanosecond, pipeline.Config{})
	time.Sleep(time.Millisecond)
	second := s.Serialize(time.Nanosecond, pipeline.Config{})

	if first == second {
		t.Fatal("stale document served from cache")
	}
}

func TestAgeMeasuredFromAcquisition(t *testing.T) {
	s := New(testTree(), nil)
	first := s.Serialize(DefaultMaxAge, pipeline.Config{})

	// Serving the capture of an hour ago violates the age bound no matter
	// how recently it was serialized.
	s.created = time.Now().Add(-time.Hour)
	second := s.Serialize(DefaultMaxAge, pipeline.Config{})

	if first == second {
		t.Fatal("document older than the age bound served from cache")
	}
}

func TestConcurrentSerializeSingleFlight(t *testing.T) {
	s := New(testTree(), nil)

	const n = 16
	docs := make([]any, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			docs[i] = s.Serialize(0, pipeline.Config{})
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if docs[i] != docs[0] {
			t.Fatalf("caller %d observed a different document", i)
		}
	}
}

func TestNodeLookup(t *testing.T) {
	s := New(testTree(), nil)
	s.Serialize(0, pipeline.Config{})

	n := s.NodeByBackendID(42)
	if n == nil || n.Tag != "button" {
		t.Fatalf("NodeByBackendID(42) = %+v, want button", n)
	}
	if got := s.NodeByBackendID(999); got != nil {
		t.Errorf("NodeByBackendID(999) = %+v, want nil", got)
	}

	// Sequential resolution goes through the identity table.
	if n := s.NodeBySequentialID(1); n == nil || n.BackendID != 42 {
		t.Fatalf("NodeBySequentialID(1) = %+v, want backend 42", n)
	}
	if got := s.NodeBySequentialID(7); got != nil {
		t.Errorf("NodeBySequentialID(7) = %+v, want nil", got)
	}
}
