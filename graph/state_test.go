package graph

import (
	"context"
	"testing"
)

func TestMemoryStoreApplyLastWriterWins(t *testing.T) {
	store := NewMemoryStore(State{"key": "initial"})
	ctx := context.Background()

	if err := store.Apply(ctx, State{"key": "updated"}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	if snapshot["key"] != "updated" {
		t.Errorf("expected updated value, got %v", snapshot["key"])
	}
}

func TestMemoryStoreAppendKeySameTypedSlices(t *testing.T) {
	store := NewMemoryStore(nil, "results")
	ctx := context.Background()

	if err := store.Apply(ctx, State{"results": []int{1, 2}}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if err := store.Apply(ctx, State{"results": []int{3}}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	snapshot, _ := store.Snapshot(ctx)
	results, ok := snapshot["results"].([]int)
	if !ok {
		t.Fatalf("expected []int, got %T", snapshot["results"])
	}
	if len(results) != 3 || results[0] != 1 || results[2] != 3 {
		t.Errorf("unexpected accumulated value: %v", results)
	}
}

func TestMemoryStoreAppendKeyMixedTypesDegradeToAny(t *testing.T) {
	store := NewMemoryStore(nil, "results")
	ctx := context.Background()

	if err := store.Apply(ctx, State{"results": []int{1}}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}
	if err := store.Apply(ctx, State{"results": []string{"two"}}); err != nil {
		t.Fatalf("unexpected apply error: %v", err)
	}

	snapshot, _ := store.Snapshot(ctx)
	results, ok := snapshot["results"].([]any)
	if !ok {
		t.Fatalf("expected []any fallback, got %T", snapshot["results"])
	}
	if len(results) != 2 {
		t.Errorf("append key dropped data: %v", results)
	}
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	store := NewMemoryStore(State{"key": "value"})
	ctx := context.Background()

	snapshot, _ := store.Snapshot(ctx)
	snapshot["key"] = "mutated"
	snapshot["extra"] = true

	fresh, _ := store.Snapshot(ctx)
	if fresh["key"] != "value" {
		t.Errorf("snapshot mutation leaked: %v", fresh)
	}
	if _, leaked := fresh["extra"]; leaked {
		t.Errorf("snapshot addition leaked: %v", fresh)
	}
}

func TestMemoryStoreNodeStatusDefaultsToPending(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	status, err := store.NodeStatus(ctx, "unknown")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != NodePending {
		t.Errorf("expected pending for unknown node, got %v", status)
	}

	if err := store.SetNodeStatus(ctx, "a", NodeCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	status, _ = store.NodeStatus(ctx, "a")
	if status != NodeCompleted {
		t.Errorf("expected completed, got %v", status)
	}
}

func TestMemoryStoreReinitializeResetsRunState(t *testing.T) {
	store := NewMemoryStore(nil, "results")
	ctx := context.Background()

	_ = store.Apply(ctx, State{"results": []int{1}, "leftover": true}) //nolint:errcheck
	_ = store.SetNodeStatus(ctx, "a", NodeCompleted)                   //nolint:errcheck

	store.initializeNodes([]string{"a"}, State{"seed": 1})

	snapshot, _ := store.Snapshot(ctx)
	if _, stale := snapshot["leftover"]; stale {
		t.Errorf("stale state survived reinitialization: %v", snapshot)
	}
	if snapshot["seed"] != 1 {
		t.Errorf("initial state not loaded: %v", snapshot)
	}

	status, _ := store.NodeStatus(ctx, "a")
	if status != NodePending {
		t.Errorf("node status not reset, got %v", status)
	}
}
