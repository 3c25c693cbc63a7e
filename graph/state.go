package graph

import (
	"context"
	"reflect"
	"sync"
)

// Store defines the interface for shared-state persistence during a run.
// It manages the merged pipeline state and per-node execution bookkeeping.
//
// The default implementation is MemoryStore, which keeps everything in
// memory behind a sync.RWMutex. State is lost when the process exits.
//
// Custom implementations can persist state externally; they must be safe
// for concurrent use, because branch nodes at the same topological level
// apply their partial updates in parallel.
type Store interface {
	// Snapshot returns a copy of the current shared state. Callers may
	// mutate the returned map freely.
	Snapshot(ctx context.Context) (State, error)

	// Apply merges a partial update into the shared state: last-writer-wins
	// per key, except append keys whose slice values are appended.
	Apply(ctx context.Context, update State) error

	// NodeStatus retrieves the execution status of a node by its ID.
	// Returns NodePending if the node has not been registered yet.
	NodeStatus(ctx context.Context, nodeID string) (NodeStatus, error)

	// SetNodeStatus updates the execution status of a node.
	SetNodeStatus(ctx context.Context, nodeID string, status NodeStatus) error
}

// MemoryStore is the default Store implementation. It keeps the shared
// state and node statuses in memory behind a sync.RWMutex.
type MemoryStore struct {
	mu         sync.RWMutex
	data       State
	appendKeys map[string]bool
	nodeStatus map[string]NodeStatus
}

// Compile-time check that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store with optional initial state.
// Values under the given append keys are appended on Apply instead of
// being overwritten.
func NewMemoryStore(initial State, appendKeys ...string) *MemoryStore {
	appendSet := make(map[string]bool, len(appendKeys))
	for _, key := range appendKeys {
		appendSet[key] = true
	}

	return &MemoryStore{
		data:       initial.Clone(),
		appendKeys: appendSet,
		nodeStatus: make(map[string]NodeStatus),
	}
}

// Snapshot returns a shallow copy of the shared state.
func (store *MemoryStore) Snapshot(_ context.Context) (State, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	copied := make(State, len(store.data))
	for key, value := range store.data {
		copied[key] = value
	}
	return copied, nil
}

// Apply merges a partial update into the shared state.
func (store *MemoryStore) Apply(_ context.Context, update State) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if store.data == nil {
		store.data = make(State, len(update))
	}
	for key, value := range update {
		if store.appendKeys[key] {
			store.data[key] = appendValues(store.data[key], value)
			continue
		}
		store.data[key] = value
	}
	return nil
}

// NodeStatus retrieves the execution status of a node.
// Returns NodePending if the node has not been registered.
func (store *MemoryStore) NodeStatus(_ context.Context, nodeID string) (NodeStatus, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	status, exists := store.nodeStatus[nodeID]
	if !exists {
		return NodePending, nil
	}
	return status, nil
}

// SetNodeStatus updates the execution status of a node.
func (store *MemoryStore) SetNodeStatus(_ context.Context, nodeID string, status NodeStatus) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.nodeStatus[nodeID] = status
	return nil
}

// initializeNodes resets all node IDs to NodePending and replaces the shared
// state, giving each run a clean slate on the same store instance.
func (store *MemoryStore) initializeNodes(nodeIDs []string, initial State) {
	store.mu.Lock()
	defer store.mu.Unlock()

	store.data = initial.Clone()
	if store.data == nil {
		store.data = make(State)
	}
	for _, nodeID := range nodeIDs {
		store.nodeStatus[nodeID] = NodePending
	}
}

// appendValues combines an existing state value with an incoming one under
// append semantics. Same-typed slices are concatenated in place of the old
// value; mismatched shapes degrade to a []any concatenation so an append key
// never silently drops data.
func appendValues(existing, incoming any) any {
	if existing == nil {
		return incoming
	}
	if incoming == nil {
		return existing
	}

	existingValue := reflect.ValueOf(existing)
	incomingValue := reflect.ValueOf(incoming)

	if existingValue.Kind() == reflect.Slice && incomingValue.Kind() == reflect.Slice &&
		existingValue.Type() == incomingValue.Type() {
		combined := reflect.MakeSlice(existingValue.Type(), 0, existingValue.Len()+incomingValue.Len())
		combined = reflect.AppendSlice(combined, existingValue)
		combined = reflect.AppendSlice(combined, incomingValue)
		return combined.Interface()
	}

	combined := make([]any, 0)
	combined = appendAsAny(combined, existingValue, existing)
	combined = appendAsAny(combined, incomingValue, incoming)
	return combined
}

// appendAsAny flattens a slice value into dst, or appends the scalar as-is.
func appendAsAny(dst []any, value reflect.Value, raw any) []any {
	if value.Kind() == reflect.Slice {
		for index := 0; index < value.Len(); index++ {
			dst = append(dst, value.Index(index).Interface())
		}
		return dst
	}
	return append(dst, raw)
}
