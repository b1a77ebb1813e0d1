package saga

import (
	"context"
	"encoding/json"

	"github.com/puzpuzpuz/xsync/v3"
)

// CheckpointStatus is the persistent status of a step's forward action,
// its compensation, or the reserved pending-step marker.
type CheckpointStatus string

const (
	// StatusCompleted marks a forward action as durably done; a later run
	// replays the stored result instead of executing again.
	StatusCompleted CheckpointStatus = "completed"

	// StatusCompensated marks a rollback action as done, keyed by the
	// step's idempotency key plus the ":compensate" suffix.
	StatusCompensated CheckpointStatus = "compensated"

	// StatusPendingApproval marks a step (and the reserved marker) as
	// paused awaiting external approval.
	StatusPendingApproval CheckpointStatus = "pending_approval"

	// StatusCleared marks the reserved marker after a pause has been
	// resumed. It is deliberately distinct from StatusCompensated so a
	// cleared marker can never be misread as a rolled-back step.
	StatusCleared CheckpointStatus = "cleared"
)

// PendingStepKey is the reserved checkpoint key tracking which single step
// (if any) is currently awaiting approval. Its record stores the step name
// as the JSON result, so Resume can locate the step without scanning.
const PendingStepKey = "saga:pending-step"

const compensationKeySuffix = ":compensate"

// compensationKey derives the rollback checkpoint key for a forward key.
func compensationKey(key string) string {
	return key + compensationKeySuffix
}

// CheckpointRecord is the durable outcome of a step or its compensation.
type CheckpointRecord struct {
	Status CheckpointStatus `json:"status"`
	Result json.RawMessage  `json:"result,omitempty"`
}

// CheckpointStore persists checkpoint records under idempotency keys.
//
// Load returns (nil, nil) when no record exists for the key; absence is
// the normal first-run case for every key. Implementations must tolerate
// concurrent calls for disjoint keys, which the engine issues while a
// concurrent group is in flight. The engine performs no locking of the
// store and relies on idempotency checks, not mutual exclusion.
type CheckpointStore interface {
	Save(ctx context.Context, key string, record CheckpointRecord) error
	Load(ctx context.Context, key string) (*CheckpointRecord, error)
}

// marshalResult validates that a step result round-trips through the
// checkpoint encoding and returns the encoded form.
func marshalResult(value any) (json.RawMessage, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// unmarshalResult decodes a checkpointed result into generic JSON values.
func unmarshalResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// MemoryCheckpointStore is an in-process CheckpointStore for tests and
// scenarios where durability is not required. The concurrent map makes
// disjoint-key access from group members safe without engine-side locks.
type MemoryCheckpointStore struct {
	records *xsync.MapOf[string, CheckpointRecord]
}

// NewMemoryCheckpointStore creates an empty in-memory store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		records: xsync.NewMapOf[string, CheckpointRecord](),
	}
}

// Save stores the record under the key, replacing any previous record.
func (m *MemoryCheckpointStore) Save(_ context.Context, key string, record CheckpointRecord) error {
	m.records.Store(key, record)
	return nil
}

// Load retrieves the record for the key, or (nil, nil) when absent.
func (m *MemoryCheckpointStore) Load(_ context.Context, key string) (*CheckpointRecord, error) {
	record, ok := m.records.Load(key)
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Len returns the number of stored records.
func (m *MemoryCheckpointStore) Len() int {
	return m.records.Size()
}

var _ CheckpointStore = (*MemoryCheckpointStore)(nil)
