package saga

import (
	"github.com/google/uuid"
)

// SagaID uniquely identifies one execution of a saga.
type SagaID struct {
	UUID uuid.UUID
}

// NewSagaID generates a fresh SagaID.
func NewSagaID() SagaID {
	return SagaID{UUID: uuid.New()}
}

// String returns the string representation of the SagaID.
func (s SagaID) String() string {
	return s.UUID.String()
}

// SagaName is a human-readable name for a saga definition.
type SagaName string

// String returns the string representation of the SagaName.
func (s SagaName) String() string {
	return string(s)
}

// StepName uniquely names a step within a definition, including steps
// declared inside concurrent groups.
type StepName string

// String returns the string representation of the StepName.
func (s StepName) String() string {
	return string(s)
}
