package memory

import (
	"github.com/google/uuid"
)

// Kind categorizes how a memory was formed.
type Kind string

const (
	KindObservation  Kind = "observation"
	KindConversation Kind = "conversation"
	KindReflection   Kind = "reflection"
	KindPlan         Kind = "plan"
)

// Memory is a single entry in an agent's memory stream. Immutable once
// created; importance is assigned at creation and never revised.
type Memory struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	Description string    `json:"description"`
	Timestamp   int       `json:"timestamp"`  // simulation minutes
	Importance  int       `json:"importance"` // 1-10
	Embedding   []float64 `json:"-"`
	Kind        Kind      `json:"kind"`
}

// New creates a memory with a fresh ID and a deterministic embedding of
// its description. Importance is clamped to [1,10].
func New(agentID, description string, kind Kind, timestamp int, importance int) *Memory {
	return &Memory{
		ID:          uuid.New().String(),
		AgentID:     agentID,
		Description: description,
		Timestamp:   timestamp,
		Importance:  ClampImportance(importance),
		Embedding:   Embed(description),
		Kind:        kind,
	}
}

// ClampImportance forces a score into the valid 1-10 range.
func ClampImportance(n int) int {
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}
