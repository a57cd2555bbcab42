package agent

import (
	"context"

	"github.com/nidhogg/smalltown/internal/memory"
	"github.com/nidhogg/smalltown/internal/world"
)

// Status represents what an agent is currently doing.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusWalking    Status = "walking"
	StatusTalking    Status = "talking"
	StatusReflecting Status = "reflecting"
	StatusPlanning   Status = "planning"
)

// Agent is a resident of the town. All fields are mutated only by the
// simulation loop — exactly one writer per tick.
type Agent struct {
	ID          string
	Name        string
	Personality string
	Wallet      string // display-only address, no behavioral effect

	Location       string // name of current location
	PrevLocationID string // last rectangle occupied, for exit detection
	Position       world.Position

	Memories       *memory.Stream
	Plan           *DailyPlan
	Status         Status
	Conversation   *Conversation
	LastReflection int // sim minutes of the last completed reflection cycle
}

// New creates an idle agent with an empty memory stream.
func New(id, name, personality string, pos world.Position, locationName string) *Agent {
	return &Agent{
		ID:          id,
		Name:        name,
		Personality: personality,
		Location:    locationName,
		Position:    pos,
		Memories:    memory.NewStream(),
		Status:      StatusIdle,
	}
}

// InConversation reports whether the agent has a live conversation.
func (a *Agent) InConversation() bool {
	return a.Conversation != nil && !a.Conversation.Ended()
}

// Completer is the text-generation dependency as consumed by the
// cognitive modules. The provider Gate satisfies it.
type Completer interface {
	Complete(ctx context.Context, agentID, systemPrompt, userPrompt string, maxTokens int) (string, error)
}
