package sim

import (
	"github.com/nidhogg/smalltown/internal/world"
)

// EventType labels a simulation state transition.
type EventType string

const (
	EventAgentMove           EventType = "agent_move"
	EventConversationStart   EventType = "conversation_start"
	EventConversationMessage EventType = "conversation_message"
	EventConversationEnd     EventType = "conversation_end"
	EventReflection          EventType = "reflection"
	EventPlanUpdate          EventType = "plan_update"
	EventObservation         EventType = "observation"
)

// Event is emitted once per state transition. Timestamp is the simulation
// time in minutes at emission.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int         `json:"timestamp"`
}

// Listener receives simulation events. Listeners run synchronously on the
// tick goroutine and must not call back into simulation mutators.
type Listener func(Event)

// AgentMoveData accompanies agent_move events.
type AgentMoveData struct {
	AgentID        string         `json:"agent_id"`
	Position       world.Position `json:"position"`
	TargetLocation string         `json:"target_location,omitempty"`
}

// ConversationStartData accompanies conversation_start events.
type ConversationStartData struct {
	ConversationID string    `json:"conversation_id"`
	Participants   [2]string `json:"participants"`
	OpeningLine    string    `json:"opening_line"`
}

// ConversationMessageData accompanies conversation_message events.
type ConversationMessageData struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	AgentName      string `json:"agent_name"`
	Content        string `json:"content"`
}

// ConversationEndData accompanies conversation_end events.
type ConversationEndData struct {
	ConversationID string    `json:"conversation_id"`
	Participants   [2]string `json:"participants"`
	Location       string    `json:"location"`
	MessageCount   int       `json:"message_count"`
}

// ReflectionData accompanies reflection events.
type ReflectionData struct {
	AgentID string `json:"agent_id"`
	Insight string `json:"insight"`
}

// PlanUpdateData accompanies plan_update events.
type PlanUpdateData struct {
	AgentID    string `json:"agent_id"`
	Day        int    `json:"day"`
	Overview   string `json:"overview"`
	Activities int    `json:"activities"`
}

// ObservationData accompanies observation events.
type ObservationData struct {
	AgentID     string `json:"agent_id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
}
