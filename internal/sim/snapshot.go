package sim

import (
	"github.com/nidhogg/smalltown/internal/agent"
	"github.com/nidhogg/smalltown/internal/world"
)

// MemoryGlimpse is the trimmed memory view exposed in snapshots.
type MemoryGlimpse struct {
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Importance  int    `json:"importance"`
	Timestamp   int    `json:"timestamp"`
}

// AgentSnapshot is the read-only projection of one agent.
type AgentSnapshot struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Position       world.Position  `json:"position"`
	Status         string          `json:"status"`
	Location       string          `json:"location"`
	CurrentAction  string          `json:"current_action,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Wallet         string          `json:"wallet,omitempty"`
	MemoryCount    int             `json:"memory_count"`
	RecentMemories []MemoryGlimpse `json:"recent_memories"`
}

// ConversationSnapshot is the read-only projection of a live conversation.
type ConversationSnapshot struct {
	ID           string          `json:"id"`
	Participants [2]string       `json:"participants"`
	Messages     []agent.Message `json:"messages"`
	Location     string          `json:"location"`
}

// Snapshot is the full read-only world projection. It round-trips through
// JSON and is safe to hand to any goroutine.
type Snapshot struct {
	SimTime             int                    `json:"sim_time"`
	SimDay              int                    `json:"sim_day"`
	Agents              []AgentSnapshot        `json:"agents"`
	ActiveConversations []ConversationSnapshot `json:"active_conversations"`
	Locations           []world.Location       `json:"locations"`
}

// AgentDetail is the deeper per-agent projection served by the API.
type AgentDetail struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Personality string           `json:"personality"`
	Wallet      string           `json:"wallet,omitempty"`
	Position    world.Position   `json:"position"`
	Status      string           `json:"status"`
	Location    string           `json:"location"`
	Plan        *agent.DailyPlan `json:"plan,omitempty"`
	Memories    []MemoryGlimpse  `json:"memories"`
}

const (
	snapshotMemoryCount = 5
	detailMemoryCount   = 30
)

// published is the atomically swapped projection bundle rebuilt after
// every tick.
type published struct {
	snapshot *Snapshot
	details  map[string]*AgentDetail
}

func (s *Simulation) buildPublished() *published {
	snap := &Snapshot{
		SimTime:   s.simTime,
		SimDay:    s.simDay,
		Locations: s.locations,
	}
	details := make(map[string]*AgentDetail, len(s.order))

	for _, id := range s.order {
		a := s.agents[id]
		if a == nil {
			continue
		}

		as := AgentSnapshot{
			ID:             a.ID,
			Name:           a.Name,
			Position:       a.Position,
			Status:         string(a.Status),
			Location:       a.Location,
			Wallet:         a.Wallet,
			MemoryCount:    a.Memories.Len(),
			RecentMemories: glimpses(a, snapshotMemoryCount),
		}
		if a.Plan != nil && a.Plan.Current != nil {
			as.CurrentAction = a.Plan.Current.Description
		}
		if a.InConversation() {
			as.ConversationID = a.Conversation.ID
		}
		snap.Agents = append(snap.Agents, as)

		details[id] = &AgentDetail{
			ID:          a.ID,
			Name:        a.Name,
			Personality: a.Personality,
			Wallet:      a.Wallet,
			Position:    a.Position,
			Status:      string(a.Status),
			Location:    a.Location,
			Plan:        a.Plan.Clone(),
			Memories:    glimpses(a, detailMemoryCount),
		}
	}

	for _, c := range s.conversations {
		if c.Ended() {
			continue
		}
		snap.ActiveConversations = append(snap.ActiveConversations, ConversationSnapshot{
			ID:           c.ID,
			Participants: c.Participants,
			Messages:     append([]agent.Message(nil), c.Messages...),
			Location:     c.Location,
		})
	}

	return &published{snapshot: snap, details: details}
}

func glimpses(a *agent.Agent, n int) []MemoryGlimpse {
	recent := a.Memories.Recent(n)
	out := make([]MemoryGlimpse, len(recent))
	for i, m := range recent {
		out[i] = MemoryGlimpse{
			Description: m.Description,
			Kind:        string(m.Kind),
			Importance:  m.Importance,
			Timestamp:   m.Timestamp,
		}
	}
	return out
}
