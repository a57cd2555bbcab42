package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/memory"
)

const (
	// Conversations always end at maxMessages, never before minMessages,
	// and in between each termination check ends them with endProbability.
	maxMessages    = 8
	minMessages    = 4
	endProbability = 0.3

	// CooldownWindow is how long (sim minutes) a pair of agents must wait
	// before talking again.
	CooldownWindow = 30

	replyMemoryCount = 8
	topicHintWindow  = 3
)

// Message is a single utterance in a conversation.
type Message struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Content   string `json:"content"`
	Timestamp int    `json:"timestamp"`
}

// Conversation is a two-party dialogue. The participant set is fixed at
// creation; messages are strictly append-ordered.
type Conversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"`
	Messages     []Message `json:"messages"`
	StartTime    int       `json:"start_time"`
	EndTime      int       `json:"end_time,omitempty"`
	Location     string    `json:"location"`
	ended        bool

	// LastTurnTick is bookkeeping for the scheduler: at most one message
	// is appended per conversation per tick.
	LastTurnTick int `json:"-"`
}

// Ended reports whether the conversation has been closed.
func (c *Conversation) Ended() bool { return c.ended }

// Other returns the counterpart of the given participant.
func (c *Conversation) Other(agentID string) string {
	if c.Participants[0] == agentID {
		return c.Participants[1]
	}
	return c.Participants[0]
}

// Transcript renders the visible history as "Name: text" lines.
func (c *Conversation) Transcript() string {
	lines := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		lines[i] = fmt.Sprintf("%s: %s", m.AgentName, m.Content)
	}
	return strings.Join(lines, "\n")
}

// PairKey builds an order-insensitive key for a pair of agent ids.
func PairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

// CooldownRegistry tracks when each pair of agents last finished talking,
// preventing immediate repeat conversations. Owned by the simulation and
// passed into both the reaction path (read) and the termination path
// (write); all access happens from the sequential tick loop.
type CooldownRegistry struct {
	lastEnd map[string]int
}

// NewCooldownRegistry creates an empty registry.
func NewCooldownRegistry() *CooldownRegistry {
	return &CooldownRegistry{lastEnd: make(map[string]int)}
}

// Record notes that the pair's conversation ended at the given time.
func (r *CooldownRegistry) Record(a, b string, endTime int) {
	r.lastEnd[PairKey(a, b)] = endTime
}

// IsOnCooldown reports whether the pair talked within the cooldown window.
func (r *CooldownRegistry) IsOnCooldown(a, b string, now int) bool {
	last, ok := r.lastEnd[PairKey(a, b)]
	return ok && now-last < CooldownWindow
}

// Start opens a conversation between two agents, seeded with the
// initiator's opening line. Both agents must be free — the caller
// re-validates this immediately before calling, and it is checked again
// here; a nil return means the start was skipped.
func Start(initiator, target *Agent, openingLine string, now int) *Conversation {
	if initiator.InConversation() || target.InConversation() {
		return nil
	}
	convo := &Conversation{
		ID:           uuid.New().String(),
		Participants: [2]string{initiator.ID, target.ID},
		Messages: []Message{{
			AgentID:   initiator.ID,
			AgentName: initiator.Name,
			Content:   openingLine,
			Timestamp: now,
		}},
		StartTime: now,
		Location:  initiator.Location,
	}
	initiator.Conversation = convo
	target.Conversation = convo
	initiator.Status = StatusTalking
	target.Status = StatusTalking
	return convo
}

// ShouldEnd is the termination check, evaluated by the agent about to
// speak before a reply is generated: always at 8 messages, never before
// 4, otherwise a 0.3 chance per check.
func (e *Engine) ShouldEnd(c *Conversation) bool {
	if len(c.Messages) >= maxMessages {
		return true
	}
	if len(c.Messages) < minMessages {
		return false
	}
	return e.rng.Float64() < endProbability
}

// Reply generates the respondent's next line, grounded in memories
// retrieved for the counterpart's name plus the last few messages. On
// generation failure the agent trails off rather than failing the tick.
func (e *Engine) Reply(ctx context.Context, respondent *Agent, c *Conversation, agents map[string]*Agent, now int) string {
	otherName := "someone"
	if other, ok := agents[c.Other(respondent.ID)]; ok {
		otherName = other.Name
	}

	var hints []string
	start := len(c.Messages) - topicHintWindow
	if start < 0 {
		start = 0
	}
	for _, m := range c.Messages[start:] {
		hints = append(hints, m.Content)
	}

	memories := respondent.Memories.Retrieve(
		otherName+" "+strings.Join(hints, " "),
		now, replyMemoryCount, e.weights)

	prompt := fmt.Sprintf(`You are having a conversation with %s at %s.

Your relevant memories:
%s

Conversation so far:
%s

Respond in character as %s. Keep your response to 1-3 sentences. Be natural and stay true to your personality.`,
		otherName, c.Location, memoryContext(memories, false), c.Transcript(), respondent.Name)

	text, err := e.llm.Complete(ctx, respondent.ID, personaPrompt(respondent), prompt, 200)
	if err != nil || text == "" {
		e.logger.Warn("reply generation failed",
			zap.String("agent", respondent.ID),
			zap.String("conversation", c.ID),
			zap.Error(err))
		return "..."
	}
	return text
}

// End closes a conversation: stamps the end time, releases both
// participants back to idle, and records the pair cooldown. Calling it
// again has no further effect. A participant missing from the agent map
// (removed from the world mid-conversation) is skipped.
func End(c *Conversation, agents map[string]*Agent, now int, cooldowns *CooldownRegistry) {
	if c.ended {
		return
	}
	c.ended = true
	c.EndTime = now
	for _, id := range c.Participants {
		if a, ok := agents[id]; ok {
			a.Conversation = nil
			a.Status = StatusIdle
		}
	}
	cooldowns.Record(c.Participants[0], c.Participants[1], now)
}

// DistillMemories converts a finished conversation into one
// conversation-kind memory per participant, each independently
// importance-scored. Scoring failures fall back silently inside
// ScoreImportance.
func (e *Engine) DistillMemories(ctx context.Context, c *Conversation, agents map[string]*Agent, now int) []*memory.Memory {
	var memories []*memory.Memory
	for _, id := range c.Participants {
		if _, ok := agents[id]; !ok {
			continue
		}
		otherName := "someone"
		if other, ok := agents[c.Other(id)]; ok {
			otherName = other.Name
		}

		var opening []string
		for i, m := range c.Messages {
			if i >= 2 {
				break
			}
			opening = append(opening, m.Content)
		}
		description := fmt.Sprintf("Had a conversation with %s at %s about: %s",
			otherName, c.Location, strings.Join(opening, " "))

		importance := e.ScoreImportance(ctx, id, description)
		memories = append(memories, memory.New(id, description, memory.KindConversation, now, importance))
	}
	return memories
}
