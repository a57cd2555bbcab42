package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

const reactionMemoryCount = 5

// Reaction is the outcome of a reaction decision. Exactly one of the
// concrete types below.
type Reaction interface {
	isReaction()
}

// Continue means no reaction; carry on with the current activity.
type Continue struct{}

// StartConversation opens a dialogue with a nearby agent.
type StartConversation struct {
	TargetID    string
	OpeningLine string
}

// ChangeActivity abandons the current plan entry for something else.
type ChangeActivity struct {
	Activity string
	Location string
}

func (Continue) isReaction()          {}
func (StartConversation) isReaction() {}
func (ChangeActivity) isReaction()    {}

type reactionPayload struct {
	React   bool   `json:"react"`
	Opening string `json:"opening"`
}

// DecideReaction turns an observation into a reaction. Only agent_nearby
// observations with both parties free are considered; everything else is
// Continue. A malformed or failed generation is treated as no reaction —
// the tick never fails here. Busy checks are re-validated by the caller
// immediately before any conversation is actually created.
func (e *Engine) DecideReaction(ctx context.Context, a *Agent, obs Observation, others map[string]*Agent, now int) Reaction {
	if obs.Type != ObsAgentNearby || obs.SubjectID == "" {
		return Continue{}
	}
	if a.InConversation() {
		return Continue{}
	}
	other, ok := others[obs.SubjectID]
	if !ok || other.InConversation() {
		return Continue{}
	}

	memories := a.Memories.Retrieve(
		fmt.Sprintf("%s conversation interaction", other.Name),
		now, reactionMemoryCount, e.weights)

	memCtx := fmt.Sprintf("You don't have many memories of %s yet.", other.Name)
	if len(memories) > 0 {
		memCtx = fmt.Sprintf("Your memories involving %s:\n%s", other.Name, memoryContext(memories, false))
	}

	currentActivity := "walking around"
	if a.Plan != nil && a.Plan.Current != nil {
		currentActivity = a.Plan.Current.Description
	}

	prompt := fmt.Sprintf(`You just noticed %s nearby. %s

%s

You are currently: %s

Should you start a conversation with %s? Consider your personality, current activity, and history.

Respond in JSON:
- If yes: {"react": true, "opening": "your opening line to them"}
- If no: {"react": false}`,
		other.Name, other.Personality, memCtx, currentActivity, other.Name)

	text, err := e.llm.Complete(ctx, a.ID, personaPrompt(a), prompt, 200)
	if err != nil {
		e.logger.Warn("reaction decision failed, continuing",
			zap.String("agent", a.ID), zap.Error(err))
		return Continue{}
	}

	var payload reactionPayload
	if !ExtractJSON(text, &payload) || !payload.React {
		return Continue{}
	}

	opening := payload.Opening
	if opening == "" {
		opening = fmt.Sprintf("Hey %s!", other.Name)
	}
	return StartConversation{TargetID: other.ID, OpeningLine: opening}
}
