package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/memory"
)

// fallbackImportance is used whenever the scorer fails or returns garbage.
const fallbackImportance = 5

// Engine runs the cognitive steps that need the text-generation
// dependency: planning, reaction decisions, conversation turns,
// reflection, and importance scoring. It holds no per-agent state.
type Engine struct {
	llm     Completer
	weights memory.Weights
	rng     *rand.Rand
	logger  *zap.Logger
}

// NewEngine creates a cognition engine. The random source drives the
// probabilistic conversation-termination check and is injected so tests
// can seed it.
func NewEngine(llm Completer, rng *rand.Rand, logger *zap.Logger) *Engine {
	return &Engine{
		llm:     llm,
		weights: memory.DefaultWeights(),
		rng:     rng,
		logger:  logger,
	}
}

// personaPrompt builds the system prompt placing the model in character.
func personaPrompt(a *Agent) string {
	return fmt.Sprintf("You are %s. %s", a.Name, a.Personality)
}

// ScoreImportance rates a memory description 1-10 via the LLM. Returns
// the clamped score, or the fallback on any generation or parse failure.
func (e *Engine) ScoreImportance(ctx context.Context, agentID, description string) int {
	prompt := fmt.Sprintf(`On a scale of 1 to 10, where 1 is entirely mundane (e.g., brushing teeth, walking) and 10 is extremely poignant or life-changing (e.g., a breakup, major achievement), rate the importance of the following memory. Respond with ONLY a number.

Memory: %q`, description)

	text, err := e.llm.Complete(ctx, agentID, "", prompt, 10)
	if err != nil {
		e.logger.Warn("importance scoring failed, using fallback",
			zap.String("agent", agentID), zap.Error(err))
		return fallbackImportance
	}

	score, err := strconv.Atoi(leadingInt(text))
	if err != nil {
		return fallbackImportance
	}
	return memory.ClampImportance(score)
}

// leadingInt extracts the first integer token from text.
func leadingInt(text string) string {
	text = strings.TrimSpace(text)
	end := 0
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	return text[:end]
}

// memoryContext formats retrieved memories as a prompt bullet list.
func memoryContext(memories []*memory.Memory, withKind bool) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	for i, m := range memories {
		if i > 0 {
			b.WriteByte('\n')
		}
		if withKind {
			fmt.Fprintf(&b, "- [%s] %s", m.Kind, m.Description)
		} else {
			fmt.Fprintf(&b, "- %s", m.Description)
		}
	}
	return b.String()
}
