package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/memory"
)

const (
	reflectionSurveyCount   = 20
	reflectionPerQuestion   = 10
	reflectionQuestionLimit = 3
)

var listPrefixRe = regexp.MustCompile(`^\d+[.)]\s*`)

// parseQuestions extracts up to three trimmed question lines from a
// numbered-list response, discarding empty lines.
func parseQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		q := strings.TrimSpace(listPrefixRe.ReplaceAllString(strings.TrimSpace(line), ""))
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if len(questions) == reflectionQuestionLimit {
			break
		}
	}
	return questions
}

// GenerateReflections runs the two-stage synthesis: first ask for the
// most salient questions over recent memories, then answer each with a
// short first-person insight grounded in memories retrieved for that
// question. Each insight becomes a reflection-kind memory. The caller
// updates the agent's last-reflection time unconditionally afterward, so
// a parse failure here cannot re-trigger reflection every tick.
func (e *Engine) GenerateReflections(ctx context.Context, a *Agent, now int) []*memory.Memory {
	recent := a.Memories.Retrieve(
		"What are my most important recent experiences?",
		now, reflectionSurveyCount, e.weights)

	questionsPrompt := fmt.Sprintf(`Given your recent experiences:
%s

What are the 3 most salient high-level questions you can answer about your recent experiences? Respond with just the 3 questions, one per line.`,
		memoryContext(recent, false))

	text, err := e.llm.Complete(ctx, a.ID, personaPrompt(a), questionsPrompt, 300)
	if err != nil {
		e.logger.Warn("reflection question generation failed",
			zap.String("agent", a.ID), zap.Error(err))
		return nil
	}

	var reflections []*memory.Memory
	for _, question := range parseQuestions(text) {
		relevant := a.Memories.Retrieve(question, now, reflectionPerQuestion, e.weights)

		insightPrompt := fmt.Sprintf(`Based on these memories:
%s

Answer this question with a concise insight (1-2 sentences): %s`,
			memoryContext(relevant, false), question)

		insight, err := e.llm.Complete(ctx, a.ID, personaPrompt(a), insightPrompt, 200)
		if err != nil || insight == "" {
			e.logger.Warn("reflection insight generation failed",
				zap.String("agent", a.ID), zap.Error(err))
			continue
		}

		importance := e.ScoreImportance(ctx, a.ID, insight)
		reflections = append(reflections, memory.New(a.ID, insight, memory.KindReflection, now, importance))
	}
	return reflections
}
