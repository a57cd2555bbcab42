package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	planMemoryCount  = 15
	minActivityLen   = 15  // minutes
	maxActivityLen   = 120 // minutes
	fallbackOverview = "Explore the town"
)

type planPayload struct {
	Overview   string `json:"overview"`
	Activities []struct {
		Description string `json:"description"`
		StartTime   int    `json:"startTime"`
		Duration    int    `json:"duration"`
		Location    string `json:"location"`
	} `json:"activities"`
}

// GenerateDailyPlan asks the LLM for a 6-8 activity schedule grounded in
// the agent's recent memories. Parsing is best-effort: any generation or
// parse failure yields a plan with zero activities and a generic overview
// so the tick never fails.
func (e *Engine) GenerateDailyPlan(ctx context.Context, a *Agent, now, day int, locationNames []string) *DailyPlan {
	recent := a.Memories.Retrieve(
		"What have I been doing recently? What are my goals?",
		now, planMemoryCount, e.weights)

	prompt := fmt.Sprintf(`Today is Day %d in town. Available locations: %s.

Your recent memories:
%s

Generate a daily plan with 6-8 activities for today. Each activity should include:
- A brief description
- Start time (as minute of day, 0-1440, starting from 480 = 8am)
- Duration in minutes (15-120)
- Location name (must be from the available locations list)

Also provide a 1-sentence overview of your day.

Respond in JSON format:
{
  "overview": "...",
  "activities": [
    {"description": "...", "startTime": 480, "duration": 60, "location": "..."},
    ...
  ]
}`, day, strings.Join(locationNames, ", "), memoryContext(recent, true))

	plan := &DailyPlan{Day: day, Overview: fallbackOverview}

	text, err := e.llm.Complete(ctx, a.ID, personaPrompt(a), prompt, 1000)
	if err != nil {
		e.logger.Warn("plan generation failed, using empty plan",
			zap.String("agent", a.ID), zap.Error(err))
		return plan
	}

	var payload planPayload
	if !ExtractJSON(text, &payload) {
		e.logger.Warn("plan response unparsable, using empty plan",
			zap.String("agent", a.ID))
		return plan
	}

	if payload.Overview != "" {
		plan.Overview = payload.Overview
	}
	for _, pa := range payload.Activities {
		if pa.Description == "" {
			continue
		}
		act := &Activity{
			Description: pa.Description,
			StartMinute: pa.StartTime,
			Duration:    pa.Duration,
			Location:    pa.Location,
			Status:      ActivityPending,
		}
		if act.StartMinute < 0 || act.StartMinute >= 1440 {
			continue
		}
		if act.Duration < minActivityLen {
			act.Duration = minActivityLen
		}
		if act.Duration > maxActivityLen {
			act.Duration = maxActivityLen
		}
		plan.Activities = append(plan.Activities, act)
	}
	sort.SliceStable(plan.Activities, func(i, j int) bool {
		return plan.Activities[i].StartMinute < plan.Activities[j].StartMinute
	})
	if len(plan.Activities) > 0 {
		plan.Current = plan.Activities[0]
	}

	e.logger.Info("daily plan generated",
		zap.String("agent", a.ID),
		zap.Int("day", day),
		zap.Int("activities", len(plan.Activities)))
	return plan
}
