package sim

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/agent"
	"github.com/nidhogg/smalltown/internal/memory"
	"github.com/nidhogg/smalltown/internal/world"
)

var testLocations = []world.Location{
	{ID: "cafe", Name: "Moonrise Cafe", Description: "A cozy cafe.", X: 0, Y: 0, Width: 100, Height: 100, Kind: world.KindBuilding},
	{ID: "park", Name: "Riverside Park", Description: "Open lawns.", X: 400, Y: 0, Width: 200, Height: 200, Kind: world.KindOutdoor},
}

// scriptedLLM answers by prompt shape so one stub serves every cognitive
// step. Fields override individual answers.
type scriptedLLM struct {
	planJSON  string
	reactJSON string
	reply     string
}

func (s *scriptedLLM) Complete(_ context.Context, _, _, userPrompt string, _ int) (string, error) {
	switch {
	case strings.Contains(userPrompt, "Generate a daily plan"):
		if s.planJSON != "" {
			return s.planJSON, nil
		}
		return `{"overview": "quiet day", "activities": []}`, nil
	case strings.Contains(userPrompt, "Should you start a conversation"):
		if s.reactJSON != "" {
			return s.reactJSON, nil
		}
		return `{"react": false}`, nil
	case strings.Contains(userPrompt, "rate the importance"):
		return "5", nil
	case strings.Contains(userPrompt, "salient high-level questions"):
		return "1. What stood out today?", nil
	case strings.Contains(userPrompt, "concise insight"):
		return "The town feels lively lately.", nil
	case strings.Contains(userPrompt, "Respond in character"):
		if s.reply != "" {
			return s.reply, nil
		}
		return "Good to see you!", nil
	}
	return "", nil
}

func newTestSim(t *testing.T, llm agent.Completer, agents ...*agent.Agent) *Simulation {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	engine := agent.NewEngine(llm, rng, zap.NewNop())
	s := New(DefaultConfig(), engine, testLocations, zap.NewNop())
	for _, a := range agents {
		s.AddAgent(a)
	}
	return s
}

func idleAgent(id, name string, pos world.Position) *agent.Agent {
	return agent.New(id, name, "easygoing", pos, "Moonrise Cafe")
}

func TestTickAdvancesClock(t *testing.T) {
	s := newTestSim(t, &scriptedLLM{})
	s.Tick(context.Background())

	st, day := s.Clock()
	if st != DayStartMinute+1 || day != 1 {
		t.Errorf("expected time %d day 1, got %d day %d", DayStartMinute+1, st, day)
	}
}

func TestPauseFreezesClock(t *testing.T) {
	s := newTestSim(t, &scriptedLLM{})
	s.Pause()
	s.Tick(context.Background())
	if st, _ := s.Clock(); st != DayStartMinute {
		t.Errorf("paused tick must not advance time, got %d", st)
	}

	s.Resume()
	s.Tick(context.Background())
	if st, _ := s.Clock(); st != DayStartMinute+1 {
		t.Errorf("expected time to move after resume, got %d", st)
	}
}

func TestSetSpeedClamps(t *testing.T) {
	s := newTestSim(t, &scriptedLLM{})
	if got := s.SetSpeed(25); got != MaxSpeed {
		t.Errorf("expected clamp to %d, got %d", MaxSpeed, got)
	}
	if got := s.SetSpeed(0); got != MinSpeed {
		t.Errorf("expected clamp to %d, got %d", MinSpeed, got)
	}
	if got := s.SetSpeed(5); got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
}

func TestDayWrap(t *testing.T) {
	s := newTestSim(t, &scriptedLLM{})
	s.simTime = MinutesPerDay - 1
	s.SetSpeed(MaxSpeed)
	s.Tick(context.Background())

	st, day := s.Clock()
	if st != DayStartMinute || day != 2 {
		t.Errorf("expected wrap to %d on day 2, got %d day %d", DayStartMinute, st, day)
	}
}

func TestFirstTickGeneratesPlan(t *testing.T) {
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, &scriptedLLM{}, a)

	var planEvents int
	s.OnEvent(func(e Event) {
		if e.Type == EventPlanUpdate {
			planEvents++
		}
	})
	s.Tick(context.Background())

	if a.Plan == nil || a.Plan.Day != 1 {
		t.Fatalf("expected a day-1 plan, got %+v", a.Plan)
	}
	if planEvents != 1 {
		t.Errorf("expected one plan_update event, got %d", planEvents)
	}
}

func TestDayWrapTriggersReplan(t *testing.T) {
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, &scriptedLLM{}, a)

	s.Tick(context.Background())
	s.simTime = MinutesPerDay - 1
	s.Tick(context.Background())

	if a.Plan.Day != 2 {
		t.Errorf("expected fresh plan for day 2, got day %d", a.Plan.Day)
	}
}

func TestMovementTowardActivity(t *testing.T) {
	llm := &scriptedLLM{planJSON: `{
		"overview": "park day",
		"activities": [{"description": "walk", "startTime": 480, "duration": 120, "location": "Riverside Park"}]
	}`}
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, llm, a)

	before := a.Position
	s.Tick(context.Background())

	if a.Status != agent.StatusWalking {
		t.Errorf("expected walking, got %s", a.Status)
	}
	if a.Position == before {
		t.Error("expected the agent to move")
	}
	target := world.FindLocation(testLocations, "Riverside Park").Center()
	if a.Position.DistanceTo(target) >= before.DistanceTo(target) {
		t.Error("expected movement toward the target")
	}
}

func TestArrivalSetsLocation(t *testing.T) {
	llm := &scriptedLLM{planJSON: `{
		"overview": "park day",
		"activities": [{"description": "walk", "startTime": 480, "duration": 120, "location": "Riverside Park"}]
	}`}
	// Start just outside the arrive threshold of the park center (500,100)
	a := idleAgent("a1", "Mira", world.Position{X: 489, Y: 100})
	s := newTestSim(t, llm, a)

	s.Tick(context.Background())
	if a.Status != agent.StatusIdle {
		t.Errorf("expected idle after arriving, got %s", a.Status)
	}
	if a.Location != "Riverside Park" {
		t.Errorf("expected location updated, got %q", a.Location)
	}
}

func TestConversationLifecycle(t *testing.T) {
	llm := &scriptedLLM{reactJSON: `{"react": true, "opening": "Morning!"}`}
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	b := idleAgent("a2", "Theo", world.Position{X: 60, Y: 50})
	s := newTestSim(t, llm, a, b)

	var starts, messages, ends int
	s.OnEvent(func(e Event) {
		switch e.Type {
		case EventConversationStart:
			starts++
		case EventConversationMessage:
			messages++
		case EventConversationEnd:
			ends++
		}
	})

	s.Tick(context.Background())
	if starts != 1 {
		t.Fatalf("expected one conversation start, got %d", starts)
	}
	if !a.InConversation() || !b.InConversation() {
		t.Fatal("both agents should be in the conversation")
	}
	c := a.Conversation
	if len(c.Messages) != 1 {
		t.Fatalf("only the opener should exist on the starting tick, got %d", len(c.Messages))
	}

	// Drive to completion; termination always fires by 8 messages.
	for i := 0; i < 20 && ends == 0; i++ {
		before := len(c.Messages)
		s.Tick(context.Background())
		if len(c.Messages) > before+1 {
			t.Fatalf("more than one message appended in a tick: %d -> %d", before, len(c.Messages))
		}
	}

	if ends != 1 {
		t.Fatalf("expected the conversation to end, got %d end events", ends)
	}
	if len(c.Messages) < 4 || len(c.Messages) > 8 {
		t.Errorf("expected between 4 and 8 messages, got %d", len(c.Messages))
	}
	if a.InConversation() || b.InConversation() {
		t.Error("participants must be released after the end")
	}
	if a.Status != agent.StatusIdle || b.Status != agent.StatusIdle {
		t.Error("participants must be idle after the end")
	}
	if messages != len(c.Messages)-1 {
		t.Errorf("expected %d message events, got %d", len(c.Messages)-1, messages)
	}

	// Distilled memory per participant
	for _, ag := range []*agent.Agent{a, b} {
		found := false
		for _, m := range ag.Memories.All() {
			if m.Kind == memory.KindConversation {
				found = true
			}
		}
		if !found {
			t.Errorf("agent %s missing a distilled conversation memory", ag.ID)
		}
	}

	// Cooldown: no immediate restart
	starts = 0
	s.Tick(context.Background())
	if starts != 0 {
		t.Error("pair on cooldown must not restart immediately")
	}
}

func TestEndedConversationsRetained(t *testing.T) {
	llm := &scriptedLLM{reactJSON: `{"react": true, "opening": "Morning!"}`}
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	b := idleAgent("a2", "Theo", world.Position{X: 60, Y: 50})
	s := newTestSim(t, llm, a, b)

	s.Tick(context.Background())
	for i := 0; i < 20 && a.InConversation(); i++ {
		s.Tick(context.Background())
	}
	if a.InConversation() {
		t.Fatal("conversation did not finish")
	}

	if len(s.conversations) != 1 {
		t.Fatalf("expected the ended conversation kept in history, got %d", len(s.conversations))
	}
	if !s.conversations[0].Ended() {
		t.Error("retained conversation must be marked ended")
	}
	if n := len(s.Snapshot().ActiveConversations); n != 0 {
		t.Errorf("ended conversation must not appear active, got %d", n)
	}
}

func TestReflectionTrigger(t *testing.T) {
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, &scriptedLLM{}, a)

	for i := 0; i < 6; i++ {
		a.Memories.Append(memory.New("a1", "a big day", memory.KindObservation, s.simTime+1, 10))
	}

	var reflections int
	s.OnEvent(func(e Event) {
		if e.Type == EventReflection {
			reflections++
		}
	})
	s.Tick(context.Background())

	if reflections != 1 {
		t.Fatalf("expected one reflection event, got %d", reflections)
	}
	st, _ := s.Clock()
	if a.LastReflection != st {
		t.Errorf("expected reflection clock at %d, got %d", st, a.LastReflection)
	}

	// No re-trigger on the next tick
	s.Tick(context.Background())
	if reflections != 1 {
		t.Errorf("reflection must not re-trigger immediately, got %d", reflections)
	}
}

func TestReflectionDisabled(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	engine := agent.NewEngine(&scriptedLLM{}, rng, zap.NewNop())
	cfg := DefaultConfig()
	cfg.Reflection = false
	s := New(cfg, engine, testLocations, zap.NewNop())

	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s.AddAgent(a)
	for i := 0; i < 6; i++ {
		a.Memories.Append(memory.New("a1", "a big day", memory.KindObservation, s.simTime+1, 10))
	}

	var reflections int
	s.OnEvent(func(e Event) {
		if e.Type == EventReflection {
			reflections++
		}
	})
	s.Tick(context.Background())
	if reflections != 0 {
		t.Errorf("reflection disabled by config, got %d events", reflections)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, &scriptedLLM{}, a)
	s.Tick(context.Background())

	snap := s.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if decoded.SimTime != snap.SimTime || len(decoded.Agents) != 1 {
		t.Errorf("round-trip mismatch: %+v", decoded)
	}
	if decoded.Agents[0].Name != "Mira" {
		t.Errorf("expected Mira, got %q", decoded.Agents[0].Name)
	}
	if len(decoded.Locations) != len(testLocations) {
		t.Errorf("expected %d locations, got %d", len(testLocations), len(decoded.Locations))
	}
}

func TestAgentDetail(t *testing.T) {
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, &scriptedLLM{}, a)
	s.Tick(context.Background())

	detail := s.Agent("a1")
	if detail == nil {
		t.Fatal("expected detail for a1")
	}
	if detail.Plan == nil {
		t.Error("expected the generated plan in the detail view")
	}
	if s.Agent("missing") != nil {
		t.Error("expected nil for unknown agent")
	}
}

func TestAgentDetailPlanDetached(t *testing.T) {
	llm := &scriptedLLM{planJSON: `{
		"overview": "park day",
		"activities": [{"description": "walk", "startTime": 480, "duration": 120, "location": "Riverside Park"}]
	}`}
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	s := newTestSim(t, llm, a)
	s.Tick(context.Background())

	detail := s.Agent("a1")
	if detail.Plan == a.Plan {
		t.Fatal("published detail must not alias the live plan")
	}
	status := detail.Plan.Activities[0].Status
	a.Plan.Activities[0].Status = agent.ActivityCompleted
	if detail.Plan.Activities[0].Status != status {
		t.Error("mutating the live plan leaked into the published detail")
	}
}

func TestSeedMorningMemory(t *testing.T) {
	a := idleAgent("a1", "Mira", world.Position{X: 50, Y: 50})
	SeedMorningMemory(a, "grinds the first batch of beans")

	if a.Memories.Len() != 1 {
		t.Fatalf("expected one seed memory, got %d", a.Memories.Len())
	}
	m := a.Memories.All()[0]
	if m.Importance != 3 {
		t.Errorf("expected importance 3, got %d", m.Importance)
	}
	if m.Timestamp != DayStartMinute-10 {
		t.Errorf("expected timestamp %d, got %d", DayStartMinute-10, m.Timestamp)
	}

	b := idleAgent("a2", "Theo", world.Position{})
	SeedMorningMemory(b, "")
	if b.Memories.Len() != 0 {
		t.Error("empty routine must not seed a memory")
	}
}
