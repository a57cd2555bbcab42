package sim

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/agent"
	"github.com/nidhogg/smalltown/internal/memory"
	"github.com/nidhogg/smalltown/internal/world"
)

const (
	// Simulation clock. One tick advances sim time by the speed multiplier
	// in minutes. Days start at 8am.
	DayStartMinute = 480
	MinutesPerDay  = 1440

	MinSpeed = 1
	MaxSpeed = 10

	walkStep        = 3.0
	arriveThreshold = 10.0
)

// Config tunes the simulation loop.
type Config struct {
	TickInterval time.Duration // wall-clock time between ticks
	Speed        int           // sim minutes per tick, 1-10
	Reflection   bool          // whether agents run reflection cycles
}

// DefaultConfig returns the standard loop settings.
func DefaultConfig() Config {
	return Config{
		TickInterval: 2 * time.Second,
		Speed:        1,
		Reflection:   true,
	}
}

// Simulation drives the town. All agent and conversation state is owned
// by the tick goroutine; other goroutines observe it only through
// atomically published snapshots.
type Simulation struct {
	engine        *agent.Engine
	locations     []world.Location
	locationNames []string

	agents        map[string]*agent.Agent
	order         []string // insertion order, fixes per-tick iteration
	conversations []*agent.Conversation // append-only history; active = not Ended
	cooldowns     *agent.CooldownRegistry

	simTime int // minutes since midnight
	simDay  int // starts at 1
	tick    int

	mu        sync.Mutex // guards paused, speed, listeners, running
	paused    bool
	speed     int
	listeners []Listener
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}

	reflection bool
	interval   time.Duration

	published atomic.Pointer[published]
	logger    *zap.Logger
}

// New creates a simulation over the given map. Agents are added with
// AddAgent before Start.
func New(cfg Config, engine *agent.Engine, locations []world.Location, logger *zap.Logger) *Simulation {
	if logger == nil {
		logger = zap.NewNop()
	}
	speed := cfg.Speed
	if speed < MinSpeed {
		speed = MinSpeed
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	names := make([]string, len(locations))
	for i, l := range locations {
		names[i] = l.Name
	}
	s := &Simulation{
		engine:        engine,
		locations:     locations,
		locationNames: names,
		agents:        make(map[string]*agent.Agent),
		cooldowns:     agent.NewCooldownRegistry(),
		simTime:       DayStartMinute,
		simDay:        1,
		speed:         speed,
		reflection:    cfg.Reflection,
		interval:      cfg.TickInterval,
		logger:        logger,
	}
	s.published.Store(s.buildPublished())
	return s
}

// AddAgent registers an agent before the loop starts. Its reflection
// clock starts at the current sim time so accumulated importance counts
// only from now.
func (s *Simulation) AddAgent(a *agent.Agent) {
	a.LastReflection = s.simTime
	if loc := world.LocationAt(s.locations, a.Position); loc != nil {
		a.PrevLocationID = loc.ID
	}
	s.agents[a.ID] = a
	s.order = append(s.order, a.ID)
	s.published.Store(s.buildPublished())
}

// OnEvent registers a listener. Listeners run synchronously on the tick
// goroutine in registration order.
func (s *Simulation) OnEvent(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Snapshot returns the most recently published world projection.
func (s *Simulation) Snapshot() *Snapshot {
	return s.published.Load().snapshot
}

// Agent returns the detailed projection for one agent, or nil.
func (s *Simulation) Agent(id string) *AgentDetail {
	return s.published.Load().details[id]
}

// Pause suspends tick processing; the clock freezes.
func (s *Simulation) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("simulation paused")
}

// Resume continues tick processing.
func (s *Simulation) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("simulation resumed")
}

// SetSpeed changes the sim-minutes-per-tick multiplier, clamped to the
// valid range. Returns the effective value.
func (s *Simulation) SetSpeed(speed int) int {
	if speed < MinSpeed {
		speed = MinSpeed
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	s.mu.Lock()
	s.speed = speed
	s.mu.Unlock()
	s.logger.Info("simulation speed changed", zap.Int("speed", speed))
	return speed
}

// Start launches the tick loop. It returns immediately; Stop shuts the
// loop down and waits for the in-flight tick to finish.
func (s *Simulation) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		s.logger.Info("simulation started",
			zap.Int("agents", len(s.order)),
			zap.Duration("interval", s.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Stop halts the tick loop.
func (s *Simulation) Stop() {
	s.mu.Lock()
	cancel, done, running := s.cancel, s.done, s.running
	s.running = false
	s.mu.Unlock()
	if !running {
		return
	}
	cancel()
	<-done
	s.logger.Info("simulation stopped")
}

// Tick runs one full simulation step. Only the loop goroutine (or a test
// driving the simulation manually) may call it.
func (s *Simulation) Tick(ctx context.Context) {
	s.mu.Lock()
	paused, speed := s.paused, s.speed
	s.mu.Unlock()
	if paused {
		return
	}

	s.tick++
	s.simTime += speed
	if s.simTime >= MinutesPerDay {
		s.simTime = DayStartMinute
		s.simDay++
		s.logger.Info("new day", zap.Int("day", s.simDay))
	}

	// Iterate over a copy: conversation starts mutate agent state but
	// never the roster.
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	for _, id := range ids {
		s.tickAgent(ctx, s.agents[id])
	}

	s.published.Store(s.buildPublished())
}

// tickAgent runs one agent's cognitive step. A panic in one agent's step
// is contained so the rest of the town keeps moving.
func (s *Simulation) tickAgent(ctx context.Context, a *agent.Agent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("agent tick panicked",
				zap.String("agent", a.ID), zap.Any("panic", r))
		}
	}()

	if a.Plan == nil || a.Plan.Day != s.simDay {
		s.replan(ctx, a)
	}

	if a.InConversation() {
		s.conversationTurn(ctx, a)
		return
	}

	a.Plan.Advance(s.simTime)
	s.moveForActivity(a)
	s.perceive(ctx, a)

	if s.reflection && a.Memories.ShouldReflect(a.LastReflection) {
		s.reflect(ctx, a)
	}
}

func (s *Simulation) replan(ctx context.Context, a *agent.Agent) {
	prev := a.Status
	a.Status = agent.StatusPlanning
	a.Plan = s.engine.GenerateDailyPlan(ctx, a, s.simTime, s.simDay, s.locationNames)
	a.Status = prev
	s.emit(Event{
		Type: EventPlanUpdate,
		Data: PlanUpdateData{
			AgentID:    a.ID,
			Day:        a.Plan.Day,
			Overview:   a.Plan.Overview,
			Activities: len(a.Plan.Activities),
		},
		Timestamp: s.simTime,
	})
}

// moveForActivity walks the agent toward its current activity's location,
// one straight-line step per tick.
func (s *Simulation) moveForActivity(a *agent.Agent) {
	act := a.Plan.CurrentAction(s.simTime)
	if act == nil || act.Location == "" {
		if a.Status == agent.StatusWalking {
			a.Status = agent.StatusIdle
		}
		return
	}
	target := world.FindLocation(s.locations, act.Location)
	if target == nil {
		return
	}
	if world.AtLocation(a.Position, *target, arriveThreshold) {
		if a.Status == agent.StatusWalking {
			a.Status = agent.StatusIdle
			a.Location = target.Name
		}
		return
	}
	a.Status = agent.StatusWalking
	a.Position = world.MoveToward(a.Position, target.Center(), walkStep)
	if world.AtLocation(a.Position, *target, arriveThreshold) {
		a.Status = agent.StatusIdle
		a.Location = target.Name
	}
	s.emit(Event{
		Type: EventAgentMove,
		Data: AgentMoveData{
			AgentID:        a.ID,
			Position:       a.Position,
			TargetLocation: target.Name,
		},
		Timestamp: s.simTime,
	})
}

// perceive runs location and proximity perception and routes agent_nearby
// observations through the reaction decision.
func (s *Simulation) perceive(ctx context.Context, a *agent.Agent) {
	if obs := agent.PerceiveLocation(a, s.locations); obs != nil {
		s.recordObservation(a, *obs)
		switch obs.Type {
		case agent.ObsEnteredLocation:
			a.PrevLocationID = obs.LocationID
		case agent.ObsLeftLocation:
			a.PrevLocationID = ""
			if loc := world.LocationAt(s.locations, a.Position); loc != nil {
				a.PrevLocationID = loc.ID
			}
		}
	}

	others := make([]*agent.Agent, 0, len(s.order))
	for _, id := range s.order {
		others = append(others, s.agents[id])
	}

	for _, obs := range agent.PerceiveNearby(a, others) {
		s.recordObservation(a, obs)
		s.maybeReact(ctx, a, obs)
		if a.InConversation() {
			break
		}
	}
}

func (s *Simulation) recordObservation(a *agent.Agent, obs agent.Observation) {
	a.Memories.Append(agent.ObservationMemory(a, obs, s.simTime))
	s.emit(Event{
		Type: EventObservation,
		Data: ObservationData{
			AgentID:     a.ID,
			Kind:        string(obs.Type),
			Description: obs.Description,
		},
		Timestamp: s.simTime,
	})
}

func (s *Simulation) maybeReact(ctx context.Context, a *agent.Agent, obs agent.Observation) {
	if obs.Type != agent.ObsAgentNearby {
		return
	}
	if s.cooldowns.IsOnCooldown(a.ID, obs.SubjectID, s.simTime) {
		return
	}
	reaction := s.engine.DecideReaction(ctx, a, obs, s.agents, s.simTime)
	start, ok := reaction.(agent.StartConversation)
	if !ok {
		return
	}
	target := s.agents[start.TargetID]
	if target == nil {
		return
	}
	convo := agent.Start(a, target, start.OpeningLine, s.simTime)
	if convo == nil {
		return
	}
	convo.LastTurnTick = s.tick
	s.conversations = append(s.conversations, convo)
	s.logger.Info("conversation started",
		zap.String("initiator", a.ID),
		zap.String("target", target.ID),
		zap.String("conversation", convo.ID))
	s.emit(Event{
		Type: EventConversationStart,
		Data: ConversationStartData{
			ConversationID: convo.ID,
			Participants:   convo.Participants,
			OpeningLine:    start.OpeningLine,
		},
		Timestamp: s.simTime,
	})
}

// conversationTurn advances a live conversation by at most one message
// per tick. Only the participant whose turn it is (the one who did not
// speak last) acts; the other participant's tick is a no-op.
func (s *Simulation) conversationTurn(ctx context.Context, a *agent.Agent) {
	c := a.Conversation
	if c.LastTurnTick == s.tick {
		return
	}
	if len(c.Messages) > 0 && c.Messages[len(c.Messages)-1].AgentID == a.ID {
		return
	}

	if s.engine.ShouldEnd(c) {
		s.endConversation(ctx, c)
		return
	}

	content := s.engine.Reply(ctx, a, c, s.agents, s.simTime)
	c.Messages = append(c.Messages, agent.Message{
		AgentID:   a.ID,
		AgentName: a.Name,
		Content:   content,
		Timestamp: s.simTime,
	})
	c.LastTurnTick = s.tick
	s.emit(Event{
		Type: EventConversationMessage,
		Data: ConversationMessageData{
			ConversationID: c.ID,
			AgentID:        a.ID,
			AgentName:      a.Name,
			Content:        content,
		},
		Timestamp: s.simTime,
	})
}

func (s *Simulation) endConversation(ctx context.Context, c *agent.Conversation) {
	for _, m := range s.engine.DistillMemories(ctx, c, s.agents, s.simTime) {
		if participant, ok := s.agents[m.AgentID]; ok {
			participant.Memories.Append(m)
		}
	}
	agent.End(c, s.agents, s.simTime, s.cooldowns)
	s.logger.Info("conversation ended",
		zap.String("conversation", c.ID),
		zap.Int("messages", len(c.Messages)))
	s.emit(Event{
		Type: EventConversationEnd,
		Data: ConversationEndData{
			ConversationID: c.ID,
			Participants:   c.Participants,
			Location:       c.Location,
			MessageCount:   len(c.Messages),
		},
		Timestamp: s.simTime,
	})
}

// reflect runs a reflection cycle. The last-reflection clock advances
// even when synthesis fails, so a bad generation doesn't re-trigger
// reflection every subsequent tick.
func (s *Simulation) reflect(ctx context.Context, a *agent.Agent) {
	a.Status = agent.StatusReflecting
	for _, m := range s.engine.GenerateReflections(ctx, a, s.simTime) {
		a.Memories.Append(m)
		s.emit(Event{
			Type: EventReflection,
			Data: ReflectionData{
				AgentID: a.ID,
				Insight: m.Description,
			},
			Timestamp: s.simTime,
		})
	}
	a.LastReflection = s.simTime
	a.Status = agent.StatusIdle
}

func (s *Simulation) emit(e Event) {
	s.mu.Lock()
	listeners := s.listeners
	s.mu.Unlock()
	for _, l := range listeners {
		l(e)
	}
}

// SeedMorningMemory gives a freshly created agent a routine memory so its
// first retrievals have something to anchor on.
func SeedMorningMemory(a *agent.Agent, routine string) {
	if routine == "" {
		return
	}
	desc := fmt.Sprintf("%s's morning routine: %s", a.Name, routine)
	a.Memories.Append(memory.New(a.ID, desc, memory.KindObservation, DayStartMinute-10, 3))
}

// Clock returns the current sim time (minutes) and day.
func (s *Simulation) Clock() (simTime, simDay int) {
	snap := s.published.Load().snapshot
	return snap.SimTime, snap.SimDay
}
