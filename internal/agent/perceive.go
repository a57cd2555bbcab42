package agent

import (
	"fmt"

	"github.com/nidhogg/smalltown/internal/memory"
	"github.com/nidhogg/smalltown/internal/world"
)

// ProximityThreshold is the distance (world units) under which agents
// become aware of each other.
const ProximityThreshold = 80.0

// ObservationType labels what was perceived.
type ObservationType string

const (
	ObsAgentNearby     ObservationType = "agent_nearby"
	ObsEnteredLocation ObservationType = "entered_location"
	ObsLeftLocation    ObservationType = "left_location"
)

// Fixed importance per observation kind. Perception never calls the LLM,
// keeping this path cheap and synchronous.
var observationImportance = map[ObservationType]int{
	ObsAgentNearby:     5,
	ObsEnteredLocation: 3,
	ObsLeftLocation:    2,
}

// Observation is a perception event before it becomes a memory.
type Observation struct {
	Type        ObservationType
	Description string
	SubjectID   string // nearby agent, if any
	LocationID  string
}

// PerceiveNearby emits an agent_nearby observation for every other agent
// within the proximity threshold. Agents mid-conversation are skipped so
// they aren't interrupted. Iteration order follows the given slice, which
// the simulation keeps deterministic.
func PerceiveNearby(a *Agent, others []*Agent) []Observation {
	var observations []Observation
	for _, other := range others {
		if other.ID == a.ID || other.InConversation() {
			continue
		}
		if a.Position.DistanceTo(other.Position) < ProximityThreshold {
			observations = append(observations, Observation{
				Type:        ObsAgentNearby,
				Description: fmt.Sprintf("%s noticed %s nearby at %s.", a.Name, other.Name, other.Location),
				SubjectID:   other.ID,
			})
		}
	}
	return observations
}

// PerceiveLocation emits entered_location when the agent's position newly
// falls inside a location rectangle, or left_location when it exits the
// previously occupied one. Returns nil when nothing changed.
func PerceiveLocation(a *Agent, locations []world.Location) *Observation {
	for _, loc := range locations {
		if loc.Contains(a.Position) && loc.ID != a.PrevLocationID {
			return &Observation{
				Type:        ObsEnteredLocation,
				Description: fmt.Sprintf("%s entered %s. %s", a.Name, loc.Name, loc.Description),
				LocationID:  loc.ID,
			}
		}
	}

	if a.PrevLocationID != "" {
		prev := world.FindLocation(locations, a.PrevLocationID)
		if prev != nil && !prev.Contains(a.Position) {
			return &Observation{
				Type:        ObsLeftLocation,
				Description: fmt.Sprintf("%s left %s.", a.Name, prev.Name),
				LocationID:  a.PrevLocationID,
			}
		}
	}
	return nil
}

// ObservationMemory converts an observation into an observation-kind
// memory with its fixed importance.
func ObservationMemory(a *Agent, obs Observation, now int) *memory.Memory {
	importance, ok := observationImportance[obs.Type]
	if !ok {
		importance = observationImportance[ObsLeftLocation]
	}
	return memory.New(a.ID, obs.Description, memory.KindObservation, now, importance)
}
