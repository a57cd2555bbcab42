package memory

import (
	"math"
	"sort"
)

// decayRate is the per-simulated-minute recency decay. Together with the
// reflection threshold below it is load-bearing: changing either changes
// agent behavior.
const decayRate = 0.995

// reflectionThreshold is the accumulated importance that triggers a
// reflection cycle.
const reflectionThreshold = 50

// Weights blends the three retrieval signals.
type Weights struct {
	Recency    float64
	Importance float64
	Relevance  float64
}

// DefaultWeights gives the three signals equal pull.
func DefaultWeights() Weights {
	return Weights{Recency: 1.0, Importance: 1.0, Relevance: 1.0}
}

// Stream is an agent's append-only chronological memory log. Insertion
// order is the chronological record and the retrieval tie-break. Not safe
// for concurrent mutation; the simulation loop is the single writer.
type Stream struct {
	memories []*Memory
}

// NewStream creates an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Append adds a memory in arrival order.
func (s *Stream) Append(m *Memory) {
	s.memories = append(s.memories, m)
}

// Len returns the number of stored memories.
func (s *Stream) Len() int {
	return len(s.memories)
}

// All returns the underlying slice in chronological order. Callers must
// treat it as read-only.
func (s *Stream) All() []*Memory {
	return s.memories
}

// Recent returns up to n of the newest memories, oldest first.
func (s *Stream) Recent(n int) []*Memory {
	if n >= len(s.memories) {
		return s.memories
	}
	return s.memories[len(s.memories)-n:]
}

type scored struct {
	mem   *Memory
	score float64
	order int
}

// Retrieve returns the top-k memories for a query, ranked by
// recency*importance*relevance blend:
//
//	recency    = 0.995 ^ (now - timestamp)
//	importance = importance / 10
//	relevance  = cosine(embed(query), embedding)
//
// Ties break toward the oldest-arrived memory so results are
// deterministic. An empty stream returns an empty slice.
func (s *Stream) Retrieve(query string, nowMinutes, k int, w Weights) []*Memory {
	if k <= 0 || len(s.memories) == 0 {
		return nil
	}
	queryEmb := Embed(query)

	ranked := make([]scored, len(s.memories))
	for i, m := range s.memories {
		recency := math.Pow(decayRate, float64(nowMinutes-m.Timestamp))
		importance := float64(m.Importance) / 10
		relevance := Cosine(queryEmb, m.Embedding)
		ranked[i] = scored{
			mem:   m,
			score: w.Recency*recency + w.Importance*importance + w.Relevance*relevance,
			order: i,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].order < ranked[j].order
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]*Memory, k)
	for i := 0; i < k; i++ {
		out[i] = ranked[i].mem
	}
	return out
}

// ShouldReflect reports whether the importance accumulated since the last
// reflection crosses the reflection threshold. Reflection-kind memories
// don't count, so reflecting never feeds its own trigger.
func (s *Stream) ShouldReflect(lastReflectionTime int) bool {
	total := 0
	for _, m := range s.memories {
		if m.Timestamp > lastReflectionTime && m.Kind != KindReflection {
			total += m.Importance
		}
	}
	return total >= reflectionThreshold
}
