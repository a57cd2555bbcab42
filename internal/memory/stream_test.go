package memory

import (
	"testing"
)

func TestClampImportance(t *testing.T) {
	cases := []struct{ in, want int }{
		{-3, 1}, {0, 1}, {1, 1}, {5, 5}, {10, 10}, {42, 10},
	}
	for _, c := range cases {
		if got := ClampImportance(c.in); got != c.want {
			t.Errorf("ClampImportance(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNewClampsAndEmbeds(t *testing.T) {
	m := New("a1", "saw a fox by the river", KindObservation, 500, 99)
	if m.Importance != 10 {
		t.Errorf("expected clamped importance 10, got %d", m.Importance)
	}
	if m.ID == "" {
		t.Error("expected generated id")
	}
	if len(m.Embedding) == 0 {
		t.Error("expected embedding computed at creation")
	}
}

func TestRecent(t *testing.T) {
	s := NewStream()
	for i := 0; i < 5; i++ {
		s.Append(New("a1", "event", KindObservation, i, 5))
	}

	recent := s.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("expected 3 memories, got %d", len(recent))
	}
	// Oldest-first within the window
	if recent[0].Timestamp != 2 || recent[2].Timestamp != 4 {
		t.Errorf("expected timestamps [2..4], got %d..%d", recent[0].Timestamp, recent[2].Timestamp)
	}

	if got := s.Recent(100); len(got) != 5 {
		t.Errorf("oversized window: expected all 5, got %d", len(got))
	}
}

func TestRetrieveEmptyStream(t *testing.T) {
	s := NewStream()
	if got := s.Retrieve("anything", 100, 5, DefaultWeights()); len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestRetrievePrefersImportance(t *testing.T) {
	s := NewStream()
	// Same timestamp and unrelated text, so importance dominates.
	s.Append(New("a1", "zzz qqq xxx", KindObservation, 100, 1))
	important := New("a1", "yyy www vvv", KindObservation, 100, 10)
	s.Append(important)

	got := s.Retrieve("unrelated query", 100, 1, Weights{Importance: 1.0})
	if len(got) != 1 || got[0] != important {
		t.Errorf("expected the important memory first")
	}
}

func TestRetrievePrefersRecency(t *testing.T) {
	s := NewStream()
	old := New("a1", "same text", KindObservation, 0, 5)
	fresh := New("a1", "same text", KindObservation, 990, 5)
	s.Append(old)
	s.Append(fresh)

	got := s.Retrieve("same text", 1000, 2, DefaultWeights())
	if got[0] != fresh {
		t.Error("expected the fresher memory ranked first")
	}
}

func TestRetrievePrefersRelevance(t *testing.T) {
	s := NewStream()
	offTopic := New("a1", "fixing the workshop roof", KindObservation, 100, 5)
	onTopic := New("a1", "talked with Mira about coffee", KindConversation, 100, 5)
	s.Append(offTopic)
	s.Append(onTopic)

	got := s.Retrieve("Mira coffee conversation", 100, 1, Weights{Relevance: 1.0})
	if len(got) != 1 || got[0] != onTopic {
		t.Error("expected the on-topic memory first")
	}
}

func TestRetrieveTieBreaksByInsertionOrder(t *testing.T) {
	s := NewStream()
	first := New("a1", "identical", KindObservation, 100, 5)
	second := New("a1", "identical", KindObservation, 100, 5)
	s.Append(first)
	s.Append(second)

	got := s.Retrieve("identical", 100, 2, DefaultWeights())
	if got[0] != first || got[1] != second {
		t.Error("expected insertion order preserved on score ties")
	}
}

func TestRetrieveCapsAtStreamSize(t *testing.T) {
	s := NewStream()
	s.Append(New("a1", "only one", KindObservation, 10, 5))
	if got := s.Retrieve("only one", 10, 15, DefaultWeights()); len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
}

func TestShouldReflect(t *testing.T) {
	s := NewStream()
	for i := 0; i < 4; i++ {
		s.Append(New("a1", "event", KindObservation, 100+i, 10))
	}
	// 40 accumulated — under threshold
	if s.ShouldReflect(99) {
		t.Error("expected no reflection at 40 accumulated importance")
	}
	s.Append(New("a1", "big event", KindObservation, 104, 10))
	if !s.ShouldReflect(99) {
		t.Error("expected reflection at 50 accumulated importance")
	}
	// Only memories after the last reflection count
	if s.ShouldReflect(104) {
		t.Error("expected no reflection when all memories predate the cutoff")
	}
}

func TestShouldReflectIgnoresReflections(t *testing.T) {
	s := NewStream()
	for i := 0; i < 5; i++ {
		s.Append(New("a1", "insight", KindReflection, 100+i, 10))
	}
	if s.ShouldReflect(99) {
		t.Error("reflection memories must not feed the reflection trigger")
	}
}

func TestCosine(t *testing.T) {
	a := Embed("the quick brown fox")
	if got := Cosine(a, a); got < 0.999 {
		t.Errorf("self-similarity should be ~1, got %f", got)
	}
	if got := Cosine(a, make([]float64, len(a))); got != 0 {
		t.Errorf("zero-vector similarity should be 0, got %f", got)
	}
	b := Embed("completely different words here")
	if got := Cosine(a, b); got >= 0.999 {
		t.Errorf("different texts should not be identical, got %f", got)
	}
}
