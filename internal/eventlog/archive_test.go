package eventlog

import (
	"context"
	"testing"
	"time"

	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/sim"
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("smalltown_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("start postgres: %v", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("pg connection string: %v", err)
	}
	return dsn, func() { container.Terminate(ctx) }
}

func testStore(t *testing.T) (*Store, context.Context) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	dsn, cleanup := startPostgres(t, ctx)
	t.Cleanup(cleanup)

	store, err := New(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("connect store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.Migrate(ctx, "../../migrations"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store, ctx
}

func TestInsertAndRecent(t *testing.T) {
	store, ctx := testStore(t)

	events := []sim.Event{
		{Type: sim.EventObservation, Data: sim.ObservationData{AgentID: "a1", Kind: "agent_nearby", Description: "saw Theo"}, Timestamp: 500},
		{Type: sim.EventConversationStart, Data: sim.ConversationStartData{ConversationID: "c1", Participants: [2]string{"a1", "a2"}, OpeningLine: "hi"}, Timestamp: 501},
	}
	for _, e := range events {
		if err := store.Insert(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	records, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// Newest first
	if records[0].EventType != string(sim.EventConversationStart) {
		t.Errorf("expected conversation_start first, got %s", records[0].EventType)
	}
	if records[0].SimTime != 501 {
		t.Errorf("expected sim time 501, got %d", records[0].SimTime)
	}
	for _, rec := range records {
		if len(rec.Hash) != 64 {
			t.Errorf("expected a sha256 hex hash, got %q", rec.Hash)
		}
	}

	counts, err := store.CountByType(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[string(sim.EventObservation)] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestHashIsDeterministic(t *testing.T) {
	a := hashPayload("agent_move", []byte(`{"x":1}`), 500)
	b := hashPayload("agent_move", []byte(`{"x":1}`), 500)
	if a != b {
		t.Error("same input must hash identically")
	}
	if a == hashPayload("agent_move", []byte(`{"x":2}`), 500) {
		t.Error("different payloads must hash differently")
	}
	if a == hashPayload("agent_move", []byte(`{"x":1}`), 501) {
		t.Error("different timestamps must hash differently")
	}
}

func TestArchiverDrains(t *testing.T) {
	store, ctx := testStore(t)
	archiver := NewArchiver(store, zap.NewNop())

	listener := archiver.Listener()
	for i := 0; i < 5; i++ {
		listener(sim.Event{
			Type:      sim.EventAgentMove,
			Data:      sim.AgentMoveData{AgentID: "a1"},
			Timestamp: 480 + i,
		})
	}
	archiver.Close() // waits for the queue to drain

	deadline := time.Now().Add(5 * time.Second)
	for {
		records, err := store.Recent(ctx, 10)
		if err != nil {
			t.Fatalf("recent: %v", err)
		}
		if len(records) == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 5 archived events, got %d", len(records))
		}
		time.Sleep(50 * time.Millisecond)
	}
}
