package eventlog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/sim"
)

// archiveQueueSize bounds the pending-insert queue. The simulation loop
// never blocks on the database: when the queue is full the event is
// dropped with a warning.
const archiveQueueSize = 256

// Record is one archived simulation event.
type Record struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Hash      string          `json:"hash"`
	SimTime   int             `json:"sim_time"`
	CreatedAt time.Time       `json:"created_at"`
}

// Archiver drains simulation events into Postgres on its own goroutine.
type Archiver struct {
	store  *Store
	queue  chan sim.Event
	done   chan struct{}
	logger *zap.Logger
}

// NewArchiver creates and starts the archive worker.
func NewArchiver(store *Store, logger *zap.Logger) *Archiver {
	a := &Archiver{
		store:  store,
		queue:  make(chan sim.Event, archiveQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go a.run()
	return a
}

// Listener returns the non-blocking simulation listener feeding the
// archive queue.
func (a *Archiver) Listener() sim.Listener {
	return func(e sim.Event) {
		select {
		case a.queue <- e:
		default:
			a.logger.Warn("event archive queue full, dropping event",
				zap.String("type", string(e.Type)))
		}
	}
}

// Close stops the worker after draining queued events.
func (a *Archiver) Close() {
	close(a.queue)
	<-a.done
}

func (a *Archiver) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.store.Insert(ctx, e); err != nil {
			a.logger.Warn("event archive insert failed",
				zap.String("type", string(e.Type)), zap.Error(err))
		}
		cancel()
	}
}

// Insert writes one event row with a content hash over its payload.
func (s *Store) Insert(ctx context.Context, e sim.Event) error {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO events (event_type, payload, hash, sim_time)
		VALUES ($1, $2, $3, $4)`,
		string(e.Type), payload, hashPayload(string(e.Type), payload, e.Timestamp), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns the newest archived events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, event_type, payload, hash, sim_time, created_at
		FROM events ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventType, &rec.Payload, &rec.Hash, &rec.SimTime, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountByType returns how many events of each type have been archived.
func (s *Store) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT event_type, COUNT(*) FROM events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// hashPayload fingerprints an event so archive rows are tamper-evident.
func hashPayload(eventType string, payload []byte, simTime int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|", eventType, simTime)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
