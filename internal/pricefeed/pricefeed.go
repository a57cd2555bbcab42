package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultHermesURL is Pyth's public Hermes endpoint.
	DefaultHermesURL = "https://hermes.pyth.network"

	// SolUSDFeedID is the Pyth price feed id for SOL/USD.
	SolUSDFeedID = "ef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

	historySize   = 20
	trailingCount = 5

	// Event thresholds: percent change vs the trailing average.
	pumpThreshold    = 3.0
	extremeThreshold = 8.0

	redisHistoryKey = "smalltown:price:sol_usd"
)

// EventKind classifies a detected price move.
type EventKind string

const (
	EventPump        EventKind = "pump"
	EventDump        EventKind = "dump"
	EventExtremePump EventKind = "extreme_pump"
	EventExtremeDump EventKind = "extreme_dump"
)

// PriceEvent is a detected significant move.
type PriceEvent struct {
	Kind      EventKind `json:"kind"`
	Price     float64   `json:"price"`
	ChangePct float64   `json:"change_pct"`
}

// EventHandler receives detected price events.
type EventHandler func(PriceEvent)

// Config tunes the poller.
type Config struct {
	HermesURL string
	FeedID    string
	Interval  time.Duration
}

// Feed polls Pyth Hermes for a price and keeps a rolling history.
// Entirely independent of simulation state.
type Feed struct {
	cfg     Config
	client  *http.Client
	redis   *redis.Client // optional history mirror
	handler EventHandler
	logger  *zap.Logger

	mu      sync.Mutex
	history []float64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a feed. rdb and handler may be nil.
func New(cfg Config, rdb *redis.Client, handler EventHandler, logger *zap.Logger) *Feed {
	if cfg.HermesURL == "" {
		cfg.HermesURL = DefaultHermesURL
	}
	if cfg.FeedID == "" {
		cfg.FeedID = SolUSDFeedID
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Feed{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		redis:   rdb,
		handler: handler,
		logger:  logger,
	}
}

// Start launches the polling loop.
func (f *Feed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		ticker := time.NewTicker(f.cfg.Interval)
		defer ticker.Stop()
		f.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.poll(ctx)
			}
		}
	}()
}

// Stop halts polling.
func (f *Feed) Stop() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
}

// Latest returns the newest price and a copy of the history. ok is false
// until the first successful poll.
func (f *Feed) Latest() (price float64, history []float64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return 0, nil, false
	}
	history = make([]float64, len(f.history))
	copy(history, f.history)
	return history[len(history)-1], history, true
}

// hermesResponse mirrors the /api/latest_price_feeds shape. Hermes
// returns price as a scaled integer string with a separate exponent.
type hermesResponse []struct {
	Price struct {
		Price string `json:"price"`
		Expo  int    `json:"expo"`
	} `json:"price"`
}

func (f *Feed) poll(ctx context.Context) {
	price, err := f.fetch(ctx)
	if err != nil {
		f.logger.Warn("price poll failed", zap.Error(err))
		return
	}

	f.mu.Lock()
	event := detectEvent(f.history, price)
	f.history = append(f.history, price)
	if len(f.history) > historySize {
		f.history = f.history[len(f.history)-historySize:]
	}
	f.mu.Unlock()

	f.mirror(ctx, price)

	if event != nil {
		f.logger.Info("price event detected",
			zap.String("kind", string(event.Kind)),
			zap.Float64("price", event.Price),
			zap.Float64("change_pct", event.ChangePct))
		if f.handler != nil {
			f.handler(*event)
		}
	}
}

func (f *Feed) fetch(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s/api/latest_price_feeds?ids[]=%s", f.cfg.HermesURL, f.cfg.FeedID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hermes request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("hermes status %d", resp.StatusCode)
	}

	var payload hermesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode hermes response: %w", err)
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("hermes returned no feeds")
	}

	raw, err := strconv.ParseFloat(payload[0].Price.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", payload[0].Price.Price, err)
	}
	return raw * math.Pow10(payload[0].Price.Expo), nil
}

// mirror pushes the price onto the shared Redis history list, trimmed to
// the same window the in-memory history keeps. Failures are logged only.
func (f *Feed) mirror(ctx context.Context, price float64) {
	if f.redis == nil {
		return
	}
	pipe := f.redis.Pipeline()
	pipe.LPush(ctx, redisHistoryKey, price)
	pipe.LTrim(ctx, redisHistoryKey, 0, historySize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		f.logger.Warn("redis price mirror failed", zap.Error(err))
	}
}

// detectEvent compares a new price against the trailing average of the
// last few points. Needs a full trailing window; returns nil otherwise.
func detectEvent(history []float64, price float64) *PriceEvent {
	if len(history) < trailingCount {
		return nil
	}
	sum := 0.0
	for _, p := range history[len(history)-trailingCount:] {
		sum += p
	}
	avg := sum / trailingCount
	if avg == 0 {
		return nil
	}
	change := (price - avg) / avg * 100

	var kind EventKind
	switch {
	case change >= extremeThreshold:
		kind = EventExtremePump
	case change <= -extremeThreshold:
		kind = EventExtremeDump
	case change >= pumpThreshold:
		kind = EventPump
	case change <= -pumpThreshold:
		kind = EventDump
	default:
		return nil
	}
	return &PriceEvent{Kind: kind, Price: price, ChangePct: change}
}
