package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/pricefeed"
	"github.com/nidhogg/smalltown/internal/sim"
)

// feedQueueSize bounds pending feed lines. The simulation loop never
// blocks on chat platforms; overflow lines are dropped.
const feedQueueSize = 128

// Broadcaster turns simulation and price events into town-feed lines and
// posts them through the gateway on its own goroutine.
type Broadcaster struct {
	gw     *Gateway
	names  map[string]string // agent id -> display name
	queue  chan string
	done   chan struct{}
	logger *zap.Logger
}

// NewBroadcaster creates and starts the feed worker.
func NewBroadcaster(gw *Gateway, names map[string]string, logger *zap.Logger) *Broadcaster {
	b := &Broadcaster{
		gw:     gw,
		names:  names,
		queue:  make(chan string, feedQueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go b.run()
	return b
}

// Close stops the worker after draining queued lines.
func (b *Broadcaster) Close() {
	close(b.queue)
	<-b.done
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for line := range b.queue {
		b.gw.Post(context.Background(), line)
	}
}

func (b *Broadcaster) enqueue(line string) {
	select {
	case b.queue <- line:
	default:
		b.logger.Warn("feed queue full, dropping line")
	}
}

func (b *Broadcaster) name(id string) string {
	if n, ok := b.names[id]; ok {
		return n
	}
	return id
}

// Listener returns the simulation listener feeding the town feed. Only
// the headline events are relayed; moves and raw observations would
// drown the channel.
func (b *Broadcaster) Listener() sim.Listener {
	return func(e sim.Event) {
		switch data := e.Data.(type) {
		case sim.ConversationStartData:
			b.enqueue(fmt.Sprintf("💬 %s struck up a conversation with %s: %q",
				b.name(data.Participants[0]), b.name(data.Participants[1]), data.OpeningLine))
		case sim.ConversationEndData:
			b.enqueue(fmt.Sprintf("👋 %s and %s wrapped up their chat at %s (%d messages)",
				b.name(data.Participants[0]), b.name(data.Participants[1]),
				data.Location, data.MessageCount))
		case sim.ReflectionData:
			b.enqueue(fmt.Sprintf("💭 %s reflects: %s", b.name(data.AgentID), data.Insight))
		case sim.PlanUpdateData:
			b.enqueue(fmt.Sprintf("📋 %s planned day %d: %s",
				b.name(data.AgentID), data.Day, data.Overview))
		}
	}
}

// PriceHandler returns the price-feed handler relaying market moves.
func (b *Broadcaster) PriceHandler() pricefeed.EventHandler {
	return func(e pricefeed.PriceEvent) {
		emoji := "📈"
		if e.Kind == pricefeed.EventDump || e.Kind == pricefeed.EventExtremeDump {
			emoji = "📉"
		}
		b.enqueue(fmt.Sprintf("%s SOL/USD %s: $%.2f (%+.1f%%)",
			emoji, e.Kind, e.Price, e.ChangePct))
	}
}
