package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Adapter posts town-feed lines to one chat platform. The feed is
// outbound-only; nothing on the platform flows back into the town.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Post(ctx context.Context, text string) error
	Close() error
}

// Gateway manages all platform adapters.
type Gateway struct {
	adapters map[string]Adapter
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewGateway creates a gateway manager.
func NewGateway(logger *zap.Logger) *Gateway {
	return &Gateway{
		adapters: make(map[string]Adapter),
		logger:   logger,
	}
}

// Register adds an adapter.
func (g *Gateway) Register(adapter Adapter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.adapters[adapter.Platform()] = adapter
	g.logger.Info("registered gateway adapter", zap.String("platform", adapter.Platform()))
}

// ConnectAll starts all registered adapters.
func (g *Gateway) ConnectAll(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Connect(ctx); err != nil {
			g.logger.Error("adapter connect failed",
				zap.String("platform", platform), zap.Error(err))
			return fmt.Errorf("connect %s: %w", platform, err)
		}
		g.logger.Info("adapter connected", zap.String("platform", platform))
	}
	return nil
}

// Post sends a feed line to every adapter. Per-platform failures are
// logged, not returned; the feed is best-effort.
func (g *Gateway) Post(ctx context.Context, text string) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Post(ctx, text); err != nil {
			g.logger.Warn("feed post failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
}

// Close shuts down all adapters.
func (g *Gateway) Close() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for platform, adapter := range g.adapters {
		if err := adapter.Close(); err != nil {
			g.logger.Error("adapter close failed",
				zap.String("platform", platform), zap.Error(err))
		}
	}
	return nil
}

// Adapters returns the list of registered platform names.
func (g *Gateway) Adapters() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.adapters))
	for p := range g.adapters {
		names = append(names, p)
	}
	return names
}
