package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// GateConfig bounds traffic to the text-generation dependency.
type GateConfig struct {
	MaxConcurrent int           // simultaneous in-flight calls
	MinSpacing    time.Duration // global minimum gap between call starts
	CallTimeout   time.Duration // per-call deadline
}

// DefaultGateConfig matches the upstream provider's comfortable envelope.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		MaxConcurrent: 3,
		MinSpacing:    200 * time.Millisecond,
		CallTimeout:   30 * time.Second,
	}
}

// Gate is the single shared concurrency gate in front of the provider
// router. Every thinking step in the simulation goes through it: calls
// first wait for the global spacing token (FIFO), then for a concurrency
// slot, and each carries a bounded timeout so no caller can stall the
// tick loop indefinitely.
type Gate struct {
	router  *Router
	slots   chan struct{}
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

// NewGate wraps a router with rate limiting.
func NewGate(router *Router, cfg GateConfig, logger *zap.Logger) *Gate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultGateConfig().MaxConcurrent
	}
	if cfg.MinSpacing <= 0 {
		cfg.MinSpacing = DefaultGateConfig().MinSpacing
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultGateConfig().CallTimeout
	}
	return &Gate{
		router:  router,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		limiter: rate.NewLimiter(rate.Every(cfg.MinSpacing), 1),
		timeout: cfg.CallTimeout,
		logger:  logger,
	}
}

// Complete runs one text-generation call for an agent through the gate.
// Any failure — queueing, timeout, provider error — comes back as a
// *GenerationError so call sites apply their documented fallbacks.
func (g *Gate) Complete(ctx context.Context, agentID, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", &GenerationError{Err: err}
	}

	select {
	case g.slots <- struct{}{}: // acquire slot
	case <-ctx.Done():
		return "", &GenerationError{Err: ctx.Err()}
	}
	defer func() { <-g.slots }() // release slot

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: userPrompt})

	start := time.Now()
	resp, err := g.router.Route(callCtx, agentID, &ChatRequest{
		Messages:  messages,
		MaxTokens: maxTokens,
	})
	if err != nil {
		if !IsGenerationError(err) {
			err = &GenerationError{Err: err}
		}
		g.logger.Warn("generation call failed",
			zap.String("agent", agentID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return "", err
	}

	g.logger.Debug("generation call complete",
		zap.String("agent", agentID),
		zap.Int("tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)))
	return strings.TrimSpace(resp.Content), nil
}
