package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/agent"
	"github.com/nidhogg/smalltown/internal/api"
	"github.com/nidhogg/smalltown/internal/config"
	"github.com/nidhogg/smalltown/internal/eventlog"
	"github.com/nidhogg/smalltown/internal/gateway"
	"github.com/nidhogg/smalltown/internal/pricefeed"
	"github.com/nidhogg/smalltown/internal/provider"
	"github.com/nidhogg/smalltown/internal/sim"
	"github.com/nidhogg/smalltown/internal/world"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Smalltown...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/smalltown.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Provider router and generation gate
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}
		switch pc.Type {
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}
	gateCfg := provider.DefaultGateConfig()
	if cfg.Sim.LLM.MaxConcurrent > 0 {
		gateCfg.MaxConcurrent = cfg.Sim.LLM.MaxConcurrent
	}
	if cfg.Sim.LLM.MinSpacingMS > 0 {
		gateCfg.MinSpacing = time.Duration(cfg.Sim.LLM.MinSpacingMS) * time.Millisecond
	}
	if cfg.Sim.LLM.TimeoutS > 0 {
		gateCfg.CallTimeout = time.Duration(cfg.Sim.LLM.TimeoutS) * time.Second
	}
	gate := provider.NewGate(router, gateCfg, logger)

	// Town map and residents
	townPath := cfg.TownFile
	if townPath == "" {
		townPath = "configs/world.yaml"
	}
	town, err := config.LoadTown(townPath)
	if err != nil {
		logger.Fatal("failed to load town file", zap.String("path", townPath), zap.Error(err))
	}
	logger.Info("Town loaded",
		zap.String("name", town.Name),
		zap.Int("locations", len(town.Locations)),
		zap.Int("personas", len(town.Personas)))

	// Simulation
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	engine := agent.NewEngine(gate, rng, logger)

	simCfg := sim.DefaultConfig()
	if cfg.Sim.TickMS > 0 {
		simCfg.TickInterval = time.Duration(cfg.Sim.TickMS) * time.Millisecond
	}
	if cfg.Sim.Speed > 0 {
		simCfg.Speed = cfg.Sim.Speed
	}
	simCfg.Reflection = cfg.Sim.EnableReflections
	simulation := sim.New(simCfg, engine, town.Locations, logger)

	names := make(map[string]string)
	for i, p := range town.Personas {
		if cfg.Sim.MaxAgents > 0 && i >= cfg.Sim.MaxAgents {
			logger.Warn("max_agents reached, skipping remaining personas",
				zap.Int("max", cfg.Sim.MaxAgents))
			break
		}
		start := town.Locations[0]
		if p.StartLocation != "" {
			if l := world.FindLocation(town.Locations, p.StartLocation); l != nil {
				start = *l
			}
		}
		a := agent.New(p.ID, p.Name, p.Personality, world.RandomPositionIn(start, rng), start.Name)
		a.Wallet = p.Wallet
		sim.SeedMorningMemory(a, p.MorningRoutine)
		simulation.AddAgent(a)
		names[p.ID] = p.Name
	}

	// Event archive (optional)
	var archiver *eventlog.Archiver
	if cfg.Database.Postgres.DSN != "" {
		store, pgErr := eventlog.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without event archive", zap.Error(pgErr))
		} else {
			if mErr := store.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			archiver = eventlog.NewArchiver(store, logger)
			simulation.OnEvent(archiver.Listener())
			defer store.Close()
		}
	}

	// Town feed gateway (optional)
	gw := gateway.NewGateway(logger)
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.Channel, logger))
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.Channel, logger))
	}
	var broadcaster *gateway.Broadcaster
	if len(gw.Adapters()) > 0 {
		if err := gw.ConnectAll(context.Background()); err != nil {
			logger.Warn("some gateway adapters failed to connect", zap.Error(err))
		}
		broadcaster = gateway.NewBroadcaster(gw, names, logger)
		simulation.OnEvent(broadcaster.Listener())
	}

	// Price feed (optional)
	var feed *pricefeed.Feed
	if cfg.PriceFeed.Enabled {
		var rdb *redis.Client
		if cfg.Database.Redis.URL != "" {
			opts, rErr := redis.ParseURL(cfg.Database.Redis.URL)
			if rErr != nil {
				logger.Warn("invalid redis url, price mirror disabled", zap.Error(rErr))
			} else {
				rdb = redis.NewClient(opts)
			}
		}
		var handler pricefeed.EventHandler
		if broadcaster != nil {
			handler = broadcaster.PriceHandler()
		}
		feedCfg := pricefeed.Config{FeedID: cfg.PriceFeed.FeedID}
		if cfg.PriceFeed.IntervalS > 0 {
			feedCfg.Interval = time.Duration(cfg.PriceFeed.IntervalS) * time.Second
		}
		feed = pricefeed.New(feedCfg, rdb, handler, logger)
		feed.Start(context.Background())
	}

	// HTTP surface; registers its own event listeners, so build it before
	// the loop starts.
	var prices api.PriceSource
	if feed != nil {
		prices = feed
	}
	handler := api.NewHandler(simulation, prices, logger)

	simulation.Start(context.Background())
	logger.Info("Simulation started")

	port := fmt.Sprintf("%d", cfg.Server.Port)
	if port == "0" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Smalltown listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Smalltown...")
	simulation.Stop()
	srv.Shutdown(context.Background())
	handler.Hub().Close()
	if feed != nil {
		feed.Stop()
	}
	if broadcaster != nil {
		broadcaster.Close()
	}
	if archiver != nil {
		archiver.Close()
	}
	gw.Close()
}
