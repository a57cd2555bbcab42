package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/smalltown/internal/sim"
)

// eventLogSize bounds the recent-events ring served by /api/events.
const eventLogSize = 200

// PriceSource is the read side of the price feed, optional.
type PriceSource interface {
	Latest() (price float64, history []float64, ok bool)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	simulation *sim.Simulation
	prices     PriceSource
	hub        *Hub
	logger     *zap.Logger

	eventMu sync.Mutex
	events  []sim.Event
}

// NewHandler creates the API handler and registers it as a simulation
// event listener for the event log and websocket fan-out.
func NewHandler(simulation *sim.Simulation, prices PriceSource, logger *zap.Logger) *Handler {
	h := &Handler{
		simulation: simulation,
		prices:     prices,
		hub:        NewHub(simulation, logger),
		logger:     logger,
	}
	simulation.OnEvent(h.recordEvent)
	simulation.OnEvent(h.hub.HandleEvent)
	return h
}

// Hub exposes the websocket hub for lifecycle management.
func (h *Handler) Hub() *Hub { return h.hub }

func (h *Handler) recordEvent(e sim.Event) {
	h.eventMu.Lock()
	h.events = append(h.events, e)
	if len(h.events) > eventLogSize {
		h.events = h.events[len(h.events)-eventLogSize:]
	}
	h.eventMu.Unlock()
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/world", h.worldState)
		r.Get("/agents", h.listAgents)
		r.Get("/agents/{id}", h.getAgent)
		r.Get("/events", h.recentEvents)
		r.Get("/price", h.currentPrice)

		r.Post("/sim/pause", h.pauseSim)
		r.Post("/sim/resume", h.resumeSim)
		r.Post("/sim/speed", h.setSpeed)
	})

	r.Get("/ws", h.hub.ServeWS)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "world": "smalltown"})
}

func (h *Handler) worldState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.simulation.Snapshot())
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.simulation.Snapshot().Agents)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	detail := h.simulation.Agent(id)
	if detail == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) recentEvents(w http.ResponseWriter, r *http.Request) {
	h.eventMu.Lock()
	events := make([]sim.Event, len(h.events))
	copy(events, h.events)
	h.eventMu.Unlock()
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) currentPrice(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "price feed not configured"})
		return
	}
	price, history, ok := h.prices.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no price data yet"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  "SOL/USD",
		"price":   price,
		"history": history,
	})
}

func (h *Handler) pauseSim(w http.ResponseWriter, r *http.Request) {
	h.simulation.Pause()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) resumeSim(w http.ResponseWriter, r *http.Request) {
	h.simulation.Resume()
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

type speedRequest struct {
	Speed int `json:"speed"`
}

func (h *Handler) setSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	effective := h.simulation.SetSpeed(req.Speed)
	writeJSON(w, http.StatusOK, map[string]int{"speed": effective})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
