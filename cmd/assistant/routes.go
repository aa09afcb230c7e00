package main

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hubenschmidt/live-assistant/internal/engine"
)

type stateSource interface {
	Snapshot() engine.State
}

type deps struct {
	engine    stateSource
	wsHandler http.Handler
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws/events", d.wsHandler)
	mux.HandleFunc("/health", handleHealth)
	mux.HandleFunc("GET /api/state", d.handleState)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d deps) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(d.engine.Snapshot())
}
