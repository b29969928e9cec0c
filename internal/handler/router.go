package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"sengine/internal/logger"
	"sengine/internal/middleware"
)

// NewRouter wires the worker's operational HTTP surface.
func NewRouter(health *HealthHandler, queues *QueuesHandler, log logger.Logger) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(log))

	r.HandleFunc("/healthz", health.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/queues", queues.HandleQueues).Methods(http.MethodGet)

	return r
}
