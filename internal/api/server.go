package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/pagestitch/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(rateLimiter *ratelimit.Limiter, requestsPerHour int) *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()

	// Everything that sends to a category endpoint shares the category limit
	limit := RateLimitMiddleware(rateLimiter, requestsPerHour)
	api.Handle("/tabs/{id}/captures", limit(http.HandlerFunc(h.CreateCapture))).Methods("POST", "OPTIONS")
	api.Handle("/tabs/{id}/uploads", limit(http.HandlerFunc(h.CreateUpload))).Methods("POST", "OPTIONS")
	api.Handle("/tabs/{id}/messages", limit(http.HandlerFunc(h.CreateMessage))).Methods("POST", "OPTIONS")

	api.HandleFunc("/tabs", h.OpenTab).Methods("POST", "OPTIONS")
	api.HandleFunc("/tabs", h.ListTabs).Methods("GET")
	api.HandleFunc("/tabs/{id}", h.GetTab).Methods("GET")
	api.HandleFunc("/tabs/{id}", h.CloseTab).Methods("DELETE", "OPTIONS")

	api.HandleFunc("/tabs/{id}/capture", h.GetCapture).Methods("GET")
	api.HandleFunc("/tabs/{id}/progress", h.StreamProgress).Methods("GET")
	api.HandleFunc("/captures", h.ListCaptures).Methods("GET")
	api.HandleFunc("/history", h.ListHistory).Methods("GET")

	r.Use(corsMiddleware)

	return r
}
