package web

import (
	"github.com/gorilla/mux"
)

// Routes wires the API surface. The auth gate only covers /api; health stays
// open for load-balancer probes.
func (h *Handler) Routes(auth *TokenAuth) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestID, h.Logging)

	r.HandleFunc("/api/health", h.Health).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware)
	api.HandleFunc("/ip-info", h.IPInfo).Methods("GET")
	api.HandleFunc("/stats", h.Stats).Methods("GET")
	api.HandleFunc("/visits", h.Visits).Methods("GET")

	return r
}
