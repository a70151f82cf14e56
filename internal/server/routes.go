// Package server wires HTTP handlers into a ServeMux for the Relay chat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes. The hub is injected so tests can run isolated instances side by
// side.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.Handle("/ws", NewWebSocketHandler(hub))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
