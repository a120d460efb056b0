package server

import "net/http"

// SetupRoutes configures the HTTP surface around hub: health check,
// WebSocket endpoint, test page, directory snapshot and metrics.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.HandleFunc("/test", TestPageHandler(hub.log))
	mux.HandleFunc("/users", UsersHandler(hub))
	mux.Handle("/metrics", hub.Metrics().Handler())
	return mux
}
