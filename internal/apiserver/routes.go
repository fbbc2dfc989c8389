package apiserver

// registerRoutes wires every API endpoint to its handler.
func (s *Server) registerRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Health
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	// Sessions
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions", s.handleStartSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleEndSession).Methods("DELETE")

	// Messages
	api.HandleFunc("/sessions/{id}/messages", s.handlePostMessage).Methods("POST")
}
