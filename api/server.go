package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wricardo/tiltroom/game/service"
)

// Gateway is the WebSocket side the API mounts on /ws
type Gateway interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ConnectionCount() int
}

// Options configures optional parts of the server
type Options struct {
	// StaticDir is served at / when set
	StaticDir string

	// CORSOrigins lists allowed origins; empty allows all
	CORSOrigins []string

	// MCP handles POST /mcp when set
	MCP http.Handler
}

// Server represents the REST API server
type Server struct {
	service service.RelayService
	gateway Gateway
	router  *mux.Router
	handler http.Handler
	opts    Options
}

// StatsResponse is the /api/stats body
type StatsResponse struct {
	*service.Stats
	Connections int `json:"connections"`
}

// NewServer creates a new API server
func NewServer(relay service.RelayService, gateway Gateway, opts Options) *Server {
	s := &Server{
		service: relay,
		gateway: gateway,
		router:  mux.NewRouter(),
		opts:    opts,
	}

	s.setupRoutes()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: origins,
		AllowedHeaders: []string{"*"},
	})
	s.handler = c.Handler(s.router)

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Room inspection
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms/{code}", s.handleGetRoom).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.opts.MCP != nil {
		s.router.Handle("/mcp", s.opts.MCP).Methods("POST")
	}

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)

	if s.opts.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.StaticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Str("module", "api").Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.service.ListRooms(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(rooms),
		"rooms": rooms,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]

	room, err := s.service.GetRoom(r.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			respondError(w, http.StatusNotFound, service.ClientMessage(err))
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, room)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.Stats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Stats:       stats,
		Connections: s.gateway.ConnectionCount(),
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.gateway.ServeWS(w, r)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
