// Package server exposes the arena over HTTP: remote agents connect on
// /agents, observers follow the event stream on /events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/magefree/landlord-arena/internal/config"
	"github.com/magefree/landlord-arena/internal/remote"
	"github.com/magefree/landlord-arena/internal/tournament"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // agents and observers are not browsers with cookies
	},
}

// Server wires the hub, the agent directory and the tournament manager to
// HTTP routes.
type Server struct {
	cfg       config.ServerConfig
	hub       *Hub
	agents    *remote.Directory
	manager   *tournament.Manager
	logger    *zap.Logger
	mux       *http.ServeMux
	startTime time.Time
}

// New builds a server. Call Serve to listen.
func New(cfg config.ServerConfig, agents *remote.Directory, manager *tournament.Manager, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:       cfg,
		hub:       NewHub(cfg.EventBuffer, logger.Named("hub")),
		agents:    agents,
		manager:   manager,
		logger:    logger,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /agents", s.handleAgent)
	s.mux.HandleFunc("GET /events", s.handleEvents)
	s.mux.HandleFunc("GET /tournaments", s.handleTournaments)
	s.mux.HandleFunc("GET /tournaments/{id}", s.handleTournament)
	return s
}

// Hub returns the event fan-out; subscribe it to the event bus.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve runs the hub and the HTTP listener until ctx ends, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("address", lis.Addr().String()))
		errc <- srv.Serve(lis)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if s.agents != nil {
		s.agents.CloseAll()
	}
	// hijacked websocket connections are not tracked by Shutdown
	stopHub()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
		"observers": s.hub.Observers(),
	}
	if s.agents != nil {
		resp["agents"] = s.agents.Connected()
	}
	if s.manager != nil {
		resp["active_tournaments"] = s.manager.ActiveCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	participant := r.URL.Query().Get("participant")
	if participant == "" {
		http.Error(w, "participant is required", http.StatusBadRequest)
		return
	}
	if s.agents == nil {
		http.Error(w, "remote agents are disabled", http.StatusServiceUnavailable)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("agent upgrade failed", zap.String("player_id", participant), zap.Error(err))
		return
	}

	agent := remote.NewAgent(participant, conn, s.logger)
	s.agents.Bind(agent)
	agent.Start()
	if err := agent.Send(r.Context(), remote.Envelope{Type: remote.MsgWelcome, Participant: participant}); err != nil {
		s.logger.Debug("welcome not delivered", zap.String("player_id", participant), zap.Error(err))
	}
	go func() {
		<-agent.Done()
		s.agents.Unbind(agent)
	}()
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("observer upgrade failed", zap.Error(err))
		return
	}
	s.hub.attach(conn, r.URL.Query().Get("tournament"))
}

func (s *Server) handleTournaments(w http.ResponseWriter, _ *http.Request) {
	if s.manager == nil {
		writeJSON(w, http.StatusOK, []tournament.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	if s.manager == nil {
		http.NotFound(w, r)
		return
	}
	t, ok := s.manager.Get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, t.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
