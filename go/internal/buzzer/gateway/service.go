package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/buzzer/go/internal/buzzer/game"
	"github.com/rs/zerolog/log"
)

// Service is the buzzer gateway: WebSocket transport, dispatch loop and optional event mirror
type Service struct {
	connectionManager *ConnectionManager
	dispatcher        *Dispatcher
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	mirror            *JetStreamMirror
}

// Config holds configuration for the buzzer gateway
type Config struct {
	ConnectionConfig  ConnectionConfig
	Game              game.Config
	DispatchQueueSize int
	// JetStream mirroring is disabled when URL is empty
	JetStreamConfig JetStreamConfig
}

// DefaultConfig returns default configuration for the buzzer gateway
func DefaultConfig() Config {
	js := DefaultJetStreamConfig()
	js.URL = ""
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		DispatchQueueSize: 1024,
		JetStreamConfig:   js,
	}
}

// NewService creates a new buzzer gateway service
func NewService(ctx context.Context, config Config, clock clockwork.Clock) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig)

	g := game.New(config.Game, clock, connectionManager)
	dispatcher := NewDispatcher(g, config.DispatchQueueSize)
	connectionManager.inbound = dispatcher

	s := &Service{
		connectionManager: connectionManager,
		dispatcher:        dispatcher,
		wsHandler:         NewWebSocketHandler(connectionManager),
		stateHandler:      NewStateHandler(dispatcher),
	}

	if config.JetStreamConfig.URL != "" {
		mirror, err := NewJetStreamMirror(ctx, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event mirror: %w", err)
		}
		s.mirror = mirror
		connectionManager.mirror = mirror
	}

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("mirror", s.mirror != nil).Msg("starting buzzer gateway service")

	go s.dispatcher.Run(ctx)
	go s.connectionManager.Start(ctx)
	if s.mirror != nil {
		go s.mirror.Run(ctx)
	}

	<-ctx.Done()

	log.Info().Msg("buzzer gateway service shutting down")
	return s.Stop()
}

// Stop releases the mirror connection
func (s *Service) Stop() error {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event mirror")
		}
	}

	log.Info().Msg("buzzer gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and state HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	mux.HandleFunc("/ws/stats", s.HandleStats)
	log.Info().Msg("buzzer gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "buzzer_gateway"
	stats["mirror"] = s.mirror != nil
	return stats
}

// HandleStats handles GET /ws/stats
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.GetStats()); err != nil {
		log.Error().Err(err).Msg("failed to encode gateway stats")
	}
}

// OperatorReset clears every press without a moderator
func (s *Service) OperatorReset() error {
	return s.dispatcher.OperatorReset()
}
