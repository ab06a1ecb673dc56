package gateway

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the race gateway: WebSocket connections in, race event
// broadcasts out.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
}

// Config holds configuration for the race gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the race gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new race gateway service. The connection manager is
// built first by the caller because the race coordinator broadcasts
// through it.
func NewService(connectionManager *ConnectionManager, coordinator Coordinator, mm Matchmaker) *Service {
	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, coordinator, mm),
	}
}

// ConnectionManager exposes the broadcast fabric; the coordinator uses it
// as its Broadcaster.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// Start begins the gateway service and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting race gateway service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("race gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("race gateway routes registered")
}
