package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PathPrefix is the connection endpoint; the charge point identity is
// embedded in the path below it.
const PathPrefix = "/ocpp/"

// Server upgrades HTTP connections to WebSockets for OCPP.
type Server struct {
	manager      *Manager
	processor    MessageProcessor
	logger       *zap.Logger
	callTimeout  time.Duration
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

// NewServer builds ws server.
func NewServer(manager *Manager, processor MessageProcessor, callTimeout, writeTimeout time.Duration, logger *zap.Logger) *Server {
	return &Server{
		manager:      manager,
		processor:    processor,
		logger:       logger,
		callTimeout:  callTimeout,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"ocpp1.6"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWS is the HTTP handler for the /ocpp/{chargePointID} endpoint.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	chargePointID := strings.Trim(strings.TrimPrefix(r.URL.Path, PathPrefix), "/")
	if chargePointID == "" || strings.Contains(chargePointID, "/") {
		http.Error(w, "charge point id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	// Two ping intervals of silence before giving up on the peer.
	readTimeout := 2 * s.manager.pingInterval

	ctx, cancel := context.WithCancel(context.Background())
	connection := NewConnection(chargePointID, conn, s.processor, s.callTimeout, readTimeout, s.writeTimeout, s.logger, func(id string) {
		s.manager.Remove(id)
		cancel()
	})
	s.manager.Add(connection)

	go connection.Start(ctx)
	s.logger.Info("charge point connected", zap.String("charge_point_id", chargePointID))
}
