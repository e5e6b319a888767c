package handlers

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"chargehub/internal/ocpp"
	"chargehub/internal/ocpp/protocol"
)

// NewBootNotificationHandler accepts every boot and returns the server
// time plus the configured heartbeat interval. Stateless: no persistence
// is touched, and a charge point may boot from any state.
func NewBootNotificationHandler(heartbeatInterval time.Duration, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.BootNotificationRequest](payload)
		if err != nil {
			return nil, protocolErr("boot notification", err)
		}

		logger.Info("boot notification",
			zap.String("charge_point_id", chargePointID),
			zap.String("vendor", req.ChargePointVendor),
			zap.String("model", req.ChargePointModel))

		return protocol.BootNotificationResponse{
			CurrentTime: time.Now().UTC(),
			Interval:    int(heartbeatInterval.Seconds()),
			Status:      protocol.RegistrationAccepted,
		}, nil
	}
}
