package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chargehub/internal/ocpp"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/service"
)

// NewStopTransactionHandler closes the session. Duplicate or late stops
// for unknown transactions still return acceptance; internal failures
// degrade to warn logs, preserving the tolerant wire contract.
func NewStopTransactionHandler(svc *service.ChargeService, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StopTransactionRequest](payload)
		if err != nil {
			return nil, protocolErr("stop transaction", err)
		}

		accepted := protocol.StopTransactionResponse{
			IdTagInfo: protocol.IdTagInfo{Status: protocol.RegistrationAccepted},
		}

		if req.TransactionID == nil || req.MeterStop == nil {
			logger.Warn("stop transaction missing transaction id or meter stop",
				zap.String("charge_point_id", chargePointID))
			return accepted, nil
		}

		logger.Info("stop transaction",
			zap.String("charge_point_id", chargePointID),
			zap.Int64("transaction_id", *req.TransactionID),
			zap.Float64("meter_stop", *req.MeterStop))

		svc.StopTransaction(ctx, *req.TransactionID, *req.MeterStop, req.Timestamp)

		return accepted, nil
	}
}
