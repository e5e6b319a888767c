package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"chargehub/internal/ocpp"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/service"
)

// NewMeterValuesHandler ingests telemetry sample groups. Fire-and-forget
// on the wire: the ack is empty and unconditional, even when a transaction
// id is missing or every group fails. Callers needing confirmation query
// status instead.
func NewMeterValuesHandler(svc *service.ChargeService, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.MeterValuesRequest](payload)
		if err != nil {
			return nil, protocolErr("meter values", err)
		}

		if req.TransactionID == nil {
			logger.Warn("meter values without transaction id",
				zap.String("charge_point_id", chargePointID),
				zap.Int("connector_id", req.ConnectorID))
			return protocol.MeterValuesResponse{}, nil
		}

		stored := svc.RecordMeterValues(ctx, req.TransactionID, req.MeterValue)
		logger.Debug("meter values processed",
			zap.String("charge_point_id", chargePointID),
			zap.Int64("transaction_id", *req.TransactionID),
			zap.Int("groups", len(req.MeterValue)),
			zap.Int("stored", stored))

		return protocol.MeterValuesResponse{}, nil
	}
}
