package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"chargehub/internal/ocpp"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/service"
)

func protocolErr(action string, err error) error {
	return fmt.Errorf("%w: %s: %v", ocpp.ErrProtocolViolation, action, err)
}

// NewStartTransactionHandler creates a charging session and returns its id
// as the transaction id. Unlike MeterValues and StopTransaction, a
// persistence failure here propagates to the charge point as a call
// failure. Boot ordering is deliberately not enforced: the wire protocol
// accepts StartTransaction without a prior BootNotification.
func NewStartTransactionHandler(svc *service.ChargeService, logger *zap.Logger) ocpp.HandlerFunc {
	return func(ctx context.Context, chargePointID string, payload json.RawMessage) (interface{}, error) {
		req, err := ocpp.Decode[protocol.StartTransactionRequest](payload)
		if err != nil {
			return nil, protocolErr("start transaction", err)
		}
		if req.ConnectorID == nil {
			return nil, fmt.Errorf("%w: start transaction: connectorId is required", ocpp.ErrProtocolViolation)
		}
		if req.MeterStart == nil {
			return nil, fmt.Errorf("%w: start transaction: meterStart is required", ocpp.ErrProtocolViolation)
		}
		if req.IdTag == "" {
			return nil, fmt.Errorf("%w: start transaction: idTag is required", ocpp.ErrProtocolViolation)
		}

		logger.Info("start transaction",
			zap.String("charge_point_id", chargePointID),
			zap.String("id_tag", req.IdTag),
			zap.Int("connector_id", *req.ConnectorID))

		sessionID, err := svc.StartTransaction(ctx, req.IdTag, *req.ConnectorID, *req.MeterStart, req.Soc, req.Timestamp)
		if err != nil {
			logger.Error("start transaction failed",
				zap.String("charge_point_id", chargePointID),
				zap.String("id_tag", req.IdTag),
				zap.Error(err))
			return nil, err
		}

		return protocol.StartTransactionResponse{
			TransactionID: sessionID,
			IdTagInfo:     protocol.IdTagInfo{Status: protocol.RegistrationAccepted},
		}, nil
	}
}
