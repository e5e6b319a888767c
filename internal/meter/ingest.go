package meter

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chargehub/internal/models"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/storage"
)

// Ingestor turns timestamped sample groups into persisted meter readings.
type Ingestor struct {
	store  storage.SessionStore
	logger *zap.Logger
}

// NewIngestor returns ingestor.
func NewIngestor(store storage.SessionStore, logger *zap.Logger) *Ingestor {
	return &Ingestor{store: store, logger: logger}
}

// IngestGroup normalizes one sample group and persists at most one
// reading bound to the session. The reading is discarded when every field
// stays absent or when the session does not exist; the latter returns
// storage.ErrUnknownSession so the caller can count it, but it never
// reaches the charge point.
func (i *Ingestor) IngestGroup(ctx context.Context, sessionID int64, group protocol.MeterValueEntry) (*models.MeterReading, error) {
	reading := Normalize(sessionID, group, time.Now().UTC(), i.logger)
	if reading == nil {
		i.logger.Warn("no measurable values in sample group", zap.Int64("session_id", sessionID))
		return nil, nil
	}

	if err := i.store.InsertReading(ctx, reading); err != nil {
		if errors.Is(err, storage.ErrUnknownSession) {
			i.logger.Warn("reading references unknown session, discarded",
				zap.Int64("session_id", sessionID))
			return nil, err
		}
		return nil, err
	}

	i.logger.Debug("meter reading stored",
		zap.Int64("session_id", sessionID),
		zap.Time("timestamp", reading.Timestamp))
	return reading, nil
}

// Normalize maps a sample group's triples onto one reading. Unparseable
// values are skipped with a warning, unrecognized measurands ignored. It
// returns nil when no field ends up set.
func Normalize(sessionID int64, group protocol.MeterValueEntry, now time.Time, logger *zap.Logger) *models.MeterReading {
	ts := now
	if group.Timestamp != nil && !group.Timestamp.IsZero() {
		ts = group.Timestamp.UTC()
	}

	reading := &models.MeterReading{SessionID: sessionID, Timestamp: ts}

	for _, sampled := range group.SampledValue {
		value, err := strconv.ParseFloat(sampled.Value, 64)
		if err != nil {
			logger.Warn("invalid sampled value, skipped",
				zap.Int64("session_id", sessionID),
				zap.String("measurand", sampled.Measurand),
				zap.String("value", sampled.Value))
			continue
		}

		switch sampled.Measurand {
		case protocol.MeasurandVoltage:
			reading.Voltage = &value
		case protocol.MeasurandCurrent:
			reading.Current = &value
		case protocol.MeasurandPowerActive:
			reading.PowerKW = &value
		case protocol.MeasurandSoc:
			soc := int(value)
			reading.Soc = &soc
		}
	}

	if reading.Empty() {
		return nil
	}
	return reading
}
