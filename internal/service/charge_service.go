package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargehub/internal/cache"
	"chargehub/internal/meter"
	"chargehub/internal/models"
	"chargehub/internal/ocpp/protocol"
	"chargehub/internal/storage"
)

// Nominal electrical values for the reading synthesized at session start.
const (
	initialVoltage = 230.0
	initialCurrent = 11.0
	initialPowerKW = 2.5
)

// ChargeService owns the charging-session lifecycle: it converts protocol
// events into session mutations against the store. The active cache is
// optional; cache failures degrade to logs.
type ChargeService struct {
	store    storage.SessionStore
	ingestor *meter.Ingestor
	active   *cache.Store
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[int64]*sessionLock
}

// sessionLock is a refcounted per-session mutex. The map entry lives only
// while at least one caller holds or waits on it.
type sessionLock struct {
	sync.Mutex
	refs int
}

// NewChargeService returns service. active may be nil when redis is not
// configured.
func NewChargeService(store storage.SessionStore, ingestor *meter.Ingestor, active *cache.Store, logger *zap.Logger) *ChargeService {
	return &ChargeService{
		store:    store,
		ingestor: ingestor,
		active:   active,
		logger:   logger,
		locks:    make(map[int64]*sessionLock),
	}
}

// StartTransaction creates a new session and synthesizes its initial
// reading. The returned id doubles as the transaction id on the wire.
// Persistence failures propagate so the caller can fail the call.
func (s *ChargeService) StartTransaction(ctx context.Context, evID string, connectorID int, meterStart float64, startSoc *int, startTime *time.Time) (int64, error) {
	soc := 0
	if startSoc != nil {
		soc = *startSoc
	}
	start := time.Now().UTC()
	if startTime != nil && !startTime.IsZero() {
		start = startTime.UTC()
	}

	session := &models.ChargingSession{
		EVID:        evID,
		ConnectorID: connectorID,
		StartTime:   start,
		StartMeter:  meterStart,
		StartSoc:    soc,
	}

	id, err := s.store.CreateSession(ctx, session)
	if err != nil {
		return 0, fmt.Errorf("create session for %s: %w", evID, err)
	}
	s.logger.Info("charging session created",
		zap.Int64("session_id", id),
		zap.String("ev_id", evID),
		zap.Int("connector_id", connectorID))

	s.seedInitialReading(ctx, id, soc, start)
	s.cacheActive(ctx, session)

	return id, nil
}

// seedInitialReading pushes one synthetic sample group through ingestion
// so a new session is immediately queryable. A failure here does not fail
// the transaction.
func (s *ChargeService) seedInitialReading(ctx context.Context, sessionID int64, soc int, ts time.Time) {
	group := protocol.MeterValueEntry{
		Timestamp: &ts,
		SampledValue: []protocol.SampledValue{
			{Value: strconv.FormatFloat(initialVoltage, 'f', -1, 64), Measurand: protocol.MeasurandVoltage, Unit: "V"},
			{Value: strconv.FormatFloat(initialCurrent, 'f', -1, 64), Measurand: protocol.MeasurandCurrent, Unit: "A"},
			{Value: strconv.FormatFloat(initialPowerKW, 'f', -1, 64), Measurand: protocol.MeasurandPowerActive, Unit: "kW"},
			{Value: strconv.Itoa(soc), Measurand: protocol.MeasurandSoc, Unit: "Percent"},
		},
	}
	if _, err := s.ingestor.IngestGroup(ctx, sessionID, group); err != nil {
		s.logger.Warn("failed to seed initial meter reading",
			zap.Int64("session_id", sessionID),
			zap.Error(err))
	}
}

// RecordMeterValues ingests each sample group independently; a failing
// group never aborts the rest. It returns the number of readings
// persisted. Missing transaction ids record nothing.
func (s *ChargeService) RecordMeterValues(ctx context.Context, transactionID *int64, groups []protocol.MeterValueEntry) int {
	if transactionID == nil {
		s.logger.Warn("meter values without transaction id, ignored")
		return 0
	}

	stored := 0
	for _, group := range groups {
		reading, err := s.ingestor.IngestGroup(ctx, *transactionID, group)
		if err != nil {
			s.logger.Warn("sample group not ingested",
				zap.Int64("transaction_id", *transactionID),
				zap.Error(err))
			continue
		}
		if reading != nil {
			stored++
		}
	}
	return stored
}

// StopTransaction closes the session, inheriting the final state-of-charge
// from the latest reading (0 when none exists, matching the close record
// always carrying an end SoC). Unknown or already-closed transactions are
// logged and tolerated; the caller still acknowledges.
func (s *ChargeService) StopTransaction(ctx context.Context, transactionID int64, meterStop float64, stopTime *time.Time) {
	end := time.Now().UTC()
	if stopTime != nil && !stopTime.IsZero() {
		end = stopTime.UTC()
	}

	// The read-latest-then-close sequence must not lose a concurrently
	// ingested reading; serialize it per session id.
	lock := s.acquireLock(transactionID)
	defer s.releaseLock(transactionID, lock)

	endSoc := 0
	latest, err := s.store.LatestReading(ctx, transactionID)
	if err != nil {
		s.logger.Warn("failed to read latest meter value",
			zap.Int64("session_id", transactionID),
			zap.Error(err))
	} else if latest != nil && latest.Soc != nil {
		endSoc = *latest.Soc
	}

	session, err := s.store.CloseSession(ctx, transactionID, meterStop, endSoc, end)
	if err != nil {
		// Duplicate or late StopTransaction lands here; accepted anyway.
		s.logger.Warn("failed to close session",
			zap.Int64("session_id", transactionID),
			zap.Error(err))
		return
	}

	s.logger.Info("charging session ended",
		zap.Int64("session_id", session.ID),
		zap.String("ev_id", session.EVID),
		zap.Float64("end_meter", meterStop),
		zap.Int("end_soc", endSoc))

	s.clearActive(ctx, session.EVID)
}

// ActiveSession returns the cached active session for an EV, or nil when
// no cache is configured or nothing is active.
func (s *ChargeService) ActiveSession(ctx context.Context, evID string) (*cache.ActiveSession, error) {
	if s.active == nil {
		return nil, nil
	}
	return s.active.Get(ctx, evID)
}

func (s *ChargeService) cacheActive(ctx context.Context, session *models.ChargingSession) {
	if s.active == nil {
		return
	}
	err := s.active.Save(ctx, cache.ActiveSession{
		SessionID:   session.ID,
		EVID:        session.EVID,
		ConnectorID: session.ConnectorID,
		StartTime:   session.StartTime,
	})
	if err != nil {
		s.logger.Warn("failed to cache active session",
			zap.String("ev_id", session.EVID),
			zap.Error(err))
	}
}

func (s *ChargeService) clearActive(ctx context.Context, evID string) {
	if s.active == nil {
		return
	}
	if err := s.active.Delete(ctx, evID); err != nil {
		s.logger.Warn("failed to clear active session cache",
			zap.String("ev_id", evID),
			zap.Error(err))
	}
}

func (s *ChargeService) acquireLock(sessionID int64) *sessionLock {
	s.mu.Lock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		s.locks[sessionID] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.Lock()
	return lock
}

func (s *ChargeService) releaseLock(sessionID int64, lock *sessionLock) {
	lock.Unlock()
	s.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

