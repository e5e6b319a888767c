package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"chargehub/internal/models"
	"chargehub/internal/storage"
)

// MemStore is an in-memory storage.SessionStore for tests. Ordering
// semantics match the postgres implementation: latest reading by
// timestamp with insertion order breaking ties.
type MemStore struct {
	mu       sync.Mutex
	sessions map[int64]*models.ChargingSession
	readings []models.MeterReading
	nextSess int64
	nextRead int64

	// FailCreate forces CreateSession to return this error when set.
	FailCreate error
	// FailInsert forces InsertReading to return this error when set.
	FailInsert error
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[int64]*models.ChargingSession)}
}

// CreateSession implements storage.SessionStore.
func (m *MemStore) CreateSession(ctx context.Context, session *models.ChargingSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate != nil {
		return 0, m.FailCreate
	}
	for _, existing := range m.sessions {
		if existing.EVID == session.EVID && existing.EndTime == nil {
			return 0, storage.ErrSessionOpen
		}
	}
	m.nextSess++
	session.ID = m.nextSess
	copied := *session
	m.sessions[session.ID] = &copied
	return session.ID, nil
}

// CloseSession implements storage.SessionStore.
func (m *MemStore) CloseSession(ctx context.Context, id int64, endMeter float64, endSoc int, endTime time.Time) (*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	session.EndTime = &endTime
	session.EndMeter = &endMeter
	session.EndSoc = &endSoc
	copied := *session
	return &copied, nil
}

// GetSession implements storage.SessionStore.
func (m *MemStore) GetSession(ctx context.Context, id int64) (*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

// InsertReading implements storage.SessionStore.
func (m *MemStore) InsertReading(ctx context.Context, reading *models.MeterReading) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailInsert != nil {
		return m.FailInsert
	}
	if _, ok := m.sessions[reading.SessionID]; !ok {
		return storage.ErrUnknownSession
	}
	m.nextRead++
	reading.ID = m.nextRead
	m.readings = append(m.readings, *reading)
	return nil
}

// LatestReading implements storage.SessionStore.
func (m *MemStore) LatestReading(ctx context.Context, sessionID int64) (*models.MeterReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.MeterReading
	for i := range m.readings {
		r := &m.readings[i]
		if r.SessionID != sessionID {
			continue
		}
		if latest == nil || r.Timestamp.After(latest.Timestamp) ||
			(r.Timestamp.Equal(latest.Timestamp) && r.ID > latest.ID) {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// MostRecentSessionFor implements storage.SessionStore.
func (m *MemStore) MostRecentSessionFor(ctx context.Context, evID string) (*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.ChargingSession
	for _, session := range m.sessions {
		if session.EVID != evID {
			continue
		}
		if latest == nil || session.StartTime.After(latest.StartTime) ||
			(session.StartTime.Equal(latest.StartTime) && session.ID > latest.ID) {
			latest = session
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

// SessionsFor implements storage.SessionStore.
func (m *MemStore) SessionsFor(ctx context.Context, evID string) ([]models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sessions []models.ChargingSession
	for _, session := range m.sessions {
		if session.EVID == evID {
			sessions = append(sessions, *session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].StartTime.After(sessions[j].StartTime)
		}
		return sessions[i].ID > sessions[j].ID
	})
	return sessions, nil
}

// ReadingsFor implements storage.SessionStore.
func (m *MemStore) ReadingsFor(ctx context.Context, sessionID int64) ([]models.MeterReading, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var readings []models.MeterReading
	for _, reading := range m.readings {
		if reading.SessionID == sessionID {
			readings = append(readings, reading)
		}
	}
	sort.Slice(readings, func(i, j int) bool {
		if !readings[i].Timestamp.Equal(readings[j].Timestamp) {
			return readings[i].Timestamp.Before(readings[j].Timestamp)
		}
		return readings[i].ID < readings[j].ID
	})
	return readings, nil
}

// ReadingCount returns the number of readings stored for a session.
func (m *MemStore) ReadingCount(sessionID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, reading := range m.readings {
		if reading.SessionID == sessionID {
			count++
		}
	}
	return count
}
