package storage

import (
	"context"
	"errors"
	"time"

	"chargehub/internal/models"
)

// ErrSessionNotFound indicates a close on a nonexistent session.
var ErrSessionNotFound = errors.New("storage: session not found")

// ErrUnknownSession indicates a reading referencing a nonexistent session.
var ErrUnknownSession = errors.New("storage: unknown session for reading")

// ErrSessionOpen indicates the EV already has an open session.
var ErrSessionOpen = errors.New("storage: ev already has an open session")

// SessionStore is the persistence contract consumed by the core. The
// transaction id space is unified with session ids: CreateSession assigns
// the id the charge point later references as transactionId.
type SessionStore interface {
	// CreateSession persists a new open session and returns its id.
	// Fails with ErrSessionOpen when the EV already has one open.
	CreateSession(ctx context.Context, session *models.ChargingSession) (int64, error)

	// CloseSession sets end time, end meter, and end state-of-charge.
	// Fails with ErrSessionNotFound for unknown ids.
	CloseSession(ctx context.Context, id int64, endMeter float64, endSoc int, endTime time.Time) (*models.ChargingSession, error)

	// GetSession returns a session by id, or nil when absent.
	GetSession(ctx context.Context, id int64) (*models.ChargingSession, error)

	// InsertReading appends a reading. Fails with ErrUnknownSession when
	// the referenced session does not exist.
	InsertReading(ctx context.Context, reading *models.MeterReading) error

	// LatestReading returns the reading with the greatest timestamp for a
	// session (insertion order breaks ties), or nil when none exists.
	LatestReading(ctx context.Context, sessionID int64) (*models.MeterReading, error)

	// MostRecentSessionFor returns the most-recently-started session for
	// an EV id, or nil when none exists.
	MostRecentSessionFor(ctx context.Context, evID string) (*models.ChargingSession, error)

	// SessionsFor returns all sessions for an EV id, newest first.
	SessionsFor(ctx context.Context, evID string) ([]models.ChargingSession, error)

	// ReadingsFor returns a session's readings ordered by timestamp
	// ascending.
	ReadingsFor(ctx context.Context, sessionID int64) ([]models.MeterReading, error)
}
