package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargehub/internal/models"
)

// PostgresStore implements SessionStore on a pgx-backed *sql.DB.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns the store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateSession inserts a new open session. The open-overlap check and the
// insert run in one transaction so two concurrent starts for the same EV
// cannot both succeed.
func (s *PostgresStore) CreateSession(ctx context.Context, session *models.ChargingSession) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	const openQuery = `
		SELECT EXISTS (
			SELECT 1 FROM charging_sessions
			WHERE ev_id = $1 AND end_time IS NULL
		)
	`
	var open bool
	if err := tx.QueryRowContext(ctx, openQuery, session.EVID).Scan(&open); err != nil {
		return 0, err
	}
	if open {
		return 0, ErrSessionOpen
	}

	const insertQuery = `
		INSERT INTO charging_sessions (ev_id, connector_id, start_time, start_meter, start_soc)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, insertQuery,
		session.EVID,
		session.ConnectorID,
		session.StartTime,
		session.StartMeter,
		session.StartSoc,
	).Scan(&session.ID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return session.ID, nil
}

// CloseSession finalizes a session by id.
func (s *PostgresStore) CloseSession(ctx context.Context, id int64, endMeter float64, endSoc int, endTime time.Time) (*models.ChargingSession, error) {
	const query = `
		UPDATE charging_sessions
		SET end_time = $2,
		    end_meter = $3,
		    end_soc = $4
		WHERE id = $1
		RETURNING id, ev_id, connector_id, start_time, end_time, start_meter, end_meter, start_soc, end_soc
	`
	var session models.ChargingSession
	err := s.db.QueryRowContext(ctx, query, id, endTime, endMeter, endSoc).Scan(
		&session.ID,
		&session.EVID,
		&session.ConnectorID,
		&session.StartTime,
		&session.EndTime,
		&session.StartMeter,
		&session.EndMeter,
		&session.StartSoc,
		&session.EndSoc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches a session by id.
func (s *PostgresStore) GetSession(ctx context.Context, id int64) (*models.ChargingSession, error) {
	const query = `
		SELECT id, ev_id, connector_id, start_time, end_time, start_meter, end_meter, start_soc, end_soc
		FROM charging_sessions
		WHERE id = $1
	`
	session, err := s.scanSession(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

// InsertReading appends a reading after verifying the session exists, the
// same order of checks the ingestion contract requires.
func (s *PostgresStore) InsertReading(ctx context.Context, reading *models.MeterReading) error {
	const existsQuery = `SELECT EXISTS (SELECT 1 FROM charging_sessions WHERE id = $1)`
	var exists bool
	if err := s.db.QueryRowContext(ctx, existsQuery, reading.SessionID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrUnknownSession
	}

	const insertQuery = `
		INSERT INTO meter_values (session_id, timestamp, voltage, current, power_kw, soc)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	return s.db.QueryRowContext(ctx, insertQuery,
		reading.SessionID,
		reading.Timestamp,
		reading.Voltage,
		reading.Current,
		reading.PowerKW,
		reading.Soc,
	).Scan(&reading.ID)
}

// LatestReading returns the newest reading for a session; the serial id
// breaks timestamp ties in insertion order.
func (s *PostgresStore) LatestReading(ctx context.Context, sessionID int64) (*models.MeterReading, error) {
	const query = `
		SELECT id, session_id, timestamp, voltage, current, power_kw, soc
		FROM meter_values
		WHERE session_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`
	reading, err := s.scanReading(s.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return reading, err
}

// MostRecentSessionFor returns the latest-started session for an EV.
func (s *PostgresStore) MostRecentSessionFor(ctx context.Context, evID string) (*models.ChargingSession, error) {
	const query = `
		SELECT id, ev_id, connector_id, start_time, end_time, start_meter, end_meter, start_soc, end_soc
		FROM charging_sessions
		WHERE ev_id = $1
		ORDER BY start_time DESC, id DESC
		LIMIT 1
	`
	session, err := s.scanSession(s.db.QueryRowContext(ctx, query, evID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return session, err
}

// SessionsFor returns the EV's sessions, newest first.
func (s *PostgresStore) SessionsFor(ctx context.Context, evID string) ([]models.ChargingSession, error) {
	const query = `
		SELECT id, ev_id, connector_id, start_time, end_time, start_meter, end_meter, start_soc, end_soc
		FROM charging_sessions
		WHERE ev_id = $1
		ORDER BY start_time DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, evID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ChargingSession
	for rows.Next() {
		var session models.ChargingSession
		if err := rows.Scan(
			&session.ID,
			&session.EVID,
			&session.ConnectorID,
			&session.StartTime,
			&session.EndTime,
			&session.StartMeter,
			&session.EndMeter,
			&session.StartSoc,
			&session.EndSoc,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// ReadingsFor returns a session's readings ordered by timestamp ascending.
func (s *PostgresStore) ReadingsFor(ctx context.Context, sessionID int64) ([]models.MeterReading, error) {
	const query = `
		SELECT id, session_id, timestamp, voltage, current, power_kw, soc
		FROM meter_values
		WHERE session_id = $1
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.MeterReading
	for rows.Next() {
		var reading models.MeterReading
		if err := rows.Scan(
			&reading.ID,
			&reading.SessionID,
			&reading.Timestamp,
			&reading.Voltage,
			&reading.Current,
			&reading.PowerKW,
			&reading.Soc,
		); err != nil {
			return nil, err
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanSession(row rowScanner) (*models.ChargingSession, error) {
	var session models.ChargingSession
	if err := row.Scan(
		&session.ID,
		&session.EVID,
		&session.ConnectorID,
		&session.StartTime,
		&session.EndTime,
		&session.StartMeter,
		&session.EndMeter,
		&session.StartSoc,
		&session.EndSoc,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *PostgresStore) scanReading(row rowScanner) (*models.MeterReading, error) {
	var reading models.MeterReading
	if err := row.Scan(
		&reading.ID,
		&reading.SessionID,
		&reading.Timestamp,
		&reading.Voltage,
		&reading.Current,
		&reading.PowerKW,
		&reading.Soc,
	); err != nil {
		return nil, err
	}
	return &reading, nil
}
