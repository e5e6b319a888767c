package models

import "time"

// ChargingSession represents one charge-discharge transaction. End fields
// stay nil while the session is open; a session is either open or fully
// closed, never partially.
type ChargingSession struct {
	ID          int64      `db:"id" json:"id"`
	EVID        string     `db:"ev_id" json:"ev_id"`
	ConnectorID int        `db:"connector_id" json:"connector_id"`
	StartTime   time.Time  `db:"start_time" json:"start_time"`
	EndTime     *time.Time `db:"end_time" json:"end_time"`
	StartMeter  float64    `db:"start_meter" json:"start_meter"`
	EndMeter    *float64   `db:"end_meter" json:"end_meter"`
	StartSoc    int        `db:"start_soc" json:"start_soc"`
	EndSoc      *int       `db:"end_soc" json:"end_soc"`
}

// Open reports whether the session has not been closed yet.
func (s *ChargingSession) Open() bool {
	return s.EndTime == nil
}

// MeterReading is one telemetry sample belonging to a session. At least
// one measured value is always present; all-absent readings are rejected
// before they reach storage.
type MeterReading struct {
	ID        int64     `db:"id" json:"id"`
	SessionID int64     `db:"session_id" json:"session_id"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	Voltage   *float64  `db:"voltage" json:"voltage"`
	Current   *float64  `db:"current" json:"current"`
	PowerKW   *float64  `db:"power_kw" json:"power_kw"`
	Soc       *int      `db:"soc" json:"soc"`
}

// Empty reports whether no measured value is present.
func (r *MeterReading) Empty() bool {
	return r.Voltage == nil && r.Current == nil && r.PowerKW == nil && r.Soc == nil
}
