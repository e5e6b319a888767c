package status

import (
	"context"
	"errors"
	"time"

	"chargehub/internal/models"
	"chargehub/internal/storage"
)

// ErrNotFound indicates no session exists for the EV id.
var ErrNotFound = errors.New("status: no session found for ev id")

// View is the computed current-status of an EV's latest session.
type View struct {
	EVID             string    `json:"ev_id"`
	SessionID        int64     `json:"session_id"`
	StartTime        time.Time `json:"start_time"`
	CurrentTime      time.Time `json:"current_time"`
	CurrentSoc       int       `json:"current_soc"`
	RemainingPercent int       `json:"remaining_percent"`
	PowerKW          *float64  `json:"power_kw"`
	Voltage          *float64  `json:"voltage"`
	Current          *float64  `json:"current"`
}

// Engine computes status views from the session store. Read-only and safe
// to call concurrently with in-flight session activity.
type Engine struct {
	store storage.SessionStore
	now   func() time.Time
}

// NewEngine returns an Engine backed by store.
func NewEngine(store storage.SessionStore) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// CurrentStatus combines the most-recently-started session with its latest
// reading. State of charge falls back from the latest reading to the
// session's start value to 0.
func (e *Engine) CurrentStatus(ctx context.Context, evID string) (*View, error) {
	session, err := e.store.MostRecentSessionFor(ctx, evID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}

	latest, err := e.store.LatestReading(ctx, session.ID)
	if err != nil {
		return nil, err
	}

	soc := session.StartSoc
	if latest != nil && latest.Soc != nil {
		soc = *latest.Soc
	}

	view := &View{
		EVID:             session.EVID,
		SessionID:        session.ID,
		StartTime:        session.StartTime,
		CurrentTime:      e.now(),
		CurrentSoc:       soc,
		RemainingPercent: 100 - soc,
	}
	if latest != nil {
		view.PowerKW = latest.PowerKW
		view.Voltage = latest.Voltage
		view.Current = latest.Current
	}
	return view, nil
}

// Sessions returns the EV's session history.
func (e *Engine) Sessions(ctx context.Context, evID string) ([]models.ChargingSession, error) {
	return e.store.SessionsFor(ctx, evID)
}

// Readings returns a session's readings ordered by timestamp.
func (e *Engine) Readings(ctx context.Context, sessionID int64) ([]models.MeterReading, error) {
	return e.store.ReadingsFor(ctx, sessionID)
}
